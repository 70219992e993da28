package game

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisLedgerStore keeps sessions and records under their derived ledger
// addresses.
type RedisLedgerStore struct {
	rdclient *redis.Client
}

func NewRedisLedgerStore(redisURL string, redisPW string, redisDB int) *RedisLedgerStore {
	rdclient := redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: redisPW,
		DB:       redisDB,
	})
	return NewRedisLedgerStoreWithClient(rdclient)
}

func NewRedisLedgerStoreWithClient(rdclient *redis.Client) *RedisLedgerStore {
	return &RedisLedgerStore{
		rdclient: rdclient,
	}
}

func (r *RedisLedgerStore) Load(gameID uint64) (*Session, *Record, error) {
	ctx := context.Background()
	values, err := r.rdclient.MGet(ctx, SessionAddress(gameID), RecordAddress(gameID)).Result()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "Unable to load game %d", gameID)
	}
	if values[0] == nil || values[1] == nil {
		return nil, nil, errors.Wrapf(ErrNotFound, "game %d", gameID)
	}
	sessionStr, ok1 := values[0].(string)
	recordStr, ok2 := values[1].(string)
	if !ok1 || !ok2 {
		return nil, nil, errors.Errorf("unexpected value types for game %d", gameID)
	}

	session, err := unmarshalSession([]byte(sessionStr))
	if err != nil {
		return nil, nil, err
	}
	record, err := unmarshalRecord([]byte(recordStr))
	if err != nil {
		return nil, nil, err
	}
	return session, record, nil
}

func (r *RedisLedgerStore) Save(session *Session, record *Record) error {
	sessionBytes, err := marshalSession(session)
	if err != nil {
		return err
	}
	recordBytes, err := marshalRecord(record)
	if err != nil {
		return err
	}

	ctx := context.Background()
	_, err = r.rdclient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, SessionAddress(session.GameID), sessionBytes, 0)
		pipe.Set(ctx, RecordAddress(record.GameID), recordBytes, 0)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "Unable to save game %d", session.GameID)
	}
	return nil
}

func (r *RedisLedgerStore) Remove(gameID uint64) error {
	err := r.rdclient.Del(context.Background(), SessionAddress(gameID), RecordAddress(gameID)).Err()
	if err != nil {
		return errors.Wrapf(err, "Unable to remove game %d", gameID)
	}
	return nil
}
