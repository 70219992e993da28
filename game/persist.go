package game

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// LedgerStore persists sessions and records. Save writes both atomically so a
// reader never observes a phase without its matching record.
type LedgerStore interface {
	Load(gameID uint64) (*Session, *Record, error)
	Save(session *Session, record *Record) error
	Remove(gameID uint64) error
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func marshalSession(session *Session) ([]byte, error) {
	b, err := json.Marshal(session)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to marshal session %d", session.GameID)
	}
	return b, nil
}

func unmarshalSession(b []byte) (*Session, error) {
	session := &Session{}
	if err := json.Unmarshal(b, session); err != nil {
		return nil, errors.Wrap(err, "Unable to unmarshal session")
	}
	return session, nil
}

func marshalRecord(record *Record) ([]byte, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to marshal record %d", record.GameID)
	}
	return b, nil
}

func unmarshalRecord(b []byte) (*Record, error) {
	record := &Record{}
	if err := json.Unmarshal(b, record); err != nil {
		return nil, errors.Wrap(err, "Unable to unmarshal record")
	}
	return record, nil
}
