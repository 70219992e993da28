package game

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS game_sessions (
	game_id BIGINT PRIMARY KEY,
	address TEXT NOT NULL,
	owner TEXT NOT NULL,
	phase TEXT NOT NULL,
	hand_number INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS card_games (
	game_id BIGINT PRIMARY KEY,
	address TEXT NOT NULL,
	seq BIGINT NOT NULL,
	record BYTEA NOT NULL
);`

const upsertSessionSQL = `INSERT INTO game_sessions (game_id, address, owner, phase, hand_number)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (game_id) DO UPDATE SET owner = EXCLUDED.owner, phase = EXCLUDED.phase, hand_number = EXCLUDED.hand_number`

const upsertRecordSQL = `INSERT INTO card_games (game_id, address, seq, record)
VALUES ($1, $2, $3, $4)
ON CONFLICT (game_id) DO UPDATE SET seq = EXCLUDED.seq, record = EXCLUDED.record`

type sessionRow struct {
	GameID     int64  `db:"game_id"`
	Owner      string `db:"owner"`
	Phase      string `db:"phase"`
	HandNumber int64  `db:"hand_number"`
}

type recordRow struct {
	Seq    int64  `db:"seq"`
	Record []byte `db:"record"`
}

// PostgresLedgerStore writes the session row and the record row in one
// transaction. Game ids are stored as their two's complement BIGINT.
type PostgresLedgerStore struct {
	db *sqlx.DB
}

func NewPostgresLedgerStore(connStr string) (*PostgresLedgerStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to open postgres connection")
	}
	if _, err := db.Exec(createTablesSQL); err != nil {
		return nil, errors.Wrap(err, "Unable to create ledger tables")
	}
	return NewPostgresLedgerStoreWithDB(db), nil
}

func NewPostgresLedgerStoreWithDB(db *sqlx.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

func (p *PostgresLedgerStore) Load(gameID uint64) (*Session, *Record, error) {
	var srow sessionRow
	err := p.db.Get(&srow, `SELECT game_id, owner, phase, hand_number FROM game_sessions WHERE game_id = $1`, int64(gameID))
	if err == sql.ErrNoRows {
		return nil, nil, errors.Wrapf(ErrNotFound, "game %d", gameID)
	} else if err != nil {
		return nil, nil, errors.Wrapf(err, "Unable to load session %d", gameID)
	}

	var rrow recordRow
	err = p.db.Get(&rrow, `SELECT seq, record FROM card_games WHERE game_id = $1`, int64(gameID))
	if err == sql.ErrNoRows {
		return nil, nil, errors.Wrapf(ErrNotFound, "record for game %d", gameID)
	} else if err != nil {
		return nil, nil, errors.Wrapf(err, "Unable to load record %d", gameID)
	}

	record, err := unmarshalRecord(rrow.Record)
	if err != nil {
		return nil, nil, err
	}
	session := &Session{
		GameID:     uint64(srow.GameID),
		Owner:      srow.Owner,
		Phase:      Phase(srow.Phase),
		HandNumber: uint32(srow.HandNumber),
	}
	return session, record, nil
}

func (p *PostgresLedgerStore) Save(session *Session, record *Record) error {
	recordBytes, err := marshalRecord(record)
	if err != nil {
		return err
	}

	tx, err := p.db.Beginx()
	if err != nil {
		return errors.Wrap(err, "Unable to begin transaction")
	}
	_, err = tx.Exec(upsertSessionSQL,
		int64(session.GameID), SessionAddress(session.GameID), session.Owner, string(session.Phase), int64(session.HandNumber))
	if err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "Unable to save session %d", session.GameID)
	}
	_, err = tx.Exec(upsertRecordSQL,
		int64(record.GameID), RecordAddress(record.GameID), int64(record.Seq), recordBytes)
	if err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "Unable to save record %d", record.GameID)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "Unable to commit game %d", session.GameID)
	}
	return nil
}

func (p *PostgresLedgerStore) Remove(gameID uint64) error {
	tx, err := p.db.Beginx()
	if err != nil {
		return errors.Wrap(err, "Unable to begin transaction")
	}
	if _, err := tx.Exec(`DELETE FROM game_sessions WHERE game_id = $1`, int64(gameID)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "Unable to remove session %d", gameID)
	}
	if _, err := tx.Exec(`DELETE FROM card_games WHERE game_id = $1`, int64(gameID)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "Unable to remove record %d", gameID)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "Unable to commit removal of game %d", gameID)
	}
	return nil
}
