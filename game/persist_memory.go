package game

import (
	"sync"

	"github.com/pkg/errors"
)

type MemoryLedgerStore struct {
	mu       sync.RWMutex
	sessions map[uint64][]byte
	records  map[uint64][]byte
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		sessions: make(map[uint64][]byte),
		records:  make(map[uint64][]byte),
	}
}

func (m *MemoryLedgerStore) Load(gameID uint64) (*Session, *Record, error) {
	m.mu.RLock()
	sessionBytes, ok := m.sessions[gameID]
	recordBytes := m.records[gameID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, errors.Wrapf(ErrNotFound, "game %d", gameID)
	}

	session, err := unmarshalSession(sessionBytes)
	if err != nil {
		return nil, nil, err
	}
	record, err := unmarshalRecord(recordBytes)
	if err != nil {
		return nil, nil, err
	}
	return session, record, nil
}

func (m *MemoryLedgerStore) Save(session *Session, record *Record) error {
	sessionBytes, err := marshalSession(session)
	if err != nil {
		return err
	}
	recordBytes, err := marshalRecord(record)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.GameID] = sessionBytes
	m.records[record.GameID] = recordBytes
	return nil
}

func (m *MemoryLedgerStore) Remove(gameID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, gameID)
	delete(m.records, gameID)
	return nil
}
