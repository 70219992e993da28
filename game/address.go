package game

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

const (
	recordSeed  = "card_game"
	sessionSeed = "game_session"
)

func deriveAddress(seed string, gameID uint64) string {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], gameID)
	h := sha256.New()
	h.Write([]byte(seed))
	h.Write(id[:])
	return hex.EncodeToString(h.Sum(nil))
}

// RecordAddress is the deterministic ledger address of a game's record.
func RecordAddress(gameID uint64) string {
	return deriveAddress(recordSeed, gameID)
}

// SessionAddress is the deterministic ledger address of a game's session.
func SessionAddress(gameID uint64) string {
	return deriveAddress(sessionSeed, gameID)
}
