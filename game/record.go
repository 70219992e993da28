package game

import (
	"github.com/pkg/errors"

	"cardshuffler.com/server/encryption"
	"cardshuffler.com/server/poker"
)

// Record is the confidential per-game state. Only the ledger's completion
// path and the end-of-hand reset change it.
type Record struct {
	GameID             uint64                   `json:"gameId"`
	DeckCommitment     []byte                   `json:"deckCommitment,omitempty"`
	HoleCardsCipher    []byte                   `json:"holeCardsCipher,omitempty"`
	HoleCardsNonce     encryption.Nonce         `json:"holeCardsNonce"`
	HoleCardsSize      uint8                    `json:"holeCardsSize"`
	CommunityCards     [MaxCommunityCards]uint8 `json:"communityCards"`
	CommunityCardsSize uint8                    `json:"communityCardsSize"`
	CardsDealt         uint8                    `json:"cardsDealt"`
	PlayerEncPublicKey encryption.PublicKey     `json:"playerEncPublicKey"`
	// Seq increases with every mutation and identifies the state a job was
	// submitted against.
	Seq uint64 `json:"seq"`
}

func NewRecord(gameID uint64, playerKey encryption.PublicKey) *Record {
	r := &Record{
		GameID:             gameID,
		PlayerEncPublicKey: playerKey,
	}
	r.resetCards()
	return r
}

func (r *Record) resetCards() {
	r.HoleCardsSize = 0
	r.CommunityCardsSize = 0
	r.CardsDealt = 0
	for i := range r.CommunityCards {
		r.CommunityCards[i] = poker.EmptyCard
	}
}

// HoleCards returns the encrypted hand and its nonce.
func (r *Record) HoleCards() ([]byte, encryption.Nonce, uint8, error) {
	if r.HoleCardsSize == 0 {
		return nil, encryption.Nonce{}, 0, errors.Wrapf(ErrNotYetRevealed, "game %d has no hole cards", r.GameID)
	}
	cipher := make([]byte, len(r.HoleCardsCipher))
	copy(cipher, r.HoleCardsCipher)
	return cipher, r.HoleCardsNonce, r.HoleCardsSize, nil
}

// RevealedCommunityCards returns the community cards revealed so far.
func (r *Record) RevealedCommunityCards() ([]uint8, error) {
	if r.CommunityCardsSize == 0 {
		return nil, errors.Wrapf(ErrNotYetRevealed, "game %d has no community cards", r.GameID)
	}
	cards := make([]uint8, r.CommunityCardsSize)
	copy(cards, r.CommunityCards[:r.CommunityCardsSize])
	return cards, nil
}

func (r *Record) Clone() *Record {
	c := *r
	c.DeckCommitment = append([]byte(nil), r.DeckCommitment...)
	c.HoleCardsCipher = append([]byte(nil), r.HoleCardsCipher...)
	return &c
}

// Inputs builds the cluster inputs for a job against this record.
func (r *Record) Inputs() Inputs {
	return Inputs{
		PlayerPublicKey: append([]byte(nil), r.PlayerEncPublicKey[:]...),
		DeckCommitment:  append([]byte(nil), r.DeckCommitment...),
		HoleCardsCipher: append([]byte(nil), r.HoleCardsCipher...),
		HoleCardsNonce:  append([]byte(nil), r.HoleCardsNonce[:]...),
		HoleCardsSize:   r.HoleCardsSize,
		CardsDealt:      r.CardsDealt,
	}
}
