package poker

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

const (
	// MaxHandSize is the number of 6-bit slots in a packed hand.
	MaxHandSize = 11
	// DeckSize is the number of real cards; valid card values are 0..DeckSize-1.
	DeckSize = 52
	// EmptyCard fills unused slots. Values 52..63 are never cards.
	EmptyCard uint8 = 53

	bitsPerSlot = 6
	slotMask    = 1<<bitsPerSlot - 1
)

var (
	ErrInvalidSize = errors.New("invalid hand size")
	ErrInvalidCard = errors.New("invalid card value")
)

// Pack encodes up to MaxHandSize cards into a single word. The first card
// lands in slot len(cards)-1 and the last card in slot 0, padding slots above
// hold EmptyCard.
func Pack(cards []uint8) (*uint256.Int, error) {
	if len(cards) > MaxHandSize {
		return nil, errors.Wrapf(ErrInvalidSize, "cannot pack %d cards", len(cards))
	}
	value := new(uint256.Int)
	for slot := MaxHandSize - 1; slot >= len(cards); slot-- {
		value.Lsh(value, bitsPerSlot)
		value.Or(value, uint256.NewInt(uint64(EmptyCard)))
	}
	for i, card := range cards {
		if card >= DeckSize {
			return nil, errors.Wrapf(ErrInvalidCard, "card %d at position %d", card, i)
		}
		value.Lsh(value, bitsPerSlot)
		value.Or(value, uint256.NewInt(uint64(card)))
	}
	return value, nil
}

// Unpack reads the lowest handSize slots of value, drops sentinel slots and
// returns the cards in the order they were packed.
func Unpack(value *uint256.Int, handSize uint8) ([]uint8, error) {
	if handSize > MaxHandSize {
		return nil, errors.Wrapf(ErrInvalidSize, "hand size %d exceeds %d", handSize, MaxHandSize)
	}
	if value == nil {
		value = new(uint256.Int)
	}
	slots := make([]uint8, 0, MaxHandSize)
	v := new(uint256.Int).Set(value)
	mask := uint256.NewInt(slotMask)
	for i := 0; i < MaxHandSize; i++ {
		slot := new(uint256.Int).And(v, mask)
		slots = append(slots, uint8(slot.Uint64()))
		v.Rsh(v, bitsPerSlot)
	}

	cards := make([]uint8, 0, handSize)
	for _, slot := range slots[:handSize] {
		if slot < DeckSize {
			cards = append(cards, slot)
		}
	}
	for i, j := 0, len(cards)-1; i < j; i, j = i+1, j-1 {
		cards[i], cards[j] = cards[j], cards[i]
	}
	return cards, nil
}

// EmptyHand is the packed form of a hand with no cards.
func EmptyHand() *uint256.Int {
	value, _ := Pack(nil)
	return value
}
