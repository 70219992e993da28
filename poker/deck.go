package poker

import (
	crypto_rand "crypto/rand"
	"encoding/binary"
	"math/rand"

	"github.com/pkg/errors"
)

// cryptoSource feeds math/rand from crypto/rand.
type cryptoSource struct{}

func (cryptoSource) Seed(int64) {}

func (s cryptoSource) Int63() int64 {
	return int64(s.Uint64() & (1<<63 - 1))
}

func (cryptoSource) Uint64() uint64 {
	var b [8]byte
	if _, err := crypto_rand.Read(b[:]); err != nil {
		panic("cannot read from cryptographically secure random number generator")
	}
	return binary.LittleEndian.Uint64(b[:])
}

// Deck is an ordered deck with a draw position.
type Deck struct {
	cards []uint8
	dealt int
}

// NewDeck returns a shuffled deck. A nil source uses crypto/rand.
func NewDeck(source rand.Source) *Deck {
	if source == nil {
		source = cryptoSource{}
	}
	deck := NewDeckNoShuffle()
	deck.shuffle(rand.New(source))
	return deck
}

func NewDeckNoShuffle() *Deck {
	cards := make([]uint8, DeckSize)
	for i := range cards {
		cards[i] = uint8(i)
	}
	return &Deck{cards: cards}
}

func (deck *Deck) shuffle(randGen *rand.Rand) {
	for i := len(deck.cards) - 1; i > 0; i-- {
		j := randGen.Intn(i + 1)
		deck.cards[i], deck.cards[j] = deck.cards[j], deck.cards[i]
	}
}

// Draw takes the next n cards.
func (deck *Deck) Draw(n int) ([]uint8, error) {
	if n < 0 || deck.dealt+n > len(deck.cards) {
		return nil, errors.Errorf("cannot draw %d cards, %d dealt of %d", n, deck.dealt, len(deck.cards))
	}
	cards := make([]uint8, n)
	copy(cards, deck.cards[deck.dealt:deck.dealt+n])
	deck.dealt += n
	return cards, nil
}

// Peek returns the card at index without moving the draw position.
func (deck *Deck) Peek(index int) (uint8, error) {
	if index < 0 || index >= len(deck.cards) {
		return 0, errors.Wrapf(ErrInvalidCard, "deck index %d", index)
	}
	return deck.cards[index], nil
}

func (deck *Deck) Dealt() int {
	return deck.dealt
}

func (deck *Deck) Empty() bool {
	return deck.dealt == len(deck.cards)
}

// GetBytes returns the deck order followed by the draw position.
func (deck *Deck) GetBytes() []byte {
	out := make([]byte, len(deck.cards)+1)
	copy(out, deck.cards)
	out[len(deck.cards)] = uint8(deck.dealt)
	return out
}

func DeckFromBytes(b []byte) (*Deck, error) {
	if len(b) != DeckSize+1 {
		return nil, errors.Errorf("invalid deck encoding length %d", len(b))
	}
	seen := make(map[uint8]bool, DeckSize)
	cards := make([]uint8, DeckSize)
	for i, c := range b[:DeckSize] {
		if c >= DeckSize || seen[c] {
			return nil, errors.Wrapf(ErrInvalidCard, "deck position %d holds %d", i, c)
		}
		seen[c] = true
		cards[i] = c
	}
	dealt := int(b[DeckSize])
	if dealt > DeckSize {
		return nil, errors.Errorf("invalid draw position %d", dealt)
	}
	return &Deck{cards: cards, dealt: dealt}, nil
}

func (deck *Deck) SetDealt(dealt int) error {
	if dealt < 0 || dealt > len(deck.cards) {
		return errors.Errorf("invalid draw position %d", dealt)
	}
	deck.dealt = dealt
	return nil
}

func (deck *Deck) PrettyPrint() string {
	return CardsToString(deck.cards[deck.dealt:])
}
