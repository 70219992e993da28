package poker

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Card is a deck index 0..51. The rank is index%13 (2..A) and the suit is
// index/13 (clubs, diamonds, hearts, spades).
type Card uint8

var (
	strRanks = "23456789TJQKA"
	strSuits = "cdhs"
)

var prettySuits = map[uint8]string{
	0: "♣", // clubs
	1: "♦", // diamonds
	2: "❤", // hearts
	3: "♠", // spades
}

func (c Card) Valid() bool {
	return c < DeckSize
}

func (c Card) Rank() uint8 {
	return uint8(c) % 13
}

func (c Card) Suit() uint8 {
	return uint8(c) / 13
}

func (c Card) String() string {
	if !c.Valid() {
		return "??"
	}
	return string(strRanks[c.Rank()]) + string(strSuits[c.Suit()])
}

func (c Card) PrettyString() string {
	if !c.Valid() {
		return "??"
	}
	return string(strRanks[c.Rank()]) + prettySuits[c.Suit()]
}

// ParseCard converts a two character name such as "Ah" or "Tc" to a Card.
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return 0, errors.Wrapf(ErrInvalidCard, "card name [%s]", s)
	}
	rank := strings.IndexByte(strRanks, s[0])
	suit := strings.IndexByte(strSuits, s[1])
	if rank < 0 || suit < 0 {
		return 0, errors.Wrapf(ErrInvalidCard, "card name [%s]", s)
	}
	return Card(suit*13 + rank), nil
}

func CardsToString(cards []uint8) string {
	var b strings.Builder
	b.WriteString("[")
	for i, c := range cards {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(Card(c).String())
	}
	b.WriteString("]")
	return b.String()
}

func (c Card) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, errors.Wrapf(ErrInvalidCard, "card %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Card) UnmarshalText(b []byte) error {
	card, err := ParseCard(string(b))
	if err != nil {
		return err
	}
	*c = card
	return nil
}

func (c Card) GoString() string {
	return fmt.Sprintf("Card(%s)", c.String())
}
