package poker

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		cards []uint8
	}{
		{"empty", []uint8{}},
		{"single", []uint8{0}},
		{"two hole cards", []uint8{12, 51}},
		{"three", []uint8{7, 33, 2}},
		{"full hand", []uint8{51, 50, 49, 48, 47, 0, 1, 2, 3, 4, 5}},
		{"all aces and kings", []uint8{12, 25, 38, 51, 11, 24, 37, 50}},
	}

	for _, tc := range testCases {
		packed, err := Pack(tc.cards)
		if err != nil {
			t.Fatalf("%s: pack failed: %v", tc.name, err)
		}
		unpacked, err := Unpack(packed, uint8(len(tc.cards)))
		if err != nil {
			t.Fatalf("%s: unpack failed: %v", tc.name, err)
		}
		if !cmp.Equal(unpacked, tc.cards) {
			t.Errorf("%s: %v != %v", tc.name, unpacked, tc.cards)
		}
	}
}

func TestPackUnpackRandomHands(t *testing.T) {
	randGen := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		size := randGen.Intn(MaxHandSize + 1)
		deck := NewDeck(randGen)
		cards, err := deck.Draw(size)
		if err != nil {
			t.Fatal(err)
		}
		packed, err := Pack(cards)
		if err != nil {
			t.Fatal(err)
		}
		unpacked, err := Unpack(packed, uint8(size))
		if err != nil {
			t.Fatal(err)
		}
		if !cmp.Equal(unpacked, cards) {
			t.Fatalf("%v != %v", unpacked, cards)
		}
	}
}

func TestPackLayout(t *testing.T) {
	packed, err := Pack([]uint8{5, 9})
	if err != nil {
		t.Fatal(err)
	}
	// slot 0 holds the last card, slot 1 the first, slots above are padding.
	if got := packed.Uint64() & 0x3f; got != 9 {
		t.Errorf("slot 0 = %d, expected 9", got)
	}
	if got := (packed.Uint64() >> 6) & 0x3f; got != 5 {
		t.Errorf("slot 1 = %d, expected 5", got)
	}
	if got := (packed.Uint64() >> 12) & 0x3f; got != uint64(EmptyCard) {
		t.Errorf("slot 2 = %d, expected sentinel", got)
	}
	if packed.BitLen() > MaxHandSize*bitsPerSlot {
		t.Errorf("packed value uses %d bits", packed.BitLen())
	}
}

func TestPackErrors(t *testing.T) {
	_, err := Pack(make([]uint8, MaxHandSize+1))
	if !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
	_, err = Pack([]uint8{1, 52})
	if !errors.Is(err, ErrInvalidCard) {
		t.Errorf("expected ErrInvalidCard, got %v", err)
	}
}

func TestUnpackInvalidSize(t *testing.T) {
	_, err := Unpack(uint256.NewInt(0), MaxHandSize+1)
	if !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
}

func TestUnpackDropsSentinels(t *testing.T) {
	cards, err := Unpack(EmptyHand(), MaxHandSize)
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 0 {
		t.Errorf("expected no cards from an empty hand, got %v", cards)
	}

	// slot 1 holds 60, which is reserved and never a card.
	value := uint256.NewInt(60<<6 | 4)
	cards, err = Unpack(value, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(cards, []uint8{4}) {
		t.Errorf("unexpected cards %v", cards)
	}
}
