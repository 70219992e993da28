package game

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// JobKind is the closed set of computations the cluster runs.
type JobKind uint8

const (
	JobShuffleAndDeal JobKind = iota + 1
	JobStoreHoleCards
	JobRevealCommunity
	JobChangeHand
	JobRevealSingleCard
	JobRevealHand
)

var AllJobKinds = []JobKind{
	JobShuffleAndDeal,
	JobStoreHoleCards,
	JobRevealCommunity,
	JobChangeHand,
	JobRevealSingleCard,
	JobRevealHand,
}

func (k JobKind) String() string {
	switch k {
	case JobShuffleAndDeal:
		return "SHUFFLE_AND_DEAL"
	case JobStoreHoleCards:
		return "STORE_HOLE_CARDS"
	case JobRevealCommunity:
		return "REVEAL_COMMUNITY"
	case JobChangeHand:
		return "CHANGE_HAND"
	case JobRevealSingleCard:
		return "REVEAL_SINGLE_CARD"
	case JobRevealHand:
		return "REVEAL_HAND"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
}

func ParseJobKind(s string) (JobKind, error) {
	for _, k := range AllJobKinds {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown job kind [%s]", s)
}

func (k JobKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *JobKind) UnmarshalText(b []byte) error {
	kind, err := ParseJobKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Inputs is what the cluster needs to run a job. Hole card inputs are the
// current encrypted hand, never plaintext.
type Inputs struct {
	PlayerPublicKey []byte `json:"playerPublicKey"`
	NumCards        uint8  `json:"numCards,omitempty"`
	CardIndex       uint8  `json:"cardIndex,omitempty"`
	DeckCommitment  []byte `json:"deckCommitment,omitempty"`
	HoleCardsCipher []byte `json:"holeCardsCipher,omitempty"`
	HoleCardsNonce  []byte `json:"holeCardsNonce,omitempty"`
	HoleCardsSize   uint8  `json:"holeCardsSize"`
	CardsDealt      uint8  `json:"cardsDealt"`
}

// Output is the result payload of a finalized job. Hole cards come back as
// authenticated ciphertext; community and public reveals are plaintext.
type Output struct {
	DeckCommitment  []byte  `json:"deckCommitment,omitempty"`
	HoleCardsCipher []byte  `json:"holeCardsCipher,omitempty"`
	HoleCardsNonce  []byte  `json:"holeCardsNonce,omitempty"`
	HoleCardsSize   uint8   `json:"holeCardsSize"`
	CardsDealt      uint8   `json:"cardsDealt"`
	CommunityCards  []uint8 `json:"communityCards,omitempty"`
	CardIndex       uint8   `json:"cardIndex,omitempty"`
	Card            uint8   `json:"card,omitempty"`
	Cards           []uint8 `json:"cards,omitempty"`
}
