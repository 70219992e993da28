package game

type EventType string

const (
	EventDeckShuffled           EventType = "DECK_SHUFFLED"
	EventHoleCardsStored        EventType = "HOLE_CARDS_STORED"
	EventCommunityCardsRevealed EventType = "COMMUNITY_CARDS_REVEALED"
	EventHandChanged            EventType = "HAND_CHANGED"
	EventCardRevealed           EventType = "CARD_REVEALED"
	EventHandRevealed           EventType = "HAND_REVEALED"
)

// Event is emitted by the ledger when a finalized result is applied. Its
// payload matches the record at the moment of emission.
type Event struct {
	Type       EventType `json:"type"`
	GameID     uint64    `json:"gameId"`
	HandNumber uint32    `json:"handNumber"`
	Offset     uint64    `json:"offset"`
	Phase      Phase     `json:"phase"`

	HoleCardsCipher []byte  `json:"holeCardsCipher,omitempty"`
	HoleCardsNonce  []byte  `json:"holeCardsNonce,omitempty"`
	HoleCardsSize   uint8   `json:"holeCardsSize,omitempty"`
	CommunityCards  []uint8 `json:"communityCards,omitempty"`
	NumRevealed     uint8   `json:"numRevealed,omitempty"`
	CardIndex       uint8   `json:"cardIndex,omitempty"`
	Card            uint8   `json:"card,omitempty"`
	Cards           []uint8 `json:"cards,omitempty"`
}

// EventPublisher receives every applied event, after it is persisted.
type EventPublisher interface {
	Publish(event *Event) error
}

func eventTypeFor(kind JobKind) EventType {
	switch kind {
	case JobShuffleAndDeal:
		return EventDeckShuffled
	case JobStoreHoleCards:
		return EventHoleCardsStored
	case JobRevealCommunity:
		return EventCommunityCardsRevealed
	case JobChangeHand:
		return EventHandChanged
	case JobRevealSingleCard:
		return EventCardRevealed
	case JobRevealHand:
		return EventHandRevealed
	}
	return ""
}
