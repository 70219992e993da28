package game

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardshuffler.com/server/encryption"
	"cardshuffler.com/server/poker"
)

type recordingPublisher struct {
	events []*Event
}

func (p *recordingPublisher) Publish(event *Event) error {
	p.events = append(p.events, event)
	return nil
}

func handOutput(size uint8, dealt uint8) *Output {
	return &Output{
		DeckCommitment:  []byte("sealed-deck"),
		HoleCardsCipher: bytes.Repeat([]byte{size + 1}, encryption.HandCiphertextSize),
		HoleCardsNonce:  bytes.Repeat([]byte{dealt}, encryption.NonceSize),
		HoleCardsSize:   size,
		CardsDealt:      dealt,
	}
}

func newTestLedger(t *testing.T) (*Ledger, *recordingPublisher) {
	ledger := NewLedger(NewMemoryLedgerStore())
	publisher := &recordingPublisher{}
	ledger.SetPublisher(publisher)
	_, _, err := ledger.CreateSession(1, "alice", encryption.PublicKey{7})
	require.NoError(t, err)
	return ledger, publisher
}

func admitAndApply(t *testing.T, ledger *Ledger, kind JobKind, count uint8, output *Output) *Event {
	_, basis, err := ledger.Admit(1, kind, count)
	require.NoError(t, err)
	event, err := ledger.ApplyCompletion(1, kind, 99, basis, output)
	require.NoError(t, err)
	return event
}

func TestCreateSession(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, _, err := ledger.CreateSession(1, "bob", encryption.PublicKey{})
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	session, record, err := ledger.Load(1)
	require.NoError(t, err)
	assert.Equal(t, PhaseWaitingToShuffle, session.Phase)
	assert.Equal(t, uint32(0), session.HandNumber)
	assert.Equal(t, encryption.PublicKey{7}, record.PlayerEncPublicKey)
	for _, c := range record.CommunityCards {
		assert.Equal(t, poker.EmptyCard, c)
	}

	_, err = record.RevealedCommunityCards()
	assert.True(t, errors.Is(err, ErrNotYetRevealed))
	_, _, _, err = record.HoleCards()
	assert.True(t, errors.Is(err, ErrNotYetRevealed))
}

func TestDestroySession(t *testing.T) {
	ledger, _ := newTestLedger(t)

	err := ledger.DestroySession(1, "mallory")
	assert.True(t, errors.Is(err, ErrNotOwner))

	require.NoError(t, ledger.DestroySession(1, "alice"))
	_, _, err = ledger.Load(1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestHandLifecycle(t *testing.T) {
	ledger, publisher := newTestLedger(t)

	_, _, err := ledger.Admit(1, JobShuffleAndDeal, 2)
	assert.True(t, errors.Is(err, ErrIllegalTransition), "deal before start hand")

	session, err := ledger.StartHand(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), session.HandNumber)
	assert.Equal(t, PhaseShufflingDeck, session.Phase)

	event := admitAndApply(t, ledger, JobShuffleAndDeal, 2, handOutput(2, 2))
	assert.Equal(t, EventDeckShuffled, event.Type)
	assert.Equal(t, PhaseHoleCardsDealt, event.Phase)
	assert.Len(t, event.HoleCardsNonce, encryption.NonceSize)

	event = admitAndApply(t, ledger, JobStoreHoleCards, 1, handOutput(3, 3))
	assert.Equal(t, EventHoleCardsStored, event.Type)
	assert.Equal(t, uint8(3), event.HoleCardsSize)

	_, _, err = ledger.Admit(1, JobRevealCommunity, 2)
	assert.True(t, errors.Is(err, ErrInvalidRevealCount))

	event = admitAndApply(t, ledger, JobRevealCommunity, 3, &Output{CommunityCards: []uint8{10, 20, 30}, CardsDealt: 6})
	assert.Equal(t, EventCommunityCardsRevealed, event.Type)
	assert.Equal(t, []uint8{10, 20, 30}, event.CommunityCards)
	assert.Equal(t, uint8(3), event.NumRevealed)

	admitAndApply(t, ledger, JobRevealCommunity, 1, &Output{CommunityCards: []uint8{40}, CardsDealt: 7})
	event = admitAndApply(t, ledger, JobRevealCommunity, 1, &Output{CommunityCards: []uint8{50}, CardsDealt: 8})
	assert.Equal(t, PhaseRiver, event.Phase)
	assert.Equal(t, []uint8{10, 20, 30, 40, 50}, event.CommunityCards)

	event = admitAndApply(t, ledger, JobRevealSingleCard, 4, &Output{Card: 33})
	assert.Equal(t, EventCardRevealed, event.Type)
	assert.Equal(t, uint8(4), event.CardIndex)

	session, record, err := ledger.Load(1)
	require.NoError(t, err)
	assert.Equal(t, PhaseRiver, session.Phase)
	assert.Equal(t, uint8(3), record.HoleCardsSize)
	assert.Equal(t, uint8(5), record.CommunityCardsSize)
	assert.Equal(t, uint8(8), record.CardsDealt)

	event = admitAndApply(t, ledger, JobChangeHand, 0, handOutput(0, 0))
	assert.Equal(t, EventHandChanged, event.Type)

	session, record, err = ledger.Load(1)
	require.NoError(t, err)
	assert.Equal(t, PhaseWaitingToShuffle, session.Phase)
	assert.Equal(t, uint8(0), record.HoleCardsSize)
	assert.Equal(t, uint8(0), record.CommunityCardsSize)

	assert.Len(t, publisher.events, 7)
}

func TestEndHandResetsCounts(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.EndHand(1)
	assert.True(t, errors.Is(err, ErrIllegalTransition))

	_, err = ledger.StartHand(1)
	require.NoError(t, err)
	admitAndApply(t, ledger, JobShuffleAndDeal, 2, handOutput(2, 2))
	admitAndApply(t, ledger, JobRevealCommunity, 3, &Output{CommunityCards: []uint8{1, 2, 3}, CardsDealt: 5})
	admitAndApply(t, ledger, JobRevealCommunity, 1, &Output{CommunityCards: []uint8{4}, CardsDealt: 6})
	admitAndApply(t, ledger, JobRevealCommunity, 1, &Output{CommunityCards: []uint8{5}, CardsDealt: 7})

	session, err := ledger.EndHand(1)
	require.NoError(t, err)
	assert.Equal(t, PhaseWaitingToShuffle, session.Phase)

	_, record, err := ledger.Load(1)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), record.HoleCardsSize)
	assert.Equal(t, uint8(0), record.CommunityCardsSize)
	assert.Equal(t, uint8(0), record.CardsDealt)

	session, err = ledger.StartHand(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), session.HandNumber)
}

func TestStoreHoleCardsCeiling(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.StartHand(1)
	require.NoError(t, err)
	admitAndApply(t, ledger, JobShuffleAndDeal, 2, handOutput(2, 2))

	_, _, err = ledger.Admit(1, JobStoreHoleCards, 0)
	assert.True(t, errors.Is(err, ErrInvalidHoleCardCount))
	_, _, err = ledger.Admit(1, JobStoreHoleCards, 10)
	assert.True(t, errors.Is(err, ErrInvalidHoleCardCount))

	admitAndApply(t, ledger, JobStoreHoleCards, 9, handOutput(11, 11))
	_, _, err = ledger.Admit(1, JobStoreHoleCards, 1)
	assert.True(t, errors.Is(err, ErrInvalidHoleCardCount))
}

func TestStaleCompletionDiscarded(t *testing.T) {
	ledger, publisher := newTestLedger(t)
	_, err := ledger.StartHand(1)
	require.NoError(t, err)
	admitAndApply(t, ledger, JobShuffleAndDeal, 2, handOutput(2, 2))

	// a store job is admitted, then the game moves on before it lands
	_, staleBasis, err := ledger.Admit(1, JobStoreHoleCards, 1)
	require.NoError(t, err)
	admitAndApply(t, ledger, JobRevealCommunity, 3, &Output{CommunityCards: []uint8{1, 2, 3}, CardsDealt: 5})

	_, err = ledger.ApplyCompletion(1, JobStoreHoleCards, 5, staleBasis, handOutput(3, 3))
	assert.True(t, errors.Is(err, ErrStaleResult))
	var staleErr StaleResultError
	assert.True(t, errors.As(err, &staleErr))

	session, record, err := ledger.Load(1)
	require.NoError(t, err)
	assert.Equal(t, PhaseFlop, session.Phase)
	assert.Equal(t, uint8(2), record.HoleCardsSize)
	assert.Len(t, publisher.events, 2)
}

func TestDuplicateCompletionDiscarded(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.StartHand(1)
	require.NoError(t, err)

	_, basis, err := ledger.Admit(1, JobShuffleAndDeal, 2)
	require.NoError(t, err)
	_, err = ledger.ApplyCompletion(1, JobShuffleAndDeal, 1, basis, handOutput(2, 2))
	require.NoError(t, err)
	_, err = ledger.ApplyCompletion(1, JobShuffleAndDeal, 1, basis, handOutput(2, 2))
	assert.True(t, errors.Is(err, ErrStaleResult))
}

func TestInvalidOutputLeavesRecordUntouched(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.StartHand(1)
	require.NoError(t, err)
	admitAndApply(t, ledger, JobShuffleAndDeal, 2, handOutput(2, 2))

	_, basis, err := ledger.Admit(1, JobRevealCommunity, 3)
	require.NoError(t, err)
	_, err = ledger.ApplyCompletion(1, JobRevealCommunity, 3, basis, &Output{CommunityCards: []uint8{1, 1, 2}})
	assert.True(t, errors.Is(err, ErrInvalidOutput))

	session, record, err := ledger.Load(1)
	require.NoError(t, err)
	assert.Equal(t, PhaseHoleCardsDealt, session.Phase)
	assert.Equal(t, uint8(0), record.CommunityCardsSize)
}

func TestAddresses(t *testing.T) {
	assert.Len(t, RecordAddress(1), 64)
	assert.Equal(t, RecordAddress(42), RecordAddress(42))
	assert.NotEqual(t, RecordAddress(42), RecordAddress(43))
	assert.NotEqual(t, RecordAddress(42), SessionAddress(42))
}

func TestRevealCommunityDeckPositionChecked(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.StartHand(1)
	require.NoError(t, err)
	admitAndApply(t, ledger, JobShuffleAndDeal, 2, handOutput(2, 2))

	_, basis, err := ledger.Admit(1, JobRevealCommunity, 3)
	require.NoError(t, err)
	for _, dealt := range []uint8{0, 2, 4, 6, 53} {
		_, err = ledger.ApplyCompletion(1, JobRevealCommunity, 3, basis,
			&Output{CommunityCards: []uint8{10, 11, 12}, CardsDealt: dealt})
		assert.True(t, errors.Is(err, ErrInvalidOutput), "cards dealt %d", dealt)
	}

	session, record, err := ledger.Load(1)
	require.NoError(t, err)
	assert.Equal(t, PhaseHoleCardsDealt, session.Phase)
	assert.Equal(t, uint8(2), record.CardsDealt)
	assert.Equal(t, uint8(0), record.CommunityCardsSize)

	admitAndApply(t, ledger, JobRevealCommunity, 3, &Output{CommunityCards: []uint8{10, 11, 12}, CardsDealt: 5})
	_, basis, err = ledger.Admit(1, JobRevealCommunity, 1)
	require.NoError(t, err)
	_, err = ledger.ApplyCompletion(1, JobRevealCommunity, 1, basis, &Output{CommunityCards: []uint8{13}, CardsDealt: 1})
	assert.True(t, errors.Is(err, ErrInvalidOutput))

	_, record, err = ledger.Load(1)
	require.NoError(t, err)
	assert.Equal(t, uint8(5), record.CardsDealt)
}

func TestRevealHandValidated(t *testing.T) {
	ledger, publisher := newTestLedger(t)
	_, err := ledger.StartHand(1)
	require.NoError(t, err)
	admitAndApply(t, ledger, JobShuffleAndDeal, 2, handOutput(2, 2))
	admitAndApply(t, ledger, JobRevealCommunity, 3, &Output{CommunityCards: []uint8{10, 11, 12}, CardsDealt: 5})
	admitAndApply(t, ledger, JobRevealCommunity, 1, &Output{CommunityCards: []uint8{13}, CardsDealt: 6})
	admitAndApply(t, ledger, JobRevealCommunity, 1, &Output{CommunityCards: []uint8{14}, CardsDealt: 7})
	published := len(publisher.events)

	_, basis, err := ledger.Admit(1, JobRevealHand, 0)
	require.NoError(t, err)
	invalid := [][]uint8{
		{0},
		{0, 1, 2},
		{0, 52},
		{3, 3},
		{0, 12},
	}
	for _, cards := range invalid {
		_, err = ledger.ApplyCompletion(1, JobRevealHand, 5, basis, &Output{Cards: cards})
		assert.True(t, errors.Is(err, ErrInvalidOutput), "cards %v", cards)
	}
	assert.Len(t, publisher.events, published)

	event, err := ledger.ApplyCompletion(1, JobRevealHand, 5, basis, &Output{Cards: []uint8{0, 1}})
	require.NoError(t, err)
	assert.Equal(t, EventHandRevealed, event.Type)
	assert.Equal(t, []uint8{0, 1}, event.Cards)
}

func TestDestroySessionReleasesLock(t *testing.T) {
	ledger, _ := newTestLedger(t)
	assert.Equal(t, 1, ledger.locks.Count())

	require.NoError(t, ledger.DestroySession(1, "alice"))
	assert.Equal(t, 0, ledger.locks.Count())

	_, _, err := ledger.CreateSession(1, "bob", encryption.PublicKey{8})
	require.NoError(t, err)
	session, _, err := ledger.Load(1)
	require.NoError(t, err)
	assert.Equal(t, "bob", session.Owner)
}
