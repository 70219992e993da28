package game

import (
	"strconv"
	"sync"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"cardshuffler.com/server/encryption"
	"cardshuffler.com/server/logging"
	"cardshuffler.com/server/poker"
)

var ledgerLogger = log.With().Str("logger_name", "game::ledger").Logger()
var phaseLogger = log.With().Str("logger_name", "game::phase").Logger()

// Basis is the state a job was admitted against. A completion only applies
// while the game is still at its basis.
type Basis struct {
	HandNumber uint32 `json:"handNumber"`
	Seq        uint64 `json:"seq"`
	Count      uint8  `json:"count"`
}

// Ledger is the single serialization point for game state. Every mutation of
// a session or record goes through it under a per-game lock.
type Ledger struct {
	store     LedgerStore
	locks     cmap.ConcurrentMap
	publisher EventPublisher
}

func NewLedger(store LedgerStore) *Ledger {
	return &Ledger{
		store: store,
		locks: cmap.New(),
	}
}

// SetPublisher installs a publisher that receives every applied event.
func (l *Ledger) SetPublisher(publisher EventPublisher) {
	l.publisher = publisher
}

// lock serializes work on one game. A waiter that wakes on a mutex which was
// dropped by DestroySession starts over with the current one.
func (l *Ledger) lock(gameID uint64) func() {
	key := lockKey(gameID)
	for {
		l.locks.SetIfAbsent(key, &sync.Mutex{})
		v, ok := l.locks.Get(key)
		if !ok {
			continue
		}
		mu := v.(*sync.Mutex)
		mu.Lock()
		if cur, ok := l.locks.Get(key); ok && cur == mu {
			return mu.Unlock
		}
		mu.Unlock()
	}
}

func lockKey(gameID uint64) string {
	return strconv.FormatUint(gameID, 10)
}

func (l *Ledger) CreateSession(gameID uint64, owner string, playerKey encryption.PublicKey) (*Session, *Record, error) {
	unlock := l.lock(gameID)
	defer unlock()

	_, _, err := l.store.Load(gameID)
	if err == nil {
		return nil, nil, errors.Wrapf(ErrAlreadyExists, "game %d", gameID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	session := NewSession(gameID, owner)
	record := NewRecord(gameID, playerKey)
	if err := l.store.Save(session, record); err != nil {
		return nil, nil, err
	}
	ledgerLogger.Info().
		Uint64(logging.GameIDKey, gameID).
		Str("owner", owner).
		Msg("Game session created")
	return session, record, nil
}

func (l *Ledger) DestroySession(gameID uint64, owner string) error {
	unlock := l.lock(gameID)
	defer unlock()

	session, _, err := l.store.Load(gameID)
	if err != nil {
		return err
	}
	if session.Owner != owner {
		return errors.Wrapf(ErrNotOwner, "game %d", gameID)
	}
	if err := l.store.Remove(gameID); err != nil {
		return err
	}
	// still held, so no other caller can be using this entry
	l.locks.Remove(lockKey(gameID))
	ledgerLogger.Info().Uint64(logging.GameIDKey, gameID).Msg("Game session destroyed")
	return nil
}

// Load returns copies of the session and record. Reads observe every
// completion applied before they started.
func (l *Ledger) Load(gameID uint64) (*Session, *Record, error) {
	unlock := l.lock(gameID)
	defer unlock()
	return l.store.Load(gameID)
}

// StartHand moves the game to ShufflingDeck and starts a new hand number.
func (l *Ledger) StartHand(gameID uint64) (*Session, error) {
	return l.localTransition(gameID, TriggerStartHand, func(session *Session, record *Record) {
		session.HandNumber++
		record.resetCards()
	})
}

// EndHand resets the card counts and returns the game to WaitingToShuffle.
func (l *Ledger) EndHand(gameID uint64) (*Session, error) {
	return l.localTransition(gameID, TriggerEndHand, func(session *Session, record *Record) {
		record.resetCards()
	})
}

func (l *Ledger) localTransition(gameID uint64, trigger Trigger, mutate func(*Session, *Record)) (*Session, error) {
	unlock := l.lock(gameID)
	defer unlock()

	session, record, err := l.store.Load(gameID)
	if err != nil {
		return nil, err
	}
	phase, err := session.Machine().Fire(trigger, 0)
	if err != nil {
		return nil, err
	}
	session.Phase = phase
	mutate(session, record)
	record.Seq++
	if err := l.store.Save(session, record); err != nil {
		return nil, err
	}
	ledgerLogger.Info().
		Uint64(logging.GameIDKey, gameID).
		Uint32(logging.HandNumKey, session.HandNumber).
		Str(logging.PhaseKey, string(phase)).
		Msgf("%s applied", trigger)
	return session, nil
}

// Admit checks that a job of kind may be submitted now and returns the
// cluster inputs and the basis the result must later match. count is the
// number of cards for deal, store and reveal jobs, or the deck index for a
// single card reveal.
func (l *Ledger) Admit(gameID uint64, kind JobKind, count uint8) (Inputs, Basis, error) {
	unlock := l.lock(gameID)
	defer unlock()

	session, record, err := l.store.Load(gameID)
	if err != nil {
		return Inputs{}, Basis{}, err
	}
	if err := session.Machine().CheckSubmit(kind, int(count)); err != nil {
		return Inputs{}, Basis{}, err
	}

	inputs := record.Inputs()
	switch kind {
	case JobShuffleAndDeal:
		if count < 1 || count > poker.MaxHandSize {
			return Inputs{}, Basis{}, holeCardCountError(session, kind, count)
		}
		inputs.NumCards = count
	case JobStoreHoleCards:
		if count < 1 || int(record.HoleCardsSize)+int(count) > poker.MaxHandSize ||
			int(record.CardsDealt)+int(count) > poker.DeckSize {
			return Inputs{}, Basis{}, holeCardCountError(session, kind, count)
		}
		inputs.NumCards = count
	case JobRevealCommunity:
		inputs.NumCards = count
	case JobRevealSingleCard:
		if count >= record.CardsDealt {
			return Inputs{}, Basis{}, errors.Wrapf(poker.ErrInvalidCard,
				"deck index %d has not been dealt in game %d", count, gameID)
		}
		inputs.CardIndex = count
	case JobChangeHand, JobRevealHand:
	}

	basis := Basis{HandNumber: session.HandNumber, Seq: record.Seq, Count: count}
	return inputs, basis, nil
}

func holeCardCountError(session *Session, kind JobKind, count uint8) error {
	return &PhaseError{
		Phase:   session.Phase,
		Trigger: kind.String() + "(" + strconv.Itoa(int(count)) + ")",
		Err:     ErrInvalidHoleCardCount,
	}
}

// ApplyCompletion is the only path that writes computation results. It
// applies output atomically with its phase transition, or rejects it whole
// with a StaleResultError when the game has moved past basis.
func (l *Ledger) ApplyCompletion(gameID uint64, kind JobKind, offset uint64, basis Basis, output *Output) (*Event, error) {
	unlock := l.lock(gameID)
	defer unlock()

	session, record, err := l.store.Load(gameID)
	if err != nil {
		return nil, err
	}
	if session.HandNumber != basis.HandNumber {
		return nil, StaleResultError{GameID: gameID, Kind: kind,
			Reason: "hand " + strconv.Itoa(int(basis.HandNumber)) + " is over"}
	}
	if record.Seq != basis.Seq {
		return nil, StaleResultError{GameID: gameID, Kind: kind, Reason: "record changed since submission"}
	}
	phase, err := session.Machine().Complete(kind, int(basis.Count))
	if err != nil {
		return nil, StaleResultError{GameID: gameID, Kind: kind, Reason: err.Error()}
	}
	if output == nil {
		return nil, errors.Wrapf(ErrInvalidOutput, "%s result for game %d has no output", kind, gameID)
	}

	event := &Event{
		Type:       eventTypeFor(kind),
		GameID:     gameID,
		HandNumber: session.HandNumber,
		Offset:     offset,
		Phase:      phase,
	}
	mutated := true
	switch kind {
	case JobShuffleAndDeal:
		if output.HoleCardsSize != basis.Count {
			return nil, errors.Wrapf(ErrInvalidOutput, "dealt %d hole cards, expected %d", output.HoleCardsSize, basis.Count)
		}
		record.resetCards()
		record.DeckCommitment = append([]byte(nil), output.DeckCommitment...)
		if err := record.setHoleCards(output); err != nil {
			return nil, err
		}
	case JobStoreHoleCards:
		if int(output.HoleCardsSize) != int(record.HoleCardsSize)+int(basis.Count) {
			return nil, errors.Wrapf(ErrInvalidOutput, "hand size %d after storing %d onto %d",
				output.HoleCardsSize, basis.Count, record.HoleCardsSize)
		}
		if err := record.setHoleCards(output); err != nil {
			return nil, err
		}
	case JobRevealCommunity:
		// the cluster draws exactly the revealed cards from the deck position
		if int(output.CardsDealt) != int(record.CardsDealt)+int(basis.Count) {
			return nil, errors.Wrapf(ErrInvalidOutput, "cards dealt %d after revealing %d from %d",
				output.CardsDealt, basis.Count, record.CardsDealt)
		}
		if err := record.addCommunityCards(output.CommunityCards, basis.Count); err != nil {
			return nil, err
		}
		record.CardsDealt = output.CardsDealt
		event.CommunityCards, _ = record.RevealedCommunityCards()
		event.NumRevealed = record.CommunityCardsSize
	case JobChangeHand:
		if output.HoleCardsSize != 0 {
			return nil, errors.Wrapf(ErrInvalidOutput, "changed hand holds %d cards", output.HoleCardsSize)
		}
		record.resetCards()
		if err := record.setHoleCards(output); err != nil {
			return nil, err
		}
	case JobRevealSingleCard:
		if output.Card >= poker.DeckSize {
			return nil, errors.Wrapf(ErrInvalidOutput, "revealed card %d", output.Card)
		}
		mutated = false
		event.CardIndex = basis.Count
		event.Card = output.Card
	case JobRevealHand:
		if err := record.checkRevealedHand(output.Cards); err != nil {
			return nil, err
		}
		mutated = false
		event.Cards = append([]uint8(nil), output.Cards...)
	}

	switch kind {
	case JobShuffleAndDeal, JobStoreHoleCards:
		event.HoleCardsCipher = append([]byte(nil), record.HoleCardsCipher...)
		event.HoleCardsNonce = append([]byte(nil), record.HoleCardsNonce[:]...)
		event.HoleCardsSize = record.HoleCardsSize
	}

	if mutated {
		session.Phase = phase
		record.Seq++
		if err := l.store.Save(session, record); err != nil {
			return nil, err
		}
	}

	ledgerLogger.Info().
		Uint64(logging.GameIDKey, gameID).
		Uint64(logging.OffsetKey, offset).
		Str(logging.JobKindKey, kind.String()).
		Str(logging.PhaseKey, string(phase)).
		Msgf("%s applied", event.Type)

	if l.publisher != nil {
		if err := l.publisher.Publish(event); err != nil {
			ledgerLogger.Error().Err(err).
				Uint64(logging.GameIDKey, gameID).
				Msgf("Unable to publish %s", event.Type)
		}
	}
	return event, nil
}

func (r *Record) setHoleCards(output *Output) error {
	if output.HoleCardsSize > poker.MaxHandSize {
		return errors.Wrapf(ErrInvalidOutput, "hand size %d", output.HoleCardsSize)
	}
	if len(output.HoleCardsNonce) != encryption.NonceSize {
		return errors.Wrapf(ErrInvalidOutput, "nonce is %d bytes", len(output.HoleCardsNonce))
	}
	if len(output.HoleCardsCipher) != encryption.HandCiphertextSize {
		return errors.Wrapf(ErrInvalidOutput, "hand ciphertext is %d bytes", len(output.HoleCardsCipher))
	}
	if output.CardsDealt < r.CardsDealt || output.CardsDealt > poker.DeckSize {
		return errors.Wrapf(ErrInvalidOutput, "cards dealt %d", output.CardsDealt)
	}
	r.HoleCardsCipher = append([]byte(nil), output.HoleCardsCipher...)
	copy(r.HoleCardsNonce[:], output.HoleCardsNonce)
	r.HoleCardsSize = output.HoleCardsSize
	r.CardsDealt = output.CardsDealt
	return nil
}

func (r *Record) addCommunityCards(cards []uint8, expected uint8) error {
	if len(cards) != int(expected) || int(r.CommunityCardsSize)+len(cards) > MaxCommunityCards {
		return errors.Wrapf(ErrInvalidOutput, "revealed %d community cards, expected %d", len(cards), expected)
	}
	seen := make(map[uint8]bool, MaxCommunityCards)
	for _, c := range r.CommunityCards[:r.CommunityCardsSize] {
		seen[c] = true
	}
	for _, c := range cards {
		if c >= poker.DeckSize || seen[c] {
			return errors.Wrapf(ErrInvalidOutput, "invalid or duplicate community card %d", c)
		}
		seen[c] = true
	}
	copy(r.CommunityCards[r.CommunityCardsSize:], cards)
	r.CommunityCardsSize += uint8(len(cards))
	return nil
}

// checkRevealedHand accepts a hand of the record's size whose cards are
// distinct and not on the board.
func (r *Record) checkRevealedHand(cards []uint8) error {
	if len(cards) != int(r.HoleCardsSize) {
		return errors.Wrapf(ErrInvalidOutput, "revealed %d hole cards, hand holds %d", len(cards), r.HoleCardsSize)
	}
	seen := make(map[uint8]bool, MaxCommunityCards+len(cards))
	for _, c := range r.CommunityCards[:r.CommunityCardsSize] {
		seen[c] = true
	}
	for _, c := range cards {
		if c >= poker.DeckSize || seen[c] {
			return errors.Wrapf(ErrInvalidOutput, "invalid or duplicate hole card %d", c)
		}
		seen[c] = true
	}
	return nil
}
