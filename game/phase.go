package game

import (
	"fmt"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"
)

type Phase string

const (
	PhaseWaitingToShuffle Phase = "WAITING_TO_SHUFFLE"
	PhaseShufflingDeck    Phase = "SHUFFLING_DECK"
	PhaseHoleCardsDealt   Phase = "HOLE_CARDS_DEALT"
	PhaseFlop             Phase = "FLOP"
	PhaseTurn             Phase = "TURN"
	PhaseRiver            Phase = "RIVER"
)

type Trigger string

const (
	TriggerStartHand        Trigger = "START_HAND"
	TriggerShuffleFinalized Trigger = "SHUFFLE_FINALIZED"
	TriggerRevealCommunity  Trigger = "REVEAL_COMMUNITY"
	TriggerEndHand          Trigger = "END_HAND"
)

const MaxCommunityCards = 5

// revealCounts is the exact community reveal count required from each phase.
var revealCounts = map[Phase]int{
	PhaseHoleCardsDealt: 3,
	PhaseFlop:           1,
	PhaseTurn:           1,
}

var (
	ErrIllegalTransition    = errors.New("illegal phase transition")
	ErrInvalidRevealCount   = errors.New("invalid community reveal count")
	ErrInvalidHoleCardCount = errors.New("invalid hole card count")
)

// PhaseError is returned before any job is submitted or any state changes.
type PhaseError struct {
	Phase   Phase
	Trigger string
	Err     error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s in phase %s", e.Err, e.Trigger, e.Phase)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// RequiredRevealCount returns the number of community cards revealed when
// leaving phase, or 0 if no reveal is legal there.
func RequiredRevealCount(phase Phase) int {
	return revealCounts[phase]
}

// PhaseMachine gates operations for one game session.
type PhaseMachine struct {
	sm *fsm.FSM
}

func NewPhaseMachine(phase Phase) *PhaseMachine {
	sm := fsm.NewFSM(
		string(phase),
		fsm.Events{
			{
				Name: string(TriggerStartHand),
				Src:  []string{string(PhaseWaitingToShuffle)},
				Dst:  string(PhaseShufflingDeck),
			},
			{
				Name: string(TriggerShuffleFinalized),
				Src:  []string{string(PhaseShufflingDeck)},
				Dst:  string(PhaseHoleCardsDealt),
			},
			{
				Name: string(TriggerRevealCommunity),
				Src:  []string{string(PhaseHoleCardsDealt)},
				Dst:  string(PhaseFlop),
			},
			{
				Name: string(TriggerRevealCommunity),
				Src:  []string{string(PhaseFlop)},
				Dst:  string(PhaseTurn),
			},
			{
				Name: string(TriggerRevealCommunity),
				Src:  []string{string(PhaseTurn)},
				Dst:  string(PhaseRiver),
			},
			{
				Name: string(TriggerEndHand),
				Src:  []string{string(PhaseRiver)},
				Dst:  string(PhaseWaitingToShuffle),
			},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				phaseLogger.Debug().Msgf("[%s] ===> [%s]", e.Src, e.Dst)
			},
		},
	)
	return &PhaseMachine{sm: sm}
}

func (m *PhaseMachine) Current() Phase {
	return Phase(m.sm.Current())
}

// Check validates trigger from the current phase without firing it. count is
// only used by TriggerRevealCommunity.
func (m *PhaseMachine) Check(trigger Trigger, count int) error {
	if !m.sm.Can(string(trigger)) {
		return &PhaseError{Phase: m.Current(), Trigger: string(trigger), Err: ErrIllegalTransition}
	}
	if trigger == TriggerRevealCommunity && count != RequiredRevealCount(m.Current()) {
		return &PhaseError{
			Phase:   m.Current(),
			Trigger: fmt.Sprintf("%s(%d)", trigger, count),
			Err:     ErrInvalidRevealCount,
		}
	}
	return nil
}

// Fire validates and applies trigger.
func (m *PhaseMachine) Fire(trigger Trigger, count int) (Phase, error) {
	if err := m.Check(trigger, count); err != nil {
		return m.Current(), err
	}
	if err := m.sm.Event(string(trigger)); err != nil {
		return m.Current(), errors.Wrapf(err, "Unable to fire %s", trigger)
	}
	return m.Current(), nil
}

// CheckSubmit reports whether a job of kind may be submitted from the current
// phase. count is the reveal or hole card count carried by the job.
func (m *PhaseMachine) CheckSubmit(kind JobKind, count int) error {
	switch kind {
	case JobShuffleAndDeal:
		return m.Check(TriggerShuffleFinalized, 0)
	case JobRevealCommunity:
		return m.Check(TriggerRevealCommunity, count)
	case JobChangeHand:
		return m.Check(TriggerEndHand, 0)
	case JobStoreHoleCards:
		return m.requirePhase(kind, PhaseHoleCardsDealt)
	case JobRevealSingleCard, JobRevealHand:
		return m.requirePhase(kind, PhaseRiver)
	}
	return errors.Errorf("unknown job kind %d", kind)
}

// Complete fires the transition a finalized job of kind implies, if any.
func (m *PhaseMachine) Complete(kind JobKind, count int) (Phase, error) {
	switch kind {
	case JobShuffleAndDeal:
		return m.Fire(TriggerShuffleFinalized, 0)
	case JobRevealCommunity:
		return m.Fire(TriggerRevealCommunity, count)
	case JobChangeHand:
		return m.Fire(TriggerEndHand, 0)
	case JobStoreHoleCards, JobRevealSingleCard, JobRevealHand:
		return m.Current(), m.CheckSubmit(kind, count)
	}
	return m.Current(), errors.Errorf("unknown job kind %d", kind)
}

func (m *PhaseMachine) requirePhase(kind JobKind, phase Phase) error {
	if m.Current() != phase {
		return &PhaseError{Phase: m.Current(), Trigger: kind.String(), Err: ErrIllegalTransition}
	}
	return nil
}
