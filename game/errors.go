package game

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotYetRevealed = errors.New("cards not yet revealed")
	ErrNotFound       = errors.New("game not found")
	ErrAlreadyExists  = errors.New("game already exists")
	ErrStaleResult    = errors.New("stale computation result")
	ErrNotOwner       = errors.New("caller does not own the game session")
)

// StaleResultError describes a finalized result that no longer applies to
// the current game state.
type StaleResultError struct {
	GameID uint64
	Kind   JobKind
	Reason string
}

func (e StaleResultError) Error() string {
	return fmt.Sprintf("stale %s result for game %d: %s", e.Kind, e.GameID, e.Reason)
}

func (e StaleResultError) Unwrap() error {
	return ErrStaleResult
}

// ErrInvalidOutput marks a finalized result whose payload does not fit the
// record it is applied to.
var ErrInvalidOutput = errors.New("invalid computation output")
