package job

import (
	"time"

	"github.com/pkg/errors"

	"cardshuffler.com/server/game"
)

type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusExecuting Status = "EXECUTING"
	StatusFinalized Status = "FINALIZED"
	StatusFailed    Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusFailed
}

var (
	ErrAlreadyInFlight = errors.New("game already has a job in flight")
	ErrTimeout         = errors.New("timed out waiting for job finalization")
	ErrUnknownJob      = errors.New("unknown job offset")
	ErrJobFailed       = errors.New("computation job failed")
)

// Payload travels with a job: the cluster inputs and the game state the job
// was admitted against.
type Payload struct {
	Inputs game.Inputs `json:"inputs"`
	Basis  game.Basis  `json:"basis"`
}

// Job is one outstanding computation, identified by its offset.
type Job struct {
	Offset        uint64       `json:"offset"`
	GameID        uint64       `json:"gameId"`
	Kind          game.JobKind `json:"kind"`
	Payload       Payload      `json:"payload"`
	SubmittedAt   time.Time    `json:"submittedAt"`
	Status        Status       `json:"status"`
	FailureReason string       `json:"failureReason,omitempty"`
}

func (j *Job) Age() time.Duration {
	return time.Since(j.SubmittedAt)
}

// Result is delivered once to the caller awaiting a job. Event is set for a
// finalized job whose output was applied.
type Result struct {
	Offset uint64
	GameID uint64
	Kind   game.JobKind
	Status Status
	Event  *game.Event
	Err    error
}
