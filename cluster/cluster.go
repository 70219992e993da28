package cluster

import (
	"context"

	"cardshuffler.com/server/game"
	"cardshuffler.com/server/job"
)

// Request asks the compute cluster to run one job. Offset identifies the job
// and the cluster executes each offset at most once.
type Request struct {
	Offset uint64       `json:"offset"`
	GameID uint64       `json:"gameId"`
	Kind   game.JobKind `json:"kind"`
	Inputs game.Inputs  `json:"inputs"`
}

// Completion reports progress for an offset. Status is Executing once the
// job is picked up, then Finalized with Output or Failed with Error.
type Completion struct {
	Offset uint64       `json:"offset"`
	GameID uint64       `json:"gameId"`
	Kind   game.JobKind `json:"kind"`
	Status job.Status   `json:"status"`
	Output *game.Output `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
}

type CompletionHandler func(Completion)

// Cluster is the external confidential compute collaborator.
type Cluster interface {
	Submit(ctx context.Context, req Request) error
	OnCompletion(handler CompletionHandler)
}
