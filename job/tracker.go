package job

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"cardshuffler.com/server/game"
	"cardshuffler.com/server/logging"
	"cardshuffler.com/server/util"
	"cardshuffler.com/server/util/random"
)

var trackerLogger = log.With().Str("logger_name", "job::tracker").Logger()

const maxOffsetAttempts = 8

type trackedJob struct {
	job  Job
	done chan Result
}

// Tracker holds the jobs in flight, at most one per game. Jobs that time out
// locally are retired to a bounded cache so a late completion can still be
// matched to its game and basis.
type Tracker struct {
	lock    sync.Mutex
	jobs    map[uint64]*trackedJob
	byGame  map[uint64]uint64
	waiters map[uint64]*trackedJob
	retired *lru.Cache
}

func NewTracker(retiredSize int) (*Tracker, error) {
	retired, err := lru.New(retiredSize)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create retired job cache")
	}
	return &Tracker{
		jobs:    make(map[uint64]*trackedJob),
		byGame:  make(map[uint64]uint64),
		waiters: make(map[uint64]*trackedJob),
		retired: retired,
	}, nil
}

// Submit registers a new job under a fresh random offset.
func (t *Tracker) Submit(gameID uint64, kind game.JobKind, payload Payload) (uint64, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if offset, ok := t.byGame[gameID]; ok {
		return 0, errors.Wrapf(ErrAlreadyInFlight, "game %d has %s job %d",
			gameID, t.jobs[offset].job.Kind, offset)
	}

	offset, err := t.newOffset()
	if err != nil {
		return 0, err
	}
	tj := &trackedJob{
		job: Job{
			Offset:      offset,
			GameID:      gameID,
			Kind:        kind,
			Payload:     payload,
			SubmittedAt: time.Now(),
			Status:      StatusQueued,
		},
		done: make(chan Result, 1),
	}
	t.jobs[offset] = tj
	t.waiters[offset] = tj
	t.byGame[gameID] = offset
	util.Metrics.JobSubmitted(kind.String())
	util.Metrics.SetInFlightJobsCount(len(t.jobs))

	trackerLogger.Debug().
		Uint64(logging.GameIDKey, gameID).
		Uint64(logging.OffsetKey, offset).
		Str(logging.JobKindKey, kind.String()).
		Msg("Job queued")
	return offset, nil
}

func (t *Tracker) newOffset() (uint64, error) {
	for i := 0; i < maxOffsetAttempts; i++ {
		offset, err := random.Uint64()
		if err != nil {
			return 0, err
		}
		if _, live := t.jobs[offset]; live {
			continue
		}
		if _, waiting := t.waiters[offset]; waiting {
			continue
		}
		if t.retired.Contains(offset) {
			continue
		}
		return offset, nil
	}
	return 0, errors.New("Unable to allocate a unique job offset")
}

// MarkExecuting records that the cluster picked the job up.
func (t *Tracker) MarkExecuting(offset uint64) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	tj, ok := t.jobs[offset]
	if !ok {
		return errors.Wrapf(ErrUnknownJob, "offset %d", offset)
	}
	if tj.job.Status == StatusQueued {
		tj.job.Status = StatusExecuting
	}
	return nil
}

// Resolve finishes a live job and hands result to its waiter. It frees the
// game's slot. A result for a job that is not live returns ErrUnknownJob.
func (t *Tracker) Resolve(result Result) error {
	if !result.Status.Terminal() {
		return errors.Errorf("cannot resolve job %d with status %s", result.Offset, result.Status)
	}

	t.lock.Lock()
	tj, ok := t.jobs[result.Offset]
	if !ok {
		t.lock.Unlock()
		return errors.Wrapf(ErrUnknownJob, "offset %d", result.Offset)
	}
	tj.job.Status = result.Status
	if result.Err != nil {
		tj.job.FailureReason = result.Err.Error()
	}
	t.remove(tj)
	result.GameID = tj.job.GameID
	result.Kind = tj.job.Kind
	// only one result is ever delivered
	select {
	case tj.done <- result:
	default:
	}
	t.lock.Unlock()

	switch result.Status {
	case StatusFinalized:
		util.Metrics.JobFinalized(tj.job.Kind.String())
	case StatusFailed:
		util.Metrics.JobFailed(tj.job.Kind.String())
	}
	return nil
}

// Cancel fails a job that never reached the cluster and drops its waiter.
func (t *Tracker) Cancel(offset uint64, cause error) {
	if err := t.Resolve(Result{Offset: offset, Status: StatusFailed, Err: cause}); err != nil {
		trackerLogger.Debug().Uint64(logging.OffsetKey, offset).Msg("Cancelled job was not live")
	}
	t.lock.Lock()
	delete(t.waiters, offset)
	t.lock.Unlock()
}

// AwaitFinalization blocks until the job is resolved, timeout elapses or ctx
// is done. A result resolved before the call is returned at once. A timeout
// does not cancel the job on the cluster: the job is retired, the game's slot
// is freed and ErrTimeout is returned. Each offset can be awaited once.
func (t *Tracker) AwaitFinalization(ctx context.Context, offset uint64, timeout time.Duration) (Result, error) {
	t.lock.Lock()
	tj, ok := t.waiters[offset]
	delete(t.waiters, offset)
	t.lock.Unlock()
	if !ok {
		return Result{}, errors.Wrapf(ErrUnknownJob, "offset %d", offset)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-tj.done:
		return result, nil
	case <-timer.C:
		if result, resolved := t.retire(tj, "timeout"); resolved {
			return result, nil
		}
		util.Metrics.JobTimedOut(tj.job.Kind.String())
		trackerLogger.Warn().
			Uint64(logging.GameIDKey, tj.job.GameID).
			Uint64(logging.OffsetKey, offset).
			Str(logging.JobKindKey, tj.job.Kind.String()).
			Msgf("Job not finalized after %s", timeout)
		return Result{}, errors.Wrapf(ErrTimeout, "%s job %d after %s", tj.job.Kind, offset, timeout)
	case <-ctx.Done():
		if result, resolved := t.retire(tj, "cancelled"); resolved {
			return result, nil
		}
		return Result{}, errors.Wrapf(ctx.Err(), "waiting for %s job %d", tj.job.Kind, offset)
	}
}

// retire moves a live job to the retired cache. If the job was resolved in
// the meantime its result is returned instead.
func (t *Tracker) retire(tj *trackedJob, reason string) (Result, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if _, live := t.jobs[tj.job.Offset]; !live {
		select {
		case result := <-tj.done:
			return result, true
		default:
			return Result{}, false
		}
	}
	tj.job.Status = StatusFailed
	tj.job.FailureReason = reason
	t.remove(tj)
	retired := tj.job
	t.retired.Add(tj.job.Offset, &retired)
	return Result{}, false
}

func (t *Tracker) remove(tj *trackedJob) {
	delete(t.jobs, tj.job.Offset)
	if t.byGame[tj.job.GameID] == tj.job.Offset {
		delete(t.byGame, tj.job.GameID)
	}
	util.Metrics.SetInFlightJobsCount(len(t.jobs))
}

// Lookup finds a job by offset. live is false for a job retired after a
// local timeout.
func (t *Tracker) Lookup(offset uint64) (job Job, live bool, err error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if tj, ok := t.jobs[offset]; ok {
		return tj.job, true, nil
	}
	if v, ok := t.retired.Get(offset); ok {
		return *v.(*Job), false, nil
	}
	return Job{}, false, errors.Wrapf(ErrUnknownJob, "offset %d", offset)
}

// Forget drops a retired job once its late completion has been handled.
func (t *Tracker) Forget(offset uint64) {
	t.retired.Remove(offset)
}

// InFlight returns the offset of the game's live job, if any.
func (t *Tracker) InFlight(gameID uint64) (uint64, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	offset, ok := t.byGame[gameID]
	return offset, ok
}

func (t *Tracker) Count() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.jobs)
}
