package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardshuffler.com/server/game"
)

func newTestTracker(t *testing.T) *Tracker {
	tracker, err := NewTracker(16)
	require.NoError(t, err)
	return tracker
}

func TestSubmitAlreadyInFlight(t *testing.T) {
	tracker := newTestTracker(t)

	offset, err := tracker.Submit(1, game.JobShuffleAndDeal, Payload{})
	require.NoError(t, err)

	_, err = tracker.Submit(1, game.JobStoreHoleCards, Payload{})
	assert.True(t, errors.Is(err, ErrAlreadyInFlight))

	// other games are not blocked
	other, err := tracker.Submit(2, game.JobShuffleAndDeal, Payload{})
	require.NoError(t, err)
	assert.NotEqual(t, offset, other)

	require.NoError(t, tracker.Resolve(Result{Offset: offset, Status: StatusFinalized}))
	_, err = tracker.Submit(1, game.JobStoreHoleCards, Payload{})
	assert.NoError(t, err)
}

func TestSubmitAfterFailure(t *testing.T) {
	tracker := newTestTracker(t)
	offset, err := tracker.Submit(1, game.JobRevealCommunity, Payload{})
	require.NoError(t, err)
	require.NoError(t, tracker.Resolve(Result{Offset: offset, Status: StatusFailed, Err: ErrJobFailed}))

	_, err = tracker.Submit(1, game.JobRevealCommunity, Payload{})
	assert.NoError(t, err)
}

func TestAwaitFinalization(t *testing.T) {
	tracker := newTestTracker(t)
	offset, err := tracker.Submit(1, game.JobShuffleAndDeal, Payload{Basis: game.Basis{HandNumber: 1}})
	require.NoError(t, err)
	require.NoError(t, tracker.MarkExecuting(offset))

	job, live, err := tracker.Lookup(offset)
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, StatusExecuting, job.Status)
	assert.Equal(t, uint32(1), job.Payload.Basis.HandNumber)

	event := &game.Event{Type: game.EventDeckShuffled, GameID: 1}
	go func() {
		time.Sleep(10 * time.Millisecond)
		tracker.Resolve(Result{Offset: offset, Status: StatusFinalized, Event: event})
	}()

	result, err := tracker.AwaitFinalization(context.Background(), offset, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, result.Status)
	assert.Equal(t, event, result.Event)
	assert.Equal(t, game.JobShuffleAndDeal, result.Kind)
	assert.Equal(t, 0, tracker.Count())
}

func TestResultDeliveredOnce(t *testing.T) {
	tracker := newTestTracker(t)
	offset, err := tracker.Submit(1, game.JobShuffleAndDeal, Payload{})
	require.NoError(t, err)

	require.NoError(t, tracker.Resolve(Result{Offset: offset, Status: StatusFinalized}))
	err = tracker.Resolve(Result{Offset: offset, Status: StatusFinalized})
	assert.True(t, errors.Is(err, ErrUnknownJob))
}

func TestAwaitTimeoutRetiresJob(t *testing.T) {
	tracker := newTestTracker(t)
	offset, err := tracker.Submit(1, game.JobStoreHoleCards, Payload{})
	require.NoError(t, err)

	_, err = tracker.AwaitFinalization(context.Background(), offset, 20*time.Millisecond)
	assert.True(t, errors.Is(err, ErrTimeout))

	_, inFlight := tracker.InFlight(1)
	assert.False(t, inFlight)

	job, live, err := tracker.Lookup(offset)
	require.NoError(t, err)
	assert.False(t, live)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "timeout", job.FailureReason)

	// the late completion is not delivered to anyone
	err = tracker.Resolve(Result{Offset: offset, Status: StatusFinalized})
	assert.True(t, errors.Is(err, ErrUnknownJob))

	_, err = tracker.Submit(1, game.JobStoreHoleCards, Payload{})
	assert.NoError(t, err)

	tracker.Forget(offset)
	_, _, err = tracker.Lookup(offset)
	assert.True(t, errors.Is(err, ErrUnknownJob))
}

func TestAwaitCancelled(t *testing.T) {
	tracker := newTestTracker(t)
	offset, err := tracker.Submit(1, game.JobRevealHand, Payload{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tracker.AwaitFinalization(ctx, offset, time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, tracker.Count())
}

func TestAwaitUnknownOffset(t *testing.T) {
	tracker := newTestTracker(t)
	_, err := tracker.AwaitFinalization(context.Background(), 12345, time.Second)
	assert.True(t, errors.Is(err, ErrUnknownJob))
	assert.True(t, errors.Is(tracker.MarkExecuting(12345), ErrUnknownJob))
}

func TestConcurrentGames(t *testing.T) {
	tracker := newTestTracker(t)
	var wg sync.WaitGroup
	for i := uint64(1); i <= 20; i++ {
		wg.Add(1)
		go func(gameID uint64) {
			defer wg.Done()
			offset, err := tracker.Submit(gameID, game.JobShuffleAndDeal, Payload{})
			if err != nil {
				t.Error(err)
				return
			}
			go tracker.Resolve(Result{Offset: offset, Status: StatusFinalized})
			result, err := tracker.AwaitFinalization(context.Background(), offset, time.Second)
			if err != nil {
				t.Error(err)
				return
			}
			if result.GameID != gameID {
				t.Errorf("result for game %d delivered to game %d", result.GameID, gameID)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, tracker.Count())
}

func TestCancel(t *testing.T) {
	tracker := newTestTracker(t)
	offset, err := tracker.Submit(1, game.JobShuffleAndDeal, Payload{})
	require.NoError(t, err)

	tracker.Cancel(offset, errors.New("transport down"))
	_, inFlight := tracker.InFlight(1)
	assert.False(t, inFlight)
	_, err = tracker.AwaitFinalization(context.Background(), offset, time.Second)
	assert.True(t, errors.Is(err, ErrUnknownJob))
}
