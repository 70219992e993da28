package driver

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	cmap "github.com/orcaman/concurrent-map"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"cardshuffler.com/server/cluster"
	"cardshuffler.com/server/crashtest"
	"cardshuffler.com/server/encryption"
	"cardshuffler.com/server/game"
	"cardshuffler.com/server/job"
	"cardshuffler.com/server/logging"
	"cardshuffler.com/server/poker"
	"cardshuffler.com/server/util"
)

var driverLogger = log.With().Str("logger_name", "driver::driver").Logger()

// Driver sequences the steps of a hand for one client session. It owns the
// session's ephemeral key pair; the derived session key never leaves it.
type Driver struct {
	config     Config
	ledger     *game.Ledger
	tracker    *job.Tracker
	cluster    cluster.Cluster
	keys       *encryption.KeyPair
	sessionKey encryption.SessionKey

	// events of retired jobs whose late result was still applied
	reconciled cmap.ConcurrentMap
}

func NewDriver(config Config, ledger *game.Ledger, tracker *job.Tracker, c cluster.Cluster) (*Driver, error) {
	keys, err := encryption.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	sessionKey, err := keys.DeriveSessionKey(config.ClusterPublicKey)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		config:     config,
		ledger:     ledger,
		tracker:    tracker,
		cluster:    c,
		keys:       keys,
		sessionKey: sessionKey,
		reconciled: cmap.New(),
	}
	c.OnCompletion(d.HandleCompletion)
	return d, nil
}

// PublicKey is the key the cluster encrypts this session's hole cards to.
func (d *Driver) PublicKey() encryption.PublicKey {
	return d.keys.Public
}

// HandleCompletion is the callback path from the cluster. Finalized results
// go to the ledger before the waiting caller is woken, so a caller always
// reads its own result.
func (d *Driver) HandleCompletion(c cluster.Completion) {
	switch c.Status {
	case job.StatusExecuting:
		if err := d.tracker.MarkExecuting(c.Offset); err != nil {
			driverLogger.Debug().Uint64(logging.OffsetKey, c.Offset).Msg("Executing notice for unknown job")
		}
		return
	case job.StatusFinalized, job.StatusFailed:
	default:
		driverLogger.Warn().Uint64(logging.OffsetKey, c.Offset).Msgf("Unexpected completion status %s", c.Status)
		return
	}

	j, live, err := d.tracker.Lookup(c.Offset)
	if err != nil {
		driverLogger.Warn().
			Uint64(logging.OffsetKey, c.Offset).
			Uint64(logging.GameIDKey, c.GameID).
			Msg("Completion for unknown job discarded")
		return
	}

	var result job.Result
	if c.Status == job.StatusFailed {
		result = job.Result{
			Offset: c.Offset,
			Status: job.StatusFailed,
			Err:    errors.Wrap(job.ErrJobFailed, c.Error),
		}
	} else {
		crashtest.Hit(j.GameID, crashtest.CrashPoint_BEFORE_APPLY)
		event, err := d.ledger.ApplyCompletion(j.GameID, j.Kind, c.Offset, j.Payload.Basis, c.Output)
		if errors.Is(err, game.ErrStaleResult) {
			util.Metrics.StaleResultDiscarded(j.Kind.String())
			driverLogger.Info().
				Uint64(logging.GameIDKey, j.GameID).
				Uint64(logging.OffsetKey, c.Offset).
				Str(logging.JobKindKey, j.Kind.String()).
				Err(err).
				Msg("Stale result discarded")
		}
		if err != nil {
			result = job.Result{Offset: c.Offset, Status: job.StatusFailed, Err: err}
		} else {
			crashtest.Hit(j.GameID, crashtest.CrashPoint_AFTER_APPLY)
			result = job.Result{Offset: c.Offset, Status: job.StatusFinalized, Event: event}
		}
	}

	if !live {
		d.tracker.Forget(c.Offset)
		if result.Event != nil {
			driverLogger.Info().
				Uint64(logging.GameIDKey, j.GameID).
				Uint64(logging.OffsetKey, c.Offset).
				Str(logging.JobKindKey, j.Kind.String()).
				Msg("Late result reconciled")
			d.reconciled.Set(offsetKey(c.Offset), result.Event)
		}
		return
	}
	if err := d.tracker.Resolve(result); err != nil {
		driverLogger.Debug().Err(err).Uint64(logging.OffsetKey, c.Offset).Msg("Job retired while applying")
		// timed out between lookup and resolve
		d.tracker.Forget(c.Offset)
		if result.Event != nil {
			d.reconciled.Set(offsetKey(c.Offset), result.Event)
		}
	}
}

func offsetKey(offset uint64) string {
	return strconv.FormatUint(offset, 10)
}

func retryable(err error) bool {
	return errors.Is(err, job.ErrTimeout) ||
		errors.Is(err, job.ErrJobFailed) ||
		errors.Is(err, job.ErrAlreadyInFlight) ||
		errors.Is(err, game.ErrStaleResult)
}

// runJob admits, submits and awaits one job, retrying within the policy.
// Before each resubmission it checks whether a previous attempt's result
// landed late and, if so, returns that instead.
func (d *Driver) runJob(ctx context.Context, gameID uint64, kind game.JobKind, count uint8) (*game.Event, error) {
	var event *game.Event
	var offsets []uint64
	attempt := 0

	operation := func() error {
		attempt++
		if attempt > 1 {
			util.Metrics.JobRetried(kind.String())
			for _, offset := range offsets {
				if v, ok := d.reconciled.Pop(offsetKey(offset)); ok {
					event = v.(*game.Event)
					return nil
				}
			}
		}

		inputs, basis, err := d.ledger.Admit(gameID, kind, count)
		if err != nil {
			return backoff.Permanent(err)
		}
		offset, err := d.tracker.Submit(gameID, kind, job.Payload{Inputs: inputs, Basis: basis})
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		offsets = append(offsets, offset)

		req := cluster.Request{Offset: offset, GameID: gameID, Kind: kind, Inputs: inputs}
		if err := d.cluster.Submit(ctx, req); err != nil {
			d.tracker.Cancel(offset, err)
			return errors.Wrap(job.ErrJobFailed, err.Error())
		}
		crashtest.Hit(gameID, crashtest.CrashPoint_JOB_SUBMITTED)
		driverLogger.Debug().
			Uint64(logging.GameIDKey, gameID).
			Uint64(logging.OffsetKey, offset).
			Str(logging.JobKindKey, kind.String()).
			Int("attempt", attempt).
			Msg("Job submitted")

		result, err := d.tracker.AwaitFinalization(ctx, offset, d.config.JobTimeout)
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if result.Status != job.StatusFinalized {
			err := result.Err
			if err == nil {
				err = job.ErrJobFailed
			}
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		event = result.Event
		return nil
	}

	notify := func(err error, wait time.Duration) {
		driverLogger.Warn().
			Uint64(logging.GameIDKey, gameID).
			Str(logging.JobKindKey, kind.String()).
			Int("attempt", attempt).
			Err(err).
			Msgf("Retrying in %s", wait)
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(d.config.Retry.BackOff(), ctx), notify)
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (d *Driver) decryptHand(cipher []byte, nonceBytes []byte, size uint8) ([]uint8, error) {
	var nonce encryption.Nonce
	if len(nonceBytes) != encryption.NonceSize {
		return nil, errors.Wrapf(encryption.ErrAuthenticationFailed, "nonce is %d bytes", len(nonceBytes))
	}
	copy(nonce[:], nonceBytes)
	packed, err := encryption.DecryptHand(d.sessionKey, nonce, cipher)
	if err != nil {
		return nil, err
	}
	return poker.Unpack(packed, size)
}

func (d *Driver) CreateSession(gameID uint64, owner string) (*game.Session, error) {
	session, _, err := d.ledger.CreateSession(gameID, owner, d.keys.Public)
	return session, err
}

func (d *Driver) DestroySession(gameID uint64, owner string) error {
	return d.ledger.DestroySession(gameID, owner)
}

func (d *Driver) Snapshot(gameID uint64) (*game.Session, *game.Record, error) {
	return d.ledger.Load(gameID)
}

func (d *Driver) StartHand(gameID uint64) (*game.Session, error) {
	return d.ledger.StartHand(gameID)
}

// ShuffleAndDeal shuffles a fresh deck and returns the decrypted hole cards.
func (d *Driver) ShuffleAndDeal(ctx context.Context, gameID uint64) ([]uint8, error) {
	event, err := d.runJob(ctx, gameID, game.JobShuffleAndDeal, d.config.InitialHoleCards)
	if err != nil {
		return nil, err
	}
	return d.decryptHand(event.HoleCardsCipher, event.HoleCardsNonce, event.HoleCardsSize)
}

// StoreHoleCards deals n more hole cards and returns the whole hand.
func (d *Driver) StoreHoleCards(ctx context.Context, gameID uint64, n uint8) ([]uint8, error) {
	event, err := d.runJob(ctx, gameID, game.JobStoreHoleCards, n)
	if err != nil {
		return nil, err
	}
	return d.decryptHand(event.HoleCardsCipher, event.HoleCardsNonce, event.HoleCardsSize)
}

// RevealCommunity reveals the next n community cards and returns every
// community card revealed so far.
func (d *Driver) RevealCommunity(ctx context.Context, gameID uint64, n uint8) ([]uint8, error) {
	event, err := d.runJob(ctx, gameID, game.JobRevealCommunity, n)
	if err != nil {
		return nil, err
	}
	return event.CommunityCards, nil
}

// EndHand ends the hand. With changeHand the cluster also replaces the hole
// cards with a fresh empty hand, and its finalization performs the reset.
func (d *Driver) EndHand(ctx context.Context, gameID uint64, changeHand bool) (*game.Session, error) {
	if !changeHand {
		return d.ledger.EndHand(gameID)
	}
	if _, err := d.runJob(ctx, gameID, game.JobChangeHand, 0); err != nil {
		return nil, err
	}
	session, _, err := d.ledger.Load(gameID)
	return session, err
}

// RevealHand publicly reveals the hole cards at showdown.
func (d *Driver) RevealHand(ctx context.Context, gameID uint64) ([]uint8, error) {
	event, err := d.runJob(ctx, gameID, game.JobRevealHand, 0)
	if err != nil {
		return nil, err
	}
	return event.Cards, nil
}

// RevealCard publicly reveals the dealt card at deck index.
func (d *Driver) RevealCard(ctx context.Context, gameID uint64, index uint8) (uint8, error) {
	event, err := d.runJob(ctx, gameID, game.JobRevealSingleCard, index)
	if err != nil {
		return 0, err
	}
	return event.Card, nil
}

// HoleCards decrypts the hole cards currently on the record.
func (d *Driver) HoleCards(gameID uint64) ([]uint8, error) {
	_, record, err := d.ledger.Load(gameID)
	if err != nil {
		return nil, err
	}
	cipher, nonce, size, err := record.HoleCards()
	if err != nil {
		return nil, err
	}
	return d.decryptHand(cipher, nonce[:], size)
}
