package crashtest

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"cardshuffler.com/server/logging"
	"cardshuffler.com/server/util"
)

// CrashPoint is a point in the coordinator where the process can be made to
// crash, so recovery from a persisted ledger can be exercised.
type CrashPoint string

const (
	CrashPoint_NO_CRASH CrashPoint = "NO_CRASH"
	CrashPoint_NOW      CrashPoint = "NOW"
	// the job is with the cluster, nothing is finalized yet
	CrashPoint_JOB_SUBMITTED CrashPoint = "JOB_SUBMITTED"
	// a finalized result arrived but the ledger has not applied it
	CrashPoint_BEFORE_APPLY CrashPoint = "BEFORE_APPLY"
	// the ledger is saved but the waiting caller has not been woken
	CrashPoint_AFTER_APPLY CrashPoint = "AFTER_APPLY"
)

var ErrInvalidCrashPoint = errors.New("invalid crash point")

// IsValid checks if cp is a valid enum value for CrashPoint.
func (cp CrashPoint) IsValid() bool {
	switch cp {
	case CrashPoint_NO_CRASH, CrashPoint_NOW, CrashPoint_JOB_SUBMITTED, CrashPoint_BEFORE_APPLY, CrashPoint_AFTER_APPLY:
		return true
	}
	return false
}

var (
	crashSetLock    sync.Mutex
	exitProcessFunc func()
	// exitProcessFunc may not exit the process immediately.
	blockAfterExit = 10 * time.Second

	crashGameID uint64
	crashPoint  = CrashPoint_NO_CRASH

	crashTestLogger = log.With().Str("logger_name", "crashtest::crashtest").Logger()
)

func SetExitFunc(exitFunc func()) {
	crashSetLock.Lock()
	defer crashSetLock.Unlock()
	exitProcessFunc = exitFunc
}

// Set schedules a crash at cp for gameID.
// If cp == CrashPoint_NOW, the process exits without returning.
func Set(gameID uint64, cp CrashPoint) error {
	if !cp.IsValid() {
		return errors.Wrapf(ErrInvalidCrashPoint, "[%s]", cp)
	}
	if !util.Env.IsCrashTestEnabled() {
		crashTestLogger.Warn().Msg("crashtest.Set called when crash test is not enabled.")
		return nil
	}

	crashSetLock.Lock()
	defer crashSetLock.Unlock()

	if cp != CrashPoint_NO_CRASH && crashPoint != CrashPoint_NO_CRASH {
		return errors.Errorf("Cannot set crash point [%s] when previous crash point [%d/%s] hasn't been hit", cp, crashGameID, crashPoint)
	}

	if cp == CrashPoint_NOW {
		crashTestLogger.Warn().Msg("CRASHTEST Set called with NOW. Exiting immediately.")
		exit()
		return nil
	}

	crashGameID = gameID
	crashPoint = cp
	return nil
}

// Hit crashes the process if cp for gameID is the scheduled crash point.
func Hit(gameID uint64, cp CrashPoint) {
	crashSetLock.Lock()
	defer crashSetLock.Unlock()

	if cp != crashPoint || gameID != crashGameID {
		return
	}
	if !util.Env.IsCrashTestEnabled() {
		return
	}

	crashTestLogger.Warn().Uint64(logging.GameIDKey, gameID).Msgf("CRASHTEST crash point: %s", cp)
	crashPoint = CrashPoint_NO_CRASH
	exit()
	time.Sleep(blockAfterExit)
}

func exit() {
	if exitProcessFunc == nil {
		crashTestLogger.Fatal().Msg("CRASHTEST exiting")
		return
	}
	exitProcessFunc()
}
