package crashtest

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *int {
	t.Setenv("CRASH_TEST", "1")
	exits := 0
	SetExitFunc(func() { exits++ })
	blockAfterExit = 0
	t.Cleanup(func() {
		crashPoint = CrashPoint_NO_CRASH
		crashGameID = 0
		SetExitFunc(nil)
	})
	return &exits
}

func TestHitOnlyMatchingPoint(t *testing.T) {
	exits := setup(t)

	require.NoError(t, Set(5, CrashPoint_BEFORE_APPLY))
	Hit(5, CrashPoint_JOB_SUBMITTED)
	Hit(6, CrashPoint_BEFORE_APPLY)
	assert.Equal(t, 0, *exits)

	Hit(5, CrashPoint_BEFORE_APPLY)
	assert.Equal(t, 1, *exits)

	// a crash point fires once
	Hit(5, CrashPoint_BEFORE_APPLY)
	assert.Equal(t, 1, *exits)
}

func TestSetRejectsSecondPoint(t *testing.T) {
	setup(t)

	require.NoError(t, Set(1, CrashPoint_AFTER_APPLY))
	assert.Error(t, Set(2, CrashPoint_JOB_SUBMITTED))
	require.NoError(t, Set(0, CrashPoint_NO_CRASH))
	assert.NoError(t, Set(2, CrashPoint_JOB_SUBMITTED))
}

func TestSetInvalidPoint(t *testing.T) {
	setup(t)
	err := Set(1, CrashPoint("SOMEWHERE"))
	assert.True(t, errors.Is(err, ErrInvalidCrashPoint))
}

func TestSetNowExits(t *testing.T) {
	exits := setup(t)
	require.NoError(t, Set(1, CrashPoint_NOW))
	assert.Equal(t, 1, *exits)
}

func TestDisabled(t *testing.T) {
	exits := setup(t)
	t.Setenv("CRASH_TEST", "")

	require.NoError(t, Set(1, CrashPoint_BEFORE_APPLY))
	Hit(1, CrashPoint_BEFORE_APPLY)
	assert.Equal(t, 0, *exits)
}
