package util

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaults(t *testing.T) {
	t.Setenv("PERSIST_METHOD", "")
	t.Setenv("CLUSTER_MODE", "")
	t.Setenv("JOB_TIMEOUT_SEC", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("POSTGRES_SSL_MODE", "")

	if v := Env.GetPersistMethod(); v != "memory" {
		t.Errorf("expected memory persist method, got %s", v)
	}
	if v := Env.GetClusterMode(); v != "local" {
		t.Errorf("expected local cluster mode, got %s", v)
	}
	if v := Env.GetJobTimeoutSec(); v != 60 {
		t.Errorf("expected 60 second job timeout, got %d", v)
	}
	if v := Env.GetZeroLogLogLevel(); v != zerolog.InfoLevel {
		t.Errorf("expected info log level, got %s", v)
	}
	if v := Env.GetPostgresSSLMode(); v != "disable" {
		t.Errorf("expected disable ssl mode, got %s", v)
	}
}

func TestClusterPublicKey(t *testing.T) {
	t.Setenv("CLUSTER_PUBLIC_KEY", "0102ff")
	key := Env.GetClusterPublicKey()
	if len(key) != 3 || key[0] != 1 || key[2] != 0xff {
		t.Errorf("unexpected key %x", key)
	}

	t.Setenv("CLUSTER_PUBLIC_KEY", "not-hex")
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for invalid hex")
		}
	}()
	Env.GetClusterPublicKey()
}

func TestRequiredPanics(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic when REDIS_HOST is missing")
		}
	}()
	Env.GetRedisHost()
}

func TestLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	if v := Env.GetZeroLogLogLevel(); v != zerolog.DebugLevel {
		t.Errorf("expected debug, got %s", v)
	}
}

func TestCrashTestEnabled(t *testing.T) {
	t.Setenv("CRASH_TEST", "")
	if Env.IsCrashTestEnabled() {
		t.Errorf("crash test should be disabled by default")
	}
	t.Setenv("CRASH_TEST", "True")
	if !Env.IsCrashTestEnabled() {
		t.Errorf("expected crash test to be enabled")
	}
}
