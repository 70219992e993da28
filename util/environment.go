package util

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var environmentLogger = log.With().Str("logger_name", "util::environment").Logger()

type coordinatorEnvironment struct {
	PersistMethod    string
	RedisHost        string
	RedisPort        string
	RedisPW          string
	RedisDB          string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPW       string
	PostgresSSLMode  string
	NatsURL          string
	ClusterMode      string
	ClusterPublicKey string
	JobTimeout       string
	LogLevel         string
	CrashTest        string
}

// Env is a helper object for accessing environment variables.
var Env = &coordinatorEnvironment{
	PersistMethod:    "PERSIST_METHOD",
	RedisHost:        "REDIS_HOST",
	RedisPort:        "REDIS_PORT",
	RedisPW:          "REDIS_PW",
	RedisDB:          "REDIS_DB",
	PostgresHost:     "POSTGRES_HOST",
	PostgresPort:     "POSTGRES_PORT",
	PostgresDB:       "POSTGRES_DB",
	PostgresUser:     "POSTGRES_USER",
	PostgresPW:       "POSTGRES_PASSWORD",
	PostgresSSLMode:  "POSTGRES_SSL_MODE",
	NatsURL:          "NATS_URL",
	ClusterMode:      "CLUSTER_MODE",
	ClusterPublicKey: "CLUSTER_PUBLIC_KEY",
	JobTimeout:       "JOB_TIMEOUT_SEC",
	LogLevel:         "LOG_LEVEL",
	CrashTest:        "CRASH_TEST",
}

func (c *coordinatorEnvironment) required(name string) string {
	v := os.Getenv(name)
	if v == "" {
		msg := fmt.Sprintf("%s is not defined", name)
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
	return v
}

func (c *coordinatorEnvironment) requiredInt(name string) int {
	s := c.required(name)
	n, err := strconv.Atoi(s)
	if err != nil {
		msg := fmt.Sprintf("Invalid integer [%s] for %s", s, name)
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
	return n
}

func (c *coordinatorEnvironment) GetPersistMethod() string {
	method := os.Getenv(c.PersistMethod)
	if method == "" {
		return "memory"
	}
	return strings.ToLower(method)
}

func (c *coordinatorEnvironment) GetRedisHost() string {
	return c.required(c.RedisHost)
}

func (c *coordinatorEnvironment) GetRedisPort() int {
	return c.requiredInt(c.RedisPort)
}

func (c *coordinatorEnvironment) GetRedisPW() string {
	return os.Getenv(c.RedisPW)
}

func (c *coordinatorEnvironment) GetRedisDB() int {
	if os.Getenv(c.RedisDB) == "" {
		return 0
	}
	return c.requiredInt(c.RedisDB)
}

func (c *coordinatorEnvironment) GetPostgresHost() string {
	return c.required(c.PostgresHost)
}

func (c *coordinatorEnvironment) GetPostgresPort() int {
	return c.requiredInt(c.PostgresPort)
}

func (c *coordinatorEnvironment) GetPostgresDB() string {
	return c.required(c.PostgresDB)
}

func (c *coordinatorEnvironment) GetPostgresUser() string {
	return c.required(c.PostgresUser)
}

func (c *coordinatorEnvironment) GetPostgresPW() string {
	return c.required(c.PostgresPW)
}

func (c *coordinatorEnvironment) GetPostgresSSLMode() string {
	v := os.Getenv(c.PostgresSSLMode)
	if v == "" {
		return "disable"
	}
	return v
}

func (c *coordinatorEnvironment) GetPostgresConnStr() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.GetPostgresHost(),
		c.GetPostgresPort(),
		c.GetPostgresUser(),
		c.GetPostgresPW(),
		c.GetPostgresDB(),
		c.GetPostgresSSLMode(),
	)
}

func (c *coordinatorEnvironment) GetNatsURL() string {
	return c.required(c.NatsURL)
}

// GetClusterMode returns "local" (in-process cluster) or "nats".
func (c *coordinatorEnvironment) GetClusterMode() string {
	v := os.Getenv(c.ClusterMode)
	if v == "" {
		return "local"
	}
	return strings.ToLower(v)
}

// GetClusterPublicKey returns the compute cluster's published X25519 key.
// An empty result means the key is taken from the local cluster.
func (c *coordinatorEnvironment) GetClusterPublicKey() []byte {
	s := os.Getenv(c.ClusterPublicKey)
	if s == "" {
		return nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		msg := fmt.Sprintf("Invalid hex [%s] for %s", s, c.ClusterPublicKey)
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
	return key
}

func (c *coordinatorEnvironment) GetJobTimeoutSec() int {
	if os.Getenv(c.JobTimeout) == "" {
		return 60
	}
	return c.requiredInt(c.JobTimeout)
}

func (c *coordinatorEnvironment) GetZeroLogLogLevel() zerolog.Level {
	v := strings.ToLower(os.Getenv(c.LogLevel))
	level, err := zerolog.ParseLevel(v)
	if err != nil || v == "" {
		return zerolog.InfoLevel
	}
	return level
}

// IsCrashTestEnabled allows crash points to be scheduled over the rest API.
func (c *coordinatorEnvironment) IsCrashTestEnabled() bool {
	v := strings.ToLower(os.Getenv(c.CrashTest))
	return v == "1" || v == "true"
}
