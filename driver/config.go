package driver

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"cardshuffler.com/server/encryption"
)

// Timings is the YAML timing file.
type Timings struct {
	JobTimeoutMs uint32 `yaml:"jobTimeoutMs"`
	Retry        struct {
		MaxAttempts    int     `yaml:"maxAttempts"`
		InitialDelayMs uint32  `yaml:"initialDelayMs"`
		MaxDelayMs     uint32  `yaml:"maxDelayMs"`
		Factor         float64 `yaml:"factor"`
	} `yaml:"retry"`
	InitialHoleCards uint8 `yaml:"initialHoleCards"`
}

// Config is everything a Driver needs. It is passed in explicitly; nothing
// is read from process-wide state.
type Config struct {
	ClusterPublicKey encryption.PublicKey
	JobTimeout       time.Duration
	Retry            RetryPolicy
	InitialHoleCards uint8
}

func DefaultConfig() Config {
	return Config{
		JobTimeout: 60 * time.Second,
		Retry: RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Factor:       2.0,
		},
		InitialHoleCards: 2,
	}
}

func ParseTimings(data []byte) (Timings, error) {
	var timings Timings
	if err := yaml.Unmarshal(data, &timings); err != nil {
		return Timings{}, errors.Wrap(err, "Error parsing timings YAML")
	}
	return timings, nil
}

func ParseTimingsFile(timingsFile string) (Timings, error) {
	bytes, err := ioutil.ReadFile(timingsFile)
	if err != nil {
		return Timings{}, errors.Wrap(err, fmt.Sprintf("Error reading timings file [%s]", timingsFile))
	}
	timings, err := ParseTimings(bytes)
	if err != nil {
		return Timings{}, errors.Wrap(err, fmt.Sprintf("Error parsing timings file [%s]", timingsFile))
	}
	return timings, nil
}

func ParseConfigFile(configFile string) (Config, error) {
	timings, err := ParseTimingsFile(configFile)
	if err != nil {
		return Config{}, err
	}
	return timings.Apply(DefaultConfig()), nil
}

// Apply overrides the fields of config that are set in the timings.
func (t Timings) Apply(config Config) Config {
	if t.JobTimeoutMs > 0 {
		config.JobTimeout = time.Duration(t.JobTimeoutMs) * time.Millisecond
	}
	if t.Retry.MaxAttempts > 0 {
		config.Retry.MaxAttempts = t.Retry.MaxAttempts
	}
	if t.Retry.InitialDelayMs > 0 {
		config.Retry.InitialDelay = time.Duration(t.Retry.InitialDelayMs) * time.Millisecond
	}
	if t.Retry.MaxDelayMs > 0 {
		config.Retry.MaxDelay = time.Duration(t.Retry.MaxDelayMs) * time.Millisecond
	}
	if t.Retry.Factor >= 1.0 {
		config.Retry.Factor = t.Retry.Factor
	}
	if t.InitialHoleCards > 0 {
		config.InitialHoleCards = t.InitialHoleCards
	}
	return config
}
