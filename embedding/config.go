package embedding

import (
	"errors"
	"time"

	"github.com/poiesic/gpthistory/core"
)

const (
	// DefaultBatchSize is the number of chunks sent per service call.
	DefaultBatchSize = 100
)

// Config holds configuration for embedding generation.
type Config struct {
	// BatchSize is the number of chunks sent in each service call
	BatchSize int `yaml:"batch_size"`

	// Dimensions is the expected vector length, and the length of zero vectors
	Dimensions int `yaml:"dimensions"`

	// MaxAttempts is the number of tries per service call; 1 disables retries
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Workers is the number of batches embedded concurrently
	Workers int `yaml:"workers"`

	// Normalize scales returned vectors to unit length
	Normalize bool `yaml:"normalize"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:   DefaultBatchSize,
		Dimensions:  core.EmbeddingDimensions,
		MaxAttempts: 1,
		RetryDelay:  time.Second,
		Workers:     1,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.BatchSize < 1 {
		errs = append(errs, errors.New("BatchSize must be at least 1"))
	}
	if c.Dimensions < 1 {
		errs = append(errs, errors.New("Dimensions must be at least 1"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, ErrInvalidMaxAttempts)
	}
	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("RetryDelay cannot be negative"))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("Workers must be at least 1"))
	}
	return errors.Join(errs...)
}
