package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1536, cfg.Dimensions)
	assert.Equal(t, 1, cfg.MaxAttempts)
	assert.Equal(t, 1, cfg.Workers)
	assert.False(t, cfg.Normalize)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"batch size", func(c *Config) { c.BatchSize = 0 }, "BatchSize"},
		{"dimensions", func(c *Config) { c.Dimensions = -1 }, "Dimensions"},
		{"workers", func(c *Config) { c.Workers = 0 }, "Workers"},
		{"retry delay", func(c *Config) { c.RetryDelay = -1 }, "RetryDelay"},
		{"attempts", func(c *Config) { c.MaxAttempts = 0 }, "maxAttempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
