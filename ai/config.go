// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"strings"

	"github.com/poiesic/gpthistory/core"
)

const (
	// DefaultEmbeddingHost is the OpenAI API base URL.
	DefaultEmbeddingHost = "https://api.openai.com/v1"

	// DefaultEmbeddingModel produces 1536-dimension vectors.
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "https://api.openai.com/v1", or "http://localhost:11434/v1" for a
	// local OpenAI-compatible server
	EmbeddingHost string `yaml:"embedding_host"`

	// APIKey is the bearer token sent to the embedding service.
	// Local OpenAI-compatible servers usually accept any value; when empty the
	// placeholder "none" is sent.
	APIKey string `yaml:"api_key"`

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "text-embedding-3-small"
	EmbeddingModel string `yaml:"embedding_model"`

	// Dimensions is the vector length requested from and expected of the model.
	// Default: 1536
	Dimensions int `yaml:"dimensions"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithAPIKey sets the API key used to authenticate with the embedding service.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithDimensions sets the expected embedding vector length.
func WithDimensions(dim int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dim
	}
}

// DefaultConfig returns a Config pointing at the OpenAI API with the
// text-embedding-3-small model.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:  DefaultEmbeddingHost,
		EmbeddingModel: DefaultEmbeddingModel,
		Dimensions:     core.EmbeddingDimensions,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
// This is the recommended way to create a Config with custom settings.
//
// Example:
//
//	cfg := NewConfig(
//	    WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
//
// Example with a local server:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("http://localhost:11434"),
//	    WithEmbeddingModel("nomic-embed-text"),
//	    WithDimensions(768),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Token returns the bearer token to send, substituting "none" for an empty key.
func (c *Config) Token() string {
	if c.APIKey == "" {
		return "none"
	}
	return c.APIKey
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to the host if missing, which is required
// by most OpenAI-compatible APIs (OpenAI, Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		// Remove trailing slash if present before adding /v1
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
	c.EmbeddingModel = strings.TrimSpace(c.EmbeddingModel)
}

// Validate checks that the configuration is valid and complete, reporting
// every problem found. It normalizes the configuration first.
func (c *Config) Validate() error {
	c.Normalize()

	var errs []error
	if c.EmbeddingHost == "" {
		errs = append(errs, errors.New("ai config: EmbeddingHost is required"))
	}
	if c.EmbeddingModel == "" {
		errs = append(errs, errors.New("ai config: EmbeddingModel is required"))
	}
	if c.Dimensions < 1 {
		errs = append(errs, errors.New("ai config: Dimensions must be positive"))
	}
	return errors.Join(errs...)
}
