package gpthistory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/poiesic/gpthistory/ai"
	"github.com/poiesic/gpthistory/embedding"
	"github.com/poiesic/gpthistory/search"
	"gopkg.in/yaml.v3"
)

const (
	// DirName is the per-user directory holding the index and config file.
	DirName = ".gpthistory"

	// IndexDirName is the badger index directory inside DirName.
	IndexDirName = "index"

	// CSVFileName is the CSV index file name used by earlier versions of the tool.
	CSVFileName = "chatindex.csv"

	// ConfigFileName is the YAML config file inside DirName.
	ConfigFileName = "config.yaml"
)

// Environment variables that override file settings.
const (
	EnvAPIKey    = "OPENAI_API_KEY"
	EnvBaseURL   = "OPENAI_BASE_URL"
	EnvIndexPath = "GPTHISTORY_INDEX"
)

// SearchConfig holds ranking settings.
type SearchConfig struct {
	// Threshold is the minimum dot-product score of a result.
	Threshold float64 `yaml:"threshold"`
	// TopN is the maximum number of results.
	TopN int `yaml:"top_n"`
}

// Config is the complete tool configuration.
type Config struct {
	// IndexPath is the badger index directory.
	IndexPath string `yaml:"index_path"`

	// DropFailed withholds conversations touched by a failed embedding batch
	// so the next index run retries them.
	DropFailed bool `yaml:"drop_failed"`

	AI        ai.Config        `yaml:"ai"`
	Embedding embedding.Config `yaml:"embedding"`
	Search    SearchConfig     `yaml:"search"`
}

// DefaultDir returns ~/.gpthistory, or .gpthistory in the working directory
// when the home directory cannot be determined.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// DefaultConfigPath returns the default YAML config location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), ConfigFileName)
}

// DefaultCSVPath returns the location of the CSV index written by earlier
// versions of the tool.
func DefaultCSVPath() string {
	return filepath.Join(DefaultDir(), CSVFileName)
}

// DefaultConfig returns the configuration used when no file or environment
// settings exist.
func DefaultConfig() *Config {
	return &Config{
		IndexPath: filepath.Join(DefaultDir(), IndexDirName),
		AI:        *ai.DefaultConfig(),
		Embedding: *embedding.DefaultConfig(),
		Search: SearchConfig{
			Threshold: search.DefaultThreshold,
			TopN:      search.DefaultTopN,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables looked up with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.AI.APIKey = v
	}
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.AI.EmbeddingHost = v
	}
	if v, ok := lookup(EnvIndexPath); ok && v != "" {
		c.IndexPath = v
	}
}

// Validate checks every section and reports all problems together.
func (c *Config) Validate() error {
	var errs []error
	if c.IndexPath == "" {
		errs = append(errs, errors.New("config: IndexPath is required"))
	}
	if err := c.AI.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Embedding.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.AI.Dimensions != c.Embedding.Dimensions {
		errs = append(errs, fmt.Errorf("config: ai dimensions %d differ from embedding dimensions %d",
			c.AI.Dimensions, c.Embedding.Dimensions))
	}
	if c.Search.TopN < 0 {
		errs = append(errs, errors.New("config: search TopN must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadEnv loads environment variables from ~/.bin/.env when that file
// exists, otherwise from ./.env. Variables already set are not overridden.
// It returns the file that was loaded, or "" when neither exists.
func LoadEnv() (string, error) {
	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".bin", ".env"))
	}
	candidates = append(candidates, ".env")
	return loadFirstEnv(candidates...)
}

func loadFirstEnv(paths ...string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return path, fmt.Errorf("failed to load %s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}
