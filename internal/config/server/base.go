package server

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type BaseServerConfig struct {
	ShutdownTimeout string `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	Log      LogServerConfig      `mapstructure:"log"      yaml:"log"`
	Metadata MetadataServerConfig `mapstructure:"metadata" yaml:"metadata"`
	Blob     BlobServerConfig     `mapstructure:"blob"     yaml:"blob"`
	Bus      BusServerConfig      `mapstructure:"bus"      yaml:"bus"`
	Ingest   IngestServerConfig   `mapstructure:"ingest"   yaml:"ingest"`
	Analysis AnalysisServerConfig `mapstructure:"analysis" yaml:"analysis"`
}

func LoadServerConfig() (*BaseServerConfig, error) {
	cfg := &BaseServerConfig{}

	setDefaults()

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations the agent cannot start with.
func (cfg *BaseServerConfig) Validate() error {
	if _, err := time.ParseDuration(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown_timeout: %w", err)
	}
	if cfg.Metadata.Type != "sqlite" {
		return fmt.Errorf("metadata.type: unsupported store '%s'", cfg.Metadata.Type)
	}
	if cfg.Metadata.SQLite.Path == "" {
		return fmt.Errorf("metadata.sqlite.path is required")
	}
	if cfg.Blob.Root == "" {
		return fmt.Errorf("blob.root is required")
	}
	if err := cfg.Bus.Validate(); err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Analysis.Timeout); err != nil {
		return fmt.Errorf("analysis.timeout: %w", err)
	}
	if cfg.Ingest.RateLimit < 0 {
		return fmt.Errorf("ingest.rate_limit must not be negative")
	}
	return nil
}
