package server

import (
	"fmt"
	"time"
)

// BusServerConfig holds event bus configuration
type BusServerConfig struct {
	Type         string `mapstructure:"type"          yaml:"type"`
	Partitions   int    `mapstructure:"partitions"    yaml:"partitions"`
	Group        string `mapstructure:"group"         yaml:"group"`
	MaxAttempts  int    `mapstructure:"max_attempts"  yaml:"max_attempts"`
	RetryBackoff string `mapstructure:"retry_backoff" yaml:"retry_backoff"`

	Redis  BusRedisConfig  `mapstructure:"redis"  yaml:"redis"`
	Topics BusTopicsConfig `mapstructure:"topics" yaml:"topics"`
}

// BusRedisConfig holds Redis Streams specific configuration
type BusRedisConfig struct {
	Address  string `mapstructure:"address"  yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db"       yaml:"db"`
	Prefix   string `mapstructure:"prefix"   yaml:"prefix"`
	Block    string `mapstructure:"block"    yaml:"block"`
}

// BusTopicsConfig names the topics used by the pipeline
type BusTopicsConfig struct {
	Uploaded   string `mapstructure:"uploaded"    yaml:"uploaded"`
	Stats      string `mapstructure:"stats"       yaml:"stats"`
	Duplicates string `mapstructure:"duplicates"  yaml:"duplicates"`
	DeadLetter string `mapstructure:"dead_letter" yaml:"dead_letter"`
}

func (cfg BusServerConfig) Validate() error {
	switch cfg.Type {
	case "memory":
	case "redis":
		if cfg.Redis.Address == "" {
			return fmt.Errorf("redis.address is required for the redis bus")
		}
		if _, err := time.ParseDuration(cfg.Redis.Block); err != nil {
			return fmt.Errorf("redis.block: %w", err)
		}
	default:
		return fmt.Errorf("type: unsupported bus '%s'", cfg.Type)
	}

	if cfg.Partitions < 1 {
		return fmt.Errorf("partitions must be at least 1")
	}
	if cfg.Group == "" {
		return fmt.Errorf("group is required")
	}
	if cfg.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	if _, err := time.ParseDuration(cfg.RetryBackoff); err != nil {
		return fmt.Errorf("retry_backoff: %w", err)
	}
	if cfg.Topics.Uploaded == "" || cfg.Topics.Stats == "" || cfg.Topics.Duplicates == "" {
		return fmt.Errorf("topics.uploaded, topics.stats and topics.duplicates are required")
	}
	return nil
}
