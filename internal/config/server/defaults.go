package server

import "github.com/spf13/viper"

func GetServerDefault() BaseServerConfig {
	return BaseServerConfig{
		ShutdownTimeout: "10s",

		Log: LogServerConfig{
			Level:      "INFO",
			TimeFormat: "2006-01-02 15:04:05",
			File:       "",
			NoColor:    false,
			JSON:       false,
			NoTerminal: false,
			Rotation: LogServerRotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
				Compress:   false,
			},
		},

		Metadata: MetadataServerConfig{
			Type: "sqlite",
			SQLite: MetadataSQLiteConfig{
				Path:  "./data/filecheck.db",
				Debug: false,
			},
		},

		Blob: BlobServerConfig{
			Root: "./data/blobs",
		},

		Bus: BusServerConfig{
			Type:         "memory",
			Partitions:   4,
			Group:        "analyzer",
			MaxAttempts:  0,
			RetryBackoff: "1s",
			Redis: BusRedisConfig{
				Address:  "localhost:6379",
				Password: "",
				DB:       0,
				Prefix:   "filecheck:",
				Block:    "2s",
			},
			Topics: BusTopicsConfig{
				Uploaded:   "files.uploaded",
				Stats:      "stats.calculated",
				Duplicates: "plagiarism.checked",
				DeadLetter: "files.uploaded.dlq",
			},
		},

		Ingest: IngestServerConfig{
			RateLimit: 0,
			Burst:     1,
		},

		Analysis: AnalysisServerConfig{
			DigestAlgorithm: "SHA-256",
			Timeout:         "30s",
		},
	}
}

func setDefaults() {
	defaults := GetServerDefault()

	viper.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.time_format", defaults.Log.TimeFormat)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("log.no_color", defaults.Log.NoColor)
	viper.SetDefault("log.json", defaults.Log.JSON)
	viper.SetDefault("log.no_terminal", defaults.Log.NoTerminal)
	viper.SetDefault("log.rotation.max_size", defaults.Log.Rotation.MaxSize)
	viper.SetDefault("log.rotation.max_backups", defaults.Log.Rotation.MaxBackups)
	viper.SetDefault("log.rotation.max_age", defaults.Log.Rotation.MaxAge)
	viper.SetDefault("log.rotation.compress", defaults.Log.Rotation.Compress)

	viper.SetDefault("metadata.type", defaults.Metadata.Type)
	viper.SetDefault("metadata.sqlite.path", defaults.Metadata.SQLite.Path)
	viper.SetDefault("metadata.sqlite.debug", defaults.Metadata.SQLite.Debug)

	viper.SetDefault("blob.root", defaults.Blob.Root)

	viper.SetDefault("bus.type", defaults.Bus.Type)
	viper.SetDefault("bus.partitions", defaults.Bus.Partitions)
	viper.SetDefault("bus.group", defaults.Bus.Group)
	viper.SetDefault("bus.max_attempts", defaults.Bus.MaxAttempts)
	viper.SetDefault("bus.retry_backoff", defaults.Bus.RetryBackoff)
	viper.SetDefault("bus.redis.address", defaults.Bus.Redis.Address)
	viper.SetDefault("bus.redis.password", defaults.Bus.Redis.Password)
	viper.SetDefault("bus.redis.db", defaults.Bus.Redis.DB)
	viper.SetDefault("bus.redis.prefix", defaults.Bus.Redis.Prefix)
	viper.SetDefault("bus.redis.block", defaults.Bus.Redis.Block)
	viper.SetDefault("bus.topics.uploaded", defaults.Bus.Topics.Uploaded)
	viper.SetDefault("bus.topics.stats", defaults.Bus.Topics.Stats)
	viper.SetDefault("bus.topics.duplicates", defaults.Bus.Topics.Duplicates)
	viper.SetDefault("bus.topics.dead_letter", defaults.Bus.Topics.DeadLetter)

	viper.SetDefault("ingest.rate_limit", defaults.Ingest.RateLimit)
	viper.SetDefault("ingest.burst", defaults.Ingest.Burst)

	viper.SetDefault("analysis.digest_algorithm", defaults.Analysis.DigestAlgorithm)
	viper.SetDefault("analysis.timeout", defaults.Analysis.Timeout)
}
