package server

// IngestServerConfig holds ingestion service configuration
type IngestServerConfig struct {
	// RateLimit is the number of accepted uploads per second; 0 disables throttling.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst"      yaml:"burst"`
}

// AnalysisServerConfig holds analysis pipeline configuration
type AnalysisServerConfig struct {
	DigestAlgorithm string `mapstructure:"digest_algorithm" yaml:"digest_algorithm"`
	// Timeout bounds the handling of a single event.
	Timeout string `mapstructure:"timeout" yaml:"timeout"`
}
