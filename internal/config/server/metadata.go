package server

// MetadataServerConfig holds metadata store configuration
type MetadataServerConfig struct {
	Type   string               `mapstructure:"type"   yaml:"type"`
	SQLite MetadataSQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
}

// MetadataSQLiteConfig holds SQLite-specific configuration
type MetadataSQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// Debug enables gorm statement logging.
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// BlobServerConfig holds blob store configuration
type BlobServerConfig struct {
	// Root is the directory all blobs are stored beneath.
	Root string `mapstructure:"root" yaml:"root"`
}
