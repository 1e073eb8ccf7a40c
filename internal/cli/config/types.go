// Package config provides configuration management for the codecheck CLI.
package config

import "time"

// Config holds all CLI configuration options.
type Config struct {
	LinesFile      string        `koanf:"lines_file"`
	ProductsFile   string        `koanf:"products_file"`
	QueryTimeout   time.Duration `koanf:"query_timeout"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	SSLMode        string        `koanf:"sslmode"`
	Verbose        bool          `koanf:"verbose"`
	OutputFormat   string        `koanf:"output"`
	LogFile        string        `koanf:"log_file"`
	Watch          bool          `koanf:"watch"`
	ExportDir      string        `koanf:"export_dir"`
	Update         UpdateConfig  `koanf:"update"`

	// BaseDir is the directory relative registry paths were resolved against.
	BaseDir string `koanf:"-"`
}

// UpdateConfig points at the release channel.
type UpdateConfig struct {
	URL   string `koanf:"url"`
	Asset string `koanf:"asset"`
}

// Default configuration values.
const (
	DefaultLinesFile      = "profiles.json"
	DefaultProductsFile   = "products.json"
	DefaultQueryTimeout   = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultSSLMode        = "disable"
	DefaultOutput         = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultUpdateURL      = "https://api.github.com/repos/leapstack-labs/codecheck/releases/latest"
)

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		LinesFile:      DefaultLinesFile,
		ProductsFile:   DefaultProductsFile,
		QueryTimeout:   DefaultQueryTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		SSLMode:        DefaultSSLMode,
		OutputFormat:   DefaultOutput,
		Watch:          true,
		Update: UpdateConfig{
			URL:   DefaultUpdateURL,
			Asset: DefaultAssetName(),
		},
	}
}
