package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read into the config.
const EnvPrefix = "CODECHECK_"

// configNames are looked up in order in each search directory.
var configNames = []string{"codecheck.yaml", "codecheck.yml"}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// DefaultAssetName is the release asset for the running platform.
func DefaultAssetName() string {
	name := fmt.Sprintf("codecheck_%s_%s", runtime.GOOS, runtime.GOARCH)
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}

// searchDirs returns the directories searched for a config file:
// the working directory, then the user config directory.
func searchDirs() []string {
	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, "codecheck"))
	}
	return dirs
}

// findConfigFile finds the config file to use.
// Priority: explicit path > codecheck.yaml > codecheck.yml, per search directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, dir := range searchDirs() {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")
	def := Default()

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"lines_file":      def.LinesFile,
		"products_file":   def.ProductsFile,
		"query_timeout":   def.QueryTimeout.String(),
		"connect_timeout": def.ConnectTimeout.String(),
		"sslmode":         def.SSLMode,
		"verbose":         def.Verbose,
		"output":          def.OutputFormat,
		"log_file":        "",
		"watch":           def.Watch,
		"export_dir":      "",
		"update.url":      def.Update.URL,
		"update.asset":    def.Update.Asset,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables
	// Transform: CODECHECK_QUERY_TIMEOUT -> query_timeout, CODECHECK_UPDATE__URL -> update.url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	var flagPaths map[string]string
	if flags != nil {
		flagPaths = map[string]string{}
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			switch key {
			case "lines", "products":
				// --lines / --products name the registry files.
				key += "_file"
				if abs, err := filepath.Abs(f.Value.String()); err == nil {
					flagPaths[key] = abs
				}
			case "timeout":
				key = "query_timeout"
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Decode
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Metadata:         nil,
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve registry paths: flags against the CWD, everything else
	// against the config file's directory.
	cfg.BaseDir = baseDir(configFileUsed)
	cfg.LinesFile = resolvePathRelativeTo(cfg.LinesFile, cfg.BaseDir)
	cfg.ProductsFile = resolvePathRelativeTo(cfg.ProductsFile, cfg.BaseDir)
	cfg.LogFile = resolvePathRelativeTo(cfg.LogFile, cfg.BaseDir)
	cfg.ExportDir = resolvePathRelativeTo(cfg.ExportDir, cfg.BaseDir)
	if p, ok := flagPaths["lines_file"]; ok {
		cfg.LinesFile = p
	}
	if p, ok := flagPaths["products_file"]; ok {
		cfg.ProductsFile = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

func baseDir(configFile string) string {
	if configFile != "" {
		if abs, err := filepath.Abs(configFile); err == nil {
			return filepath.Dir(abs)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}
