package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "codecheck.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0600))
	return cfgPath
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "verbose: false\n")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	dir := filepath.Dir(cfgPath)
	assert.Equal(t, filepath.Join(dir, DefaultLinesFile), cfg.LinesFile)
	assert.Equal(t, filepath.Join(dir, DefaultProductsFile), cfg.ProductsFile)
	assert.Equal(t, DefaultQueryTimeout, cfg.QueryTimeout)
	assert.Equal(t, DefaultSSLMode, cfg.SSLMode)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.True(t, cfg.Watch)
	assert.Equal(t, DefaultUpdateURL, cfg.Update.URL)
	assert.Equal(t, DefaultAssetName(), cfg.Update.Asset)
	assert.Equal(t, cfgPath, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, `lines_file: data/lines.json
products_file: /srv/codecheck/products.json
query_timeout: 90s
sslmode: require
update:
  url: https://example.invalid/latest
  asset: codecheck.exe
`)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(cfgPath), "data", "lines.json"), cfg.LinesFile,
		"relative paths resolve against the config file")
	assert.Equal(t, "/srv/codecheck/products.json", cfg.ProductsFile)
	assert.Equal(t, 90*time.Second, cfg.QueryTimeout)
	assert.Equal(t, "require", cfg.SSLMode)
	assert.Equal(t, "https://example.invalid/latest", cfg.Update.URL)
	assert.Equal(t, "codecheck.exe", cfg.Update.Asset)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{"bad sslmode", "sslmode: sometimes\n", "invalid sslmode"},
		{"bad output", "output: xml\n", "invalid output format"},
		{"negative timeout", "query_timeout: -1s\n", "query_timeout"},
		{"bad duration", "query_timeout: soon\n", "decode"},
		{"broken yaml", "sslmode: [\n", "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			_, err := LoadConfig(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

// TestLoadConfig_FlagPrecedence tests that flags override env vars and config file.
func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "sslmode: prefer\nquery_timeout: 10s\n")
	t.Setenv("CODECHECK_SSLMODE", "require")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("sslmode", "", "")
	flags.Duration("timeout", 0, "")
	require.NoError(t, flags.Set("sslmode", "verify-full"))
	require.NoError(t, flags.Set("timeout", "5s"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "verify-full", cfg.SSLMode, "flag value should override config file and env var")
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout, "--timeout maps to query_timeout")
}

// TestLoadConfig_EnvPrecedenceOverFile tests that env vars override config file.
func TestLoadConfig_EnvPrecedenceOverFile(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "sslmode: prefer\n")
	t.Setenv("CODECHECK_SSLMODE", "require")
	t.Setenv("CODECHECK_UPDATE__ASSET", "custom.bin")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "require", cfg.SSLMode, "env var should override config file")
	assert.Equal(t, "custom.bin", cfg.Update.Asset)
}

// TestLoadConfig_FlagNotSetUsesEnv tests that unset flags fall back to env vars.
func TestLoadConfig_FlagNotSetUsesEnv(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "sslmode: prefer\n")
	t.Setenv("CODECHECK_SSLMODE", "require")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("sslmode", "", "")

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "require", cfg.SSLMode, "env var should be used when flag is not set")
}

func TestLoadConfig_RegistryFlagsResolveAgainstCWD(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "lines_file: from_file.json\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("lines", "", "")
	require.NoError(t, flags.Set("lines", "local.json"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "local.json"), cfg.LinesFile)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, closeFn, err := NewLogger(&Config{}, &buf)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("shown")
	require.NoError(t, closeFn())
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	logger, _, err = NewLogger(&Config{Verbose: true}, &buf)
	require.NoError(t, err)
	logger.Debug("details")
	assert.Contains(t, buf.String(), "details")

	logPath := filepath.Join(t.TempDir(), "logs", "codecheck.log")
	logger, closeFn, err = NewLogger(&Config{LogFile: logPath}, nil)
	require.NoError(t, err)
	logger.Info("to file")
	require.NoError(t, closeFn())
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestGetLogger_Fallback(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	var buf bytes.Buffer
	logger, _, err := NewLogger(&Config{}, &buf)
	require.NoError(t, err)
	ctx := context.WithValue(context.Background(), LoggerKey(), logger)
	GetLogger(ctx).Info("via context")
	assert.Contains(t, buf.String(), "via context")
}
