package config

import (
	"fmt"
	"slices"
	"strings"
)

var (
	sslModes      = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	outputFormats = []string{"auto", "text", "markdown", "json"}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.LinesFile == "" {
		return fmt.Errorf("lines_file is required")
	}
	if c.ProductsFile == "" {
		return fmt.Errorf("products_file is required")
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query_timeout must not be negative, got %s", c.QueryTimeout)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must not be negative, got %s", c.ConnectTimeout)
	}
	if !slices.Contains(sslModes, c.SSLMode) {
		return fmt.Errorf("invalid sslmode %q (available: %s)", c.SSLMode, strings.Join(sslModes, ", "))
	}
	if !slices.Contains(outputFormats, c.OutputFormat) {
		return fmt.Errorf("invalid output format %q (available: %s)", c.OutputFormat, strings.Join(outputFormats, ", "))
	}
	return nil
}
