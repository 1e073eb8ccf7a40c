// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/codecheck/internal/cli/config"
	"github.com/leapstack-labs/codecheck/internal/cli/output"
)

// Registry file names created by SetupRegistry.
const (
	LinesFile    = "profiles.json"
	ProductsFile = "products.json"
)

// SetupRegistry creates a temporary directory with a lines file holding
// "Line 1" and a products file holding "Milk 1L".
func SetupRegistry(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	lines := `{
  "Line 1": {"ip": "10.0.0.5", "port": "5432", "user": "op", "password": "secret", "dbname": "mes"}
}`
	if err := os.WriteFile(filepath.Join(tmpDir, LinesFile), []byte(lines), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", LinesFile, err)
	}

	products := `{
  "Milk 1L": "04600000000000"
}`
	if err := os.WriteFile(filepath.Join(tmpDir, ProductsFile), []byte(products), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", ProductsFile, err)
	}

	return tmpDir
}

// Result is the captured outcome of one command run.
type Result struct {
	Out    string
	ErrOut string
	Err    error
}

// Execute runs cmd under a minimal root that loads the configuration like
// the real one, with the registry files of dir and stdin as input.
func Execute(t *testing.T, dir, stdin string, cmd *cobra.Command, args ...string) Result {
	t.Helper()
	t.Cleanup(config.ResetConfig)

	root := &cobra.Command{
		Use:           "codecheck",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig("", c.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger, _, err := config.NewLogger(cfg, nil)
			if err != nil {
				return err
			}
			c.SetContext(contextWithLogger(c, logger))
			return nil
		},
	}
	root.PersistentFlags().String("lines", "", "")
	root.PersistentFlags().String("products", "", "")
	root.PersistentFlags().Duration("timeout", 0, "")
	root.PersistentFlags().StringP("output", "o", "", "")
	root.AddCommand(cmd)

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{
		"--lines", filepath.Join(dir, LinesFile),
		"--products", filepath.Join(dir, ProductsFile),
	}, args...))

	err := root.Execute()
	return Result{Out: out.String(), ErrOut: errOut.String(), Err: err}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

func contextWithLogger(c *cobra.Command, logger *slog.Logger) context.Context {
	return context.WithValue(c.Context(), config.LoggerKey(), logger)
}
