package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/codecheck/internal/cli/config"
	"github.com/leapstack-labs/codecheck/internal/cli/output"
)

// fileConfig is the on-disk shape of codecheck.yaml.
type fileConfig struct {
	LinesFile      string           `yaml:"lines_file" json:"lines_file"`
	ProductsFile   string           `yaml:"products_file" json:"products_file"`
	QueryTimeout   string           `yaml:"query_timeout" json:"query_timeout"`
	ConnectTimeout string           `yaml:"connect_timeout" json:"connect_timeout"`
	SSLMode        string           `yaml:"sslmode" json:"sslmode"`
	Output         string           `yaml:"output" json:"output"`
	Verbose        bool             `yaml:"verbose" json:"verbose"`
	LogFile        string           `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	Watch          bool             `yaml:"watch" json:"watch"`
	ExportDir      string           `yaml:"export_dir,omitempty" json:"export_dir,omitempty"`
	Update         fileUpdateConfig `yaml:"update" json:"update"`
}

type fileUpdateConfig struct {
	URL   string `yaml:"url" json:"url"`
	Asset string `yaml:"asset" json:"asset"`
}

func newFileConfig(cfg *config.Config) fileConfig {
	return fileConfig{
		LinesFile:      cfg.LinesFile,
		ProductsFile:   cfg.ProductsFile,
		QueryTimeout:   cfg.QueryTimeout.String(),
		ConnectTimeout: cfg.ConnectTimeout.String(),
		SSLMode:        cfg.SSLMode,
		Output:         cfg.OutputFormat,
		Verbose:        cfg.Verbose,
		LogFile:        cfg.LogFile,
		Watch:          cfg.Watch,
		ExportDir:      cfg.ExportDir,
		Update:         fileUpdateConfig{URL: cfg.Update.URL, Asset: cfg.Update.Asset},
	}
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the configuration file",
	}
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a codecheck.yaml with the default settings",
		Example: `  codecheck config init
  codecheck config init /etc/codecheck/codecheck.yaml --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "codecheck.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			data, err := yaml.Marshal(newFileConfig(config.Default()))
			if err != nil {
				return err
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}

			r := NewCommandContextWithoutState(cmd).Renderer
			r.Success(fmt.Sprintf("Wrote %s", path))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContextWithoutState(cmd)
			fc := newFileConfig(cc.Cfg)
			r := cc.Renderer

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(map[string]any{
					"config_file": config.GetConfigFileUsed(),
					"settings":    fc,
				})
			}

			source := config.GetConfigFileUsed()
			if source == "" {
				source = "(none, defaults)"
			}
			r.KeyValue("Config file", source)
			data, err := yaml.Marshal(fc)
			if err != nil {
				return err
			}
			r.Println(string(data))
			return nil
		},
	}
}
