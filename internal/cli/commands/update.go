package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/codecheck/internal/cli/output"
	"github.com/leapstack-labs/codecheck/internal/updater"
)

// UpdateOptions holds options for the update command.
type UpdateOptions struct {
	Check bool
	Yes   bool
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(version string) *cobra.Command {
	opts := &UpdateOptions{}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update codecheck to the latest release",
		Long: `Compare the running version with the latest published release and, when
a newer one exists, download it next to the current executable. A helper
process replaces the executable once this one has exited and starts it again.`,
		Example: `  # Only report whether an update exists
  codecheck update --check

  # Update without asking
  codecheck update --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdate(cmd, version, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Check, "check", false, "Only check for a newer release")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Install without asking")

	return cmd
}

func runUpdate(cmd *cobra.Command, version string, opts *UpdateOptions) error {
	cc := NewCommandContextWithoutState(cmd)
	r := cc.Renderer
	ctx := cmd.Context()

	client := updater.NewClient(cc.Cfg.Update.URL, cc.Cfg.Update.Asset, cc.Logger)
	status, err := client.Check(ctx, version)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(map[string]any{
			"current":   status.Current,
			"latest":    status.Latest,
			"available": status.Available,
		}); err != nil {
			return err
		}
	} else {
		r.KeyValue("Current", status.Current)
		r.KeyValue("Latest", status.Latest)
	}

	if !status.Available {
		if r.EffectiveMode() != output.ModeJSON {
			r.Success("codecheck is up to date")
		}
		return nil
	}
	if opts.Check {
		if r.EffectiveMode() != output.ModeJSON {
			r.Println(r.Styles().Info.Render(fmt.Sprintf("Version %s is available. Run 'codecheck update' to install it.", status.Latest)))
		}
		return nil
	}

	if err := confirm(cmd, opts.Yes, fmt.Sprintf("Install version %s?", status.Latest)); err != nil {
		return err
	}

	exe, err := executablePath()
	if err != nil {
		return &updater.UpdateError{Op: "locate", Err: err}
	}
	dest := stagedPath(exe)

	bar := newProgressPrinter(cmd.ErrOrStderr(), output.IsTerminal(cmd.ErrOrStderr()))
	staged, err := client.Download(ctx, status.Asset, dest, bar.update)
	bar.done()
	if err != nil {
		return err
	}

	helper := exec.Command(staged, "swap", "--target", exe, "--source", staged, "--relaunch")
	if err := helper.Start(); err != nil {
		_ = os.Remove(staged)
		return &updater.UpdateError{Op: "swap", Err: err}
	}
	cc.Logger.Info("update helper started",
		slog.String("version", status.Latest),
		slog.Int("pid", helper.Process.Pid))
	_ = helper.Process.Release()

	r.Success(fmt.Sprintf("Downloaded %s. codecheck restarts once this process exits.", status.Latest))
	return nil
}

// executablePath returns the running executable with symlinks resolved.
func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}

// stagedPath is where the new executable is downloaded to, next to exe.
func stagedPath(exe string) string {
	if runtime.GOOS == "windows" {
		return strings.TrimSuffix(exe, ".exe") + ".new.exe"
	}
	return exe + ".new"
}

// progressPrinter draws a download progress bar on a terminal.
type progressPrinter struct {
	w     io.Writer
	tty   bool
	bar   progress.Model
	drawn bool
}

func newProgressPrinter(w io.Writer, tty bool) *progressPrinter {
	return &progressPrinter{
		w:   w,
		tty: tty,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (p *progressPrinter) update(done, total int64) {
	if !p.tty || total <= 0 {
		return
	}
	_, _ = fmt.Fprintf(p.w, "\r%s", p.bar.ViewAs(float64(done)/float64(total)))
	p.drawn = true
}

func (p *progressPrinter) done() {
	if p.drawn {
		_, _ = fmt.Fprintln(p.w)
	}
}
