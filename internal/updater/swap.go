package updater

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Swap defaults.
const (
	DefaultAttempts = 30
	DefaultDelay    = time.Second
)

// SwapOptions configures Swap.
type SwapOptions struct {
	// Target is the installed executable to replace.
	Target string
	// Source is the downloaded executable.
	Source string
	// Attempts and Delay bound the wait for Target to become removable.
	Attempts int
	Delay    time.Duration
	// Relaunch starts Target once it was replaced.
	Relaunch bool
	// Launch overrides how Target is started.
	Launch func(path string) error
	Logger *slog.Logger
}

// Swap waits for the old executable to be released, moves the new one over
// it and optionally starts it.
func Swap(ctx context.Context, opts SwapOptions) error {
	if opts.Target == "" || opts.Source == "" {
		return &UpdateError{Op: "swap", Err: errors.New("target and source are required")}
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Launch == nil {
		opts.Launch = launch
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if _, err := os.Stat(opts.Source); err != nil {
		return &UpdateError{Op: "swap", Err: err}
	}

	if err := removeWithRetry(ctx, opts.Target, opts.Attempts, opts.Delay, logger); err != nil {
		return &UpdateError{Op: "swap", Err: err}
	}

	if err := move(opts.Source, opts.Target); err != nil {
		return &UpdateError{Op: "swap", Err: err}
	}
	logger.Info("executable replaced", slog.String("target", opts.Target))

	if !opts.Relaunch {
		return nil
	}
	if err := opts.Launch(opts.Target); err != nil {
		return &UpdateError{Op: "relaunch", Err: err}
	}
	return nil
}

// removeWithRetry removes path, retrying while the running process still holds it.
func removeWithRetry(ctx context.Context, path string, attempts int, delay time.Duration, logger *slog.Logger) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = os.Remove(path)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		logger.Debug("target still busy", slog.Int("attempt", i+1), slog.String("error", err.Error()))
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// move renames src to dst, copying when the two are on different volumes.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	_ = in.Close()
	return os.Remove(src)
}

func launch(path string) error {
	cmd := exec.Command(path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
