package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/codecheck/internal/cli/output"
)

// errAborted is returned when the operator declines a confirmation.
var errAborted = errors.New("aborted")

// Prompter asks the operator for input.
type Prompter interface {
	Ask(label, def string) (string, error)
	AskSecret(label string) (string, error)
	Confirm(label string) (bool, error)
	Close() error
}

// newPrompter uses readline on an interactive terminal and plain line
// reading otherwise, so piped input and tests work the same way.
func newPrompter(cmd *cobra.Command) (Prompter, error) {
	in := cmd.InOrStdin()
	if in == os.Stdin && output.IsTerminal(os.Stdin) {
		rl, err := readline.NewEx(&readline.Config{
			Stdout:          cmd.ErrOrStderr(),
			InterruptPrompt: "^C",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize prompt: %w", err)
		}
		return &readlinePrompter{rl: rl}, nil
	}
	return &linePrompter{in: bufio.NewReader(in), out: cmd.ErrOrStderr()}, nil
}

type readlinePrompter struct {
	rl *readline.Instance
}

func (p *readlinePrompter) Ask(label, def string) (string, error) {
	p.rl.SetPrompt(promptText(label, def))
	line, err := p.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", errAborted
	}
	if err != nil {
		return "", err
	}
	return withDefault(line, def), nil
}

func (p *readlinePrompter) AskSecret(label string) (string, error) {
	b, err := p.rl.ReadPassword(label + ": ")
	if errors.Is(err, readline.ErrInterrupt) {
		return "", errAborted
	}
	return string(b), err
}

func (p *readlinePrompter) Confirm(label string) (bool, error) {
	answer, err := p.Ask(label+" [y/N]", "")
	if err != nil {
		return false, err
	}
	return isYes(answer), nil
}

func (p *readlinePrompter) Close() error {
	return p.rl.Close()
}

type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *linePrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errAborted
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *linePrompter) Ask(label, def string) (string, error) {
	_, _ = fmt.Fprint(p.out, promptText(label, def))
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	return withDefault(line, def), nil
}

func (p *linePrompter) AskSecret(label string) (string, error) {
	_, _ = fmt.Fprint(p.out, label+": ")
	return p.readLine()
}

func (p *linePrompter) Confirm(label string) (bool, error) {
	_, _ = fmt.Fprint(p.out, label+" [y/N] ")
	line, err := p.readLine()
	if errors.Is(err, errAborted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return isYes(line), nil
}

func (p *linePrompter) Close() error { return nil }

func promptText(label, def string) string {
	if def != "" {
		return fmt.Sprintf("%s [%s]: ", label, def)
	}
	return label + ": "
}

func withDefault(line, def string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}

// confirm asks unless yes is already set.
func confirm(cmd *cobra.Command, yes bool, label string) error {
	if yes {
		return nil
	}
	p, err := newPrompter(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	ok, err := p.Confirm(label)
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	return nil
}
