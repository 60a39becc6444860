package dialog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// runFunc runs a dialog helper and returns its trimmed stdout and exit
// code. A non-nil error means the helper could not be run at all.
type runFunc func(ctx context.Context, bin string, args ...string) (string, int, error)

func execRun(ctx context.Context, bin string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 -- fixed helper names, user text passed as argv
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	if ctx.Err() != nil {
		return "", -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return strings.TrimSpace(stdout.String()), exitErr.ExitCode(), nil
	}
	if err != nil {
		return "", -1, fmt.Errorf("run %s: %w", bin, err)
	}
	return strings.TrimSpace(stdout.String()), 0, nil
}

// Zenity presents GTK dialogs through the zenity helper.
type Zenity struct {
	run runFunc
}

func NewZenity() *Zenity { return &Zenity{run: execRun} }

func (z *Zenity) Ask(ctx context.Context, p Prompt) (Choice, error) {
	if len(p.Choices) == 0 {
		return ChoiceCancel, nil
	}
	args := []string{"--question", "--no-markup", "--title", p.Title, "--text", p.Text, "--ok-label", p.Choices[0].Label()}
	if len(p.Choices) > 1 {
		args = append(args, "--cancel-label", p.dismissal().Label())
		for _, c := range p.Choices[1 : len(p.Choices)-1] {
			args = append(args, "--extra-button", c.Label())
		}
	}
	if secs := secondsLeft(ctx); secs > 0 {
		args = append(args, "--timeout", strconv.Itoa(secs))
	}

	out, code, err := z.run(ctx, BackendZenity, args...)
	if err != nil {
		return p.dismissal(), err
	}
	if code == 0 {
		return p.Choices[0], nil
	}
	// Extra buttons print their label and exit 1.
	for _, c := range p.Choices {
		if out != "" && out == c.Label() {
			return c, nil
		}
	}
	return p.dismissal(), nil
}

func (z *Zenity) Inform(ctx context.Context, m Message) error {
	kind := "--info"
	if m.Level == LevelError {
		kind = "--error"
	}
	_, _, err := z.run(ctx, BackendZenity, kind, "--no-markup", "--title", m.Title, "--text", m.Text)
	return err
}

// KDialog presents Qt dialogs through the kdialog helper.
type KDialog struct {
	run runFunc
}

func NewKDialog() *KDialog { return &KDialog{run: execRun} }

func (k *KDialog) Ask(ctx context.Context, p Prompt) (Choice, error) {
	var args []string
	switch len(p.Choices) {
	case 0:
		return ChoiceCancel, nil
	case 1, 2:
		args = []string{"--title", p.Title, "--yesno", p.Text, "--yes-label", p.Choices[0].Label(), "--no-label", p.dismissal().Label()}
	case 3:
		args = []string{"--title", p.Title, "--yesnocancel", p.Text,
			"--yes-label", p.Choices[0].Label(), "--no-label", p.Choices[1].Label(), "--cancel-label", p.Choices[2].Label()}
	default:
		args = []string{"--title", p.Title, "--menu", p.Text}
		for _, c := range p.Choices {
			args = append(args, string(c), c.Label())
		}
	}

	out, code, err := k.run(ctx, BackendKDialog, args...)
	if err != nil {
		return p.dismissal(), err
	}
	if len(p.Choices) > 3 {
		if code == 0 && p.has(Choice(out)) {
			return Choice(out), nil
		}
		return p.dismissal(), nil
	}
	if code >= 0 && code < len(p.Choices) {
		return p.Choices[code], nil
	}
	return p.dismissal(), nil
}

func (k *KDialog) Inform(ctx context.Context, m Message) error {
	kind := "--msgbox"
	if m.Level == LevelError {
		kind = "--error"
	}
	_, _, err := k.run(ctx, BackendKDialog, "--title", m.Title, kind, m.Text)
	return err
}

func secondsLeft(ctx context.Context) int {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	left := time.Until(deadline)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}
