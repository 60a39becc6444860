// Package dialog asks the user questions and reports results through
// whatever presentation layer the session offers.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Choice is one answer a prompt offers.
type Choice string

const (
	ChoiceInstall   Choice = "install"
	ChoiceLaunch    Choice = "launch"
	ChoiceUninstall Choice = "uninstall"
	ChoiceCancel    Choice = "cancel"
)

// Label is the button text for c.
func (c Choice) Label() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// Prompt is a question with a fixed set of answers. The first choice is the
// default and the last one is what dismissing the dialog means.
type Prompt struct {
	Title   string
	Text    string
	Choices []Choice
}

func (p Prompt) dismissal() Choice {
	if len(p.Choices) == 0 {
		return ChoiceCancel
	}
	return p.Choices[len(p.Choices)-1]
}

func (p Prompt) has(c Choice) bool {
	for _, x := range p.Choices {
		if x == c {
			return true
		}
	}
	return false
}

// Level selects how a message is presented.
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Message is a one-way notice.
type Message struct {
	Title string
	Text  string
	Level Level
}

// Dialog is the synchronous request/response capability the installer uses
// to talk to the user.
type Dialog interface {
	Ask(ctx context.Context, p Prompt) (Choice, error)
	Inform(ctx context.Context, m Message) error
}

const (
	BackendAuto     = "auto"
	BackendZenity   = "zenity"
	BackendKDialog  = "kdialog"
	BackendTerminal = "terminal"
	BackendNone     = "none"
)

// ErrUnavailable is returned when the requested backend cannot be used in
// this session.
var ErrUnavailable = errors.New("dialog backend unavailable")

// New returns the named backend. "auto" prefers a graphical helper when a
// display is available, then a terminal, then a silent backend that answers
// every prompt with its dismissal choice.
func New(name string) (Dialog, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendAuto:
		return auto(), nil
	case BackendZenity:
		if !toolAvailable(BackendZenity) {
			return nil, fmt.Errorf("%w: zenity not found in PATH", ErrUnavailable)
		}
		return NewZenity(), nil
	case BackendKDialog:
		if !toolAvailable(BackendKDialog) {
			return nil, fmt.Errorf("%w: kdialog not found in PATH", ErrUnavailable)
		}
		return NewKDialog(), nil
	case BackendTerminal:
		return NewTerminal(os.Stdin, os.Stderr), nil
	case BackendNone:
		return Silent{}, nil
	default:
		return nil, fmt.Errorf("unknown dialog backend %q", name)
	}
}

func auto() Dialog {
	if hasDisplay() {
		desktop := strings.ToUpper(os.Getenv("XDG_CURRENT_DESKTOP"))
		order := []string{BackendZenity, BackendKDialog}
		if strings.Contains(desktop, "KDE") {
			order = []string{BackendKDialog, BackendZenity}
		}
		for _, name := range order {
			if !toolAvailable(name) {
				continue
			}
			log.Debugf("using %s dialogs", name)
			if name == BackendKDialog {
				return NewKDialog()
			}
			return NewZenity()
		}
	}
	if term.IsTerminal(int(os.Stdin.Fd())) { // #nosec G115 -- fd fits in int
		log.Debug("using terminal dialogs")
		return NewTerminal(os.Stdin, os.Stderr)
	}
	log.Debug("no dialog backend available; prompts are dismissed")
	return Silent{}
}

func hasDisplay() bool {
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

var lookPath = exec.LookPath

func toolAvailable(name string) bool {
	_, err := lookPath(name)
	return err == nil
}

// Silent answers every prompt with its dismissal choice and logs messages.
type Silent struct{}

func (Silent) Ask(_ context.Context, p Prompt) (Choice, error) {
	log.Infof("%s: %s (no dialog available, answering %s)", p.Title, p.Text, p.dismissal())
	return p.dismissal(), nil
}

func (Silent) Inform(_ context.Context, m Message) error {
	if m.Level == LevelError {
		log.Errorf("%s: %s", m.Title, m.Text)
	} else {
		log.Infof("%s: %s", m.Title, m.Text)
	}
	return nil
}
