package orchestrator

import (
	"fmt"

	"github.com/3leaps/appimage-installer/internal/dialog"
	"github.com/3leaps/appimage-installer/internal/model"
)

// State is a step of the transaction state machine.
type State string

const (
	StateStart        State = "start"
	StateInspecting   State = "inspecting"
	StatePrompting    State = "prompting-user"
	StateInstalling   State = "installing"
	StateInstalled    State = "installed"
	StateUninstalling State = "uninstalling"
	StateLaunching    State = "launching"

	// Terminal states.
	StateSucceeded State = "success"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Action is what the transaction ended up doing.
type Action string

const (
	ActionNone      Action = "none"
	ActionInstall   Action = "install"
	ActionUninstall Action = "uninstall"
	ActionLaunch    Action = "launch"
)

// Outcome describes how one Run ended.
type Outcome struct {
	TxID        string
	ArchivePath string
	Name        string
	Identity    string
	State       State
	Action      Action
	Record      model.Record // the record written or removed
	Launched    bool
	LaunchErr   error // a failed launch after a successful install
	Err         error
	Trace       []State

	mutated bool // a change is on disk that was not rolled back
}

// Failed reports whether the transaction ended in StateFailed.
func (o Outcome) Failed() bool { return o.State == StateFailed }

func (o *Outcome) advance(s State) {
	if o.State == s {
		return
	}
	o.State = s
	o.Trace = append(o.Trace, s)
}

// message is what the user is told at the end; launches and cancellations
// speak for themselves.
func (o Outcome) message() (dialog.Message, bool) {
	name := o.Name
	if name == "" {
		name = "AppImage"
	}
	switch {
	case o.State == StateFailed:
		return dialog.Message{Title: name, Text: model.Summary(o.Err), Level: dialog.LevelError}, true
	case o.LaunchErr != nil:
		return dialog.Message{
			Title: name,
			Text:  fmt.Sprintf("%s was installed but could not be started: %v", name, o.LaunchErr),
			Level: dialog.LevelError,
		}, true
	case o.Action == ActionInstall:
		return dialog.Message{Title: name, Text: fmt.Sprintf("%s was added to your applications.", name)}, true
	case o.Action == ActionUninstall:
		return dialog.Message{Title: name, Text: fmt.Sprintf("%s was removed.", name)}, true
	default:
		return dialog.Message{}, false
	}
}
