package model

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedArchive  = errors.New("malformed archive")
	ErrUnreadableArchive = errors.New("unreadable archive")
	ErrMissingDescriptor = errors.New("missing application descriptor")
	ErrIconDecode        = errors.New("icon decode failure")
	ErrExtractionTimeout = errors.New("extraction timed out")
	ErrRegistryBusy      = errors.New("registry busy")
	ErrRegistryCorrupt   = errors.New("registry corrupt")
	ErrWriteFailure      = errors.New("write failure")
	ErrNotInstalled      = errors.New("not installed")
)

// CorruptError reports a registry file that cannot be trusted. The file is
// left untouched so the user can inspect or restore it.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("registry %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func (e *CorruptError) Is(target error) bool { return target == ErrRegistryCorrupt }

// WriteError reports a failed write of an integration artifact.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWriteFailure }

// Summary renders err as a single sentence suitable for a dialog.
func Summary(err error) string {
	var corrupt *CorruptError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &corrupt):
		return fmt.Sprintf("The application registry at %s is damaged and was left untouched. Repair or remove it and try again.", corrupt.Path)
	case errors.Is(err, ErrMalformedArchive):
		return "This file is not a valid AppImage."
	case errors.Is(err, ErrUnreadableArchive):
		return "The AppImage could not be read. Check that the file exists and that you have permission to read it."
	case errors.Is(err, ErrMissingDescriptor):
		return "The AppImage does not contain a desktop entry describing the application."
	case errors.Is(err, ErrExtractionTimeout):
		return "Reading the AppImage took too long and was stopped."
	case errors.Is(err, ErrRegistryBusy):
		return "Another installation is in progress. Try again in a moment."
	case errors.Is(err, ErrNotInstalled):
		return "That application is not installed."
	case errors.Is(err, ErrWriteFailure):
		return fmt.Sprintf("The application could not be installed: %v", err)
	default:
		return fmt.Sprintf("The operation failed: %v", err)
	}
}
