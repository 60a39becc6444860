//go:build unix

package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/3leaps/appimage-installer/internal/model"
)

var errLockHeld = errors.New("lock held by another process")

// acquireLock takes an exclusive advisory lock on path. A held lock is
// retried with backoff until timeout elapses, then reported as
// model.ErrRegistryBusy.
func acquireLock(ctx context.Context, path string, timeout time.Duration) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600) // #nosec G304 -- lock file lives next to the registry
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	try := func() error {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB) // #nosec G115 -- fd fits in int
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
			return errLockHeld
		default:
			return backoff.Permanent(fmt.Errorf("flock %s: %w", path, err))
		}
	}

	if timeout <= 0 {
		err = try()
	} else {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 20 * time.Millisecond
		b.MaxInterval = 250 * time.Millisecond
		b.MaxElapsedTime = timeout
		err = backoff.Retry(try, backoff.WithContext(b, ctx))
	}
	if err != nil {
		_ = f.Close()
		if errors.Is(err, errLockHeld) {
			return nil, fmt.Errorf("%w: %s is locked by another process", model.ErrRegistryBusy, path)
		}
		return nil, err
	}

	log.Tracef("acquired registry lock %s", path)
	return f, nil
}

func releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil { // #nosec G115 -- fd fits in int
		return fmt.Errorf("unlock %s: %w", f.Name(), err)
	}
	return nil
}
