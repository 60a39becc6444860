//go:build !unix

package registry

import (
	"context"
	"os"
	"time"
)

// acquireLock is a no-op where advisory locks are unavailable. A nil file
// means "proceed without lock".
func acquireLock(_ context.Context, _ string, _ time.Duration) (*os.File, error) {
	return nil, nil
}

func releaseLock(_ *os.File) error {
	return nil
}
