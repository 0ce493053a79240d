package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

// Acquire takes the advisory run lock at path. Exactly one orchestration
// or repair run may hold it; a second concurrent invocation fails fast
// with a fatal precondition instead of racing the first. The returned
// release func must be called when the run ends.
func Acquire(path string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock %s: %w", path, err)
	}
	if !locked {
		return nil, relayerrors.NewPreconditionError(
			"run lock",
			fmt.Sprintf("%s is held by another run; only one run may be active per host", path),
			nil,
		)
	}

	return lock.Unlock, nil
}
