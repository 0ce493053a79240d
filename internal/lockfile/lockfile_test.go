package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

func TestAcquire_ReleaseAllowsReacquire(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "relayctl.lock")

	release, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, release())

	release2, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, release2())
}

func TestAcquire_HeldLockIsFatal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "relayctl.lock")

	release, err := Acquire(path)
	require.NoError(t, err)
	defer release() //nolint:errcheck

	_, err = Acquire(path)
	require.Error(t, err)

	var pre *relayerrors.PreconditionError
	assert.ErrorAs(t, err, &pre)
}
