package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

func TestSystem_Run_ZeroExit(t *testing.T) {
	t.Parallel()

	res, err := System{}.Run(context.Background(), "true")
	require.NoError(t, err)
	assert.True(t, res.Ok())
	assert.Equal(t, 0, res.ExitCode)
}

func TestSystem_Run_NonZeroExitIsNotAnError(t *testing.T) {
	t.Parallel()

	res, err := System{}.Run(context.Background(), "false")
	require.NoError(t, err)
	assert.False(t, res.Ok())
	assert.NotEqual(t, 0, res.ExitCode)
}

func TestSystem_Run_CapturesOutput(t *testing.T) {
	t.Parallel()

	res, err := System{}.Run(context.Background(), "sh", "-c", "echo out; echo err 1>&2")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "out")
	assert.Contains(t, res.Stderr, "err")
	assert.Equal(t, "err", res.Output())
}

func TestSystem_Run_CommandNotFound(t *testing.T) {
	t.Parallel()

	_, err := System{}.Run(context.Background(), "definitely-not-a-real-binary-xyz")
	require.Error(t, err)

	var pre *relayerrors.PreconditionError
	assert.True(t, errors.As(err, &pre), "missing binary must be a PreconditionError, got %v", err)
}

func TestSystem_Run_Deadline(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := System{}.Run(ctx, "sleep", "5")
	require.Error(t, err)

	var timeout *relayerrors.TimeoutError
	assert.True(t, errors.As(err, &timeout), "deadline must surface as TimeoutError, got %v", err)
}

func TestSystem_LookPath(t *testing.T) {
	t.Parallel()

	path, err := System{}.LookPath("sh")
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	_, err = System{}.LookPath("definitely-not-a-real-binary-xyz")
	var pre *relayerrors.PreconditionError
	assert.True(t, errors.As(err, &pre))
}

func TestExecErrorFromResult(t *testing.T) {
	t.Parallel()

	res := Result{Command: "nginx", Args: []string{"-t"}, ExitCode: 1, Stderr: "emerg: bad directive"}
	err := ExecErrorFromResult(res)

	var execErr *relayerrors.ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "nginx -t", execErr.Command)
	assert.Equal(t, 1, execErr.ExitCode)
	assert.Contains(t, execErr.Output, "bad directive")
}
