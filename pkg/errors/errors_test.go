package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreconditionError_Message(t *testing.T) {
	t.Parallel()

	err := NewPreconditionError("nginx", "binary not found on PATH", nil)
	assert.Equal(t, "precondition failed: nginx: binary not found on PATH", err.Error())
	assert.True(t, IsFatal(err))
}

func TestValidationError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("unexpected token")
	err := NewValidationError("proxy vhost", "nginx -t rejected config", cause)

	var valErr *ValidationError
	require.True(t, stderrors.As(err, &valErr))
	assert.Equal(t, "proxy vhost", valErr.Artifact)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsFatal(err))
}

func TestActivationError_Message(t *testing.T) {
	t.Parallel()

	err := NewActivationError("relay-web.service", "start failed after stop", nil)
	assert.Contains(t, err.Error(), "relay-web.service")
	assert.Contains(t, err.Error(), "activation error")
}

func TestTimeoutError_Attempts(t *testing.T) {
	t.Parallel()

	err := NewTimeoutError("postgresql.service", 10, nil)
	assert.Equal(t, "timeout: postgresql.service not ready after 10 attempts", err.Error())
}

func TestAbortError_WrapsCause(t *testing.T) {
	t.Parallel()

	cause := NewActivationError("nginx.service", "reload failed", nil)
	err := NewAbortError("configure proxy", cause)

	var abort *AbortError
	require.True(t, stderrors.As(err, &abort))
	assert.Equal(t, "configure proxy", abort.Step)

	var act *ActivationError
	assert.True(t, stderrors.As(err, &act))
}

func TestExecError_CarriesEvidence(t *testing.T) {
	t.Parallel()

	err := NewExecError("nginx -t", 1, "emerg: unknown directive", nil)

	var execErr *ExecError
	require.True(t, stderrors.As(err, &execErr))
	assert.Equal(t, 1, execErr.ExitCode)
	assert.Contains(t, err.Error(), "unknown directive")
}

func TestIsFatal_WrappedPrecondition(t *testing.T) {
	t.Parallel()

	inner := NewPreconditionError("certbot", "not installed", nil)
	wrapped := fmt.Errorf("tls step: %w", inner)
	assert.True(t, IsFatal(wrapped))
}
