package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaystack/relayctl/internal/logger"
	"github.com/relaystack/relayctl/internal/runner/runnertest"
	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

var fastPoll = PollPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func testController(t *testing.T, fake *runnertest.Fake) *Controller {
	t.Helper()
	log, err := logger.New(logger.Options{Level: "error"})
	require.NoError(t, err)
	return NewController(fake, log).WithPollPolicy(fastPoll)
}

func isActiveLine(service string) string {
	return "systemctl is-active --quiet " + service
}

func TestIsActive(t *testing.T) {
	t.Parallel()

	fake := runnertest.New()
	fake.Script(isActiveLine("nginx.service"), runnertest.Response{ExitCode: 3})
	ctrl := testController(t, fake)

	active, err := ctrl.IsActive(context.Background(), "nginx.service")
	require.NoError(t, err)
	assert.False(t, active, "non-zero is-active exit means inactive, not an error")
}

func TestStop_InactiveServiceIsNoOp(t *testing.T) {
	t.Parallel()

	fake := runnertest.New()
	fake.Script(isActiveLine("relay-web.service"), runnertest.Response{ExitCode: 3})
	ctrl := testController(t, fake)

	err := ctrl.Stop(context.Background(), "relay-web.service")
	require.NoError(t, err)
	assert.Zero(t, fake.CallCount("systemctl stop relay-web.service"))
}

func TestStart_AlreadyActiveIsNoOp(t *testing.T) {
	t.Parallel()

	fake := runnertest.New()
	ctrl := testController(t, fake)

	// unscripted is-active defaults to exit 0 → active
	err := ctrl.Start(context.Background(), "relay-web.service")
	require.NoError(t, err)
	assert.Zero(t, fake.CallCount("systemctl start relay-web.service"))
}

func TestStart_FailureCarriesEvidence(t *testing.T) {
	t.Parallel()

	fake := runnertest.New()
	fake.Script(isActiveLine("relay-bot.service"), runnertest.Response{ExitCode: 3})
	fake.Script("systemctl start relay-bot.service", runnertest.Response{ExitCode: 1, Stderr: "Failed to start relay-bot.service: Unit not found."})
	ctrl := testController(t, fake)

	err := ctrl.Start(context.Background(), "relay-bot.service")
	require.Error(t, err)

	var act *relayerrors.ActivationError
	require.ErrorAs(t, err, &act)
	assert.Contains(t, err.Error(), "Unit not found")
}

func TestRestart_StartFailureSurfacesStoppedState(t *testing.T) {
	t.Parallel()

	fake := runnertest.New()
	// active before stop, inactive afterwards
	fake.Script(isActiveLine("relay-web.service"), runnertest.Response{ExitCode: 0})
	fake.Script(isActiveLine("relay-web.service"), runnertest.Response{ExitCode: 3})
	fake.Script("systemctl start relay-web.service", runnertest.Response{ExitCode: 1, Stderr: "start request failed"})
	ctrl := testController(t, fake)

	err := ctrl.Restart(context.Background(), "relay-web.service")
	require.Error(t, err)

	var act *relayerrors.ActivationError
	require.ErrorAs(t, err, &act)
	assert.Contains(t, err.Error(), "restart left service stopped")
	assert.Equal(t, 1, fake.CallCount("systemctl stop relay-web.service"))
}

func TestStartAll_RespectsDependencyOrder(t *testing.T) {
	t.Parallel()

	services := []string{"postgresql.service", "relay-web.service", "nginx.service"}

	fake := runnertest.New()
	for _, svc := range services {
		// inactive when first queried, active once started
		fake.Script(isActiveLine(svc), runnertest.Response{ExitCode: 3})
		fake.Script(isActiveLine(svc), runnertest.Response{ExitCode: 0})
	}
	ctrl := testController(t, fake)

	require.NoError(t, ctrl.StartAll(context.Background(), services))

	assert.True(t, fake.CalledBefore("systemctl start postgresql.service", "systemctl start relay-web.service"))
	assert.True(t, fake.CalledBefore("systemctl start relay-web.service", "systemctl start nginx.service"))
}

func TestStartAll_AbortsWhenDependencyNeverComesUp(t *testing.T) {
	t.Parallel()

	fake := runnertest.New()
	// postgresql starts but never reaches active
	fake.Script(isActiveLine("postgresql.service"), runnertest.Response{ExitCode: 3})
	fake.Script(isActiveLine("postgresql.service"), runnertest.Response{ExitCode: 3})
	fake.Script(isActiveLine("postgresql.service"), runnertest.Response{ExitCode: 3})
	fake.Script(isActiveLine("postgresql.service"), runnertest.Response{ExitCode: 3})
	ctrl := testController(t, fake)

	err := ctrl.StartAll(context.Background(), []string{"postgresql.service", "relay-web.service"})
	require.Error(t, err)

	var timeout *relayerrors.TimeoutError
	assert.ErrorAs(t, err, &timeout)
	assert.Zero(t, fake.CallCount("systemctl start relay-web.service"), "dependents must not start after a timeout")
}

func TestStopAll_ReverseOrder(t *testing.T) {
	t.Parallel()

	fake := runnertest.New()
	ctrl := testController(t, fake)

	// unscripted is-active → active, so every stop runs
	require.NoError(t, ctrl.StopAll(context.Background(), []string{"postgresql.service", "relay-web.service", "nginx.service"}))

	assert.True(t, fake.CalledBefore("systemctl stop nginx.service", "systemctl stop relay-web.service"))
	assert.True(t, fake.CalledBefore("systemctl stop relay-web.service", "systemctl stop postgresql.service"))
}

func TestStatusSummary_ReturnsTextForInactiveUnit(t *testing.T) {
	t.Parallel()

	fake := runnertest.New()
	fake.Script("systemctl status --no-pager --lines=5 relay-bot.service",
		runnertest.Response{ExitCode: 3, Stdout: "inactive (dead)"})
	ctrl := testController(t, fake)

	text, err := ctrl.StatusSummary(context.Background(), "relay-bot.service")
	require.NoError(t, err)
	assert.Contains(t, text, "inactive (dead)")
}

func TestDaemonReload_Failure(t *testing.T) {
	t.Parallel()

	fake := runnertest.New()
	fake.Script("systemctl daemon-reload", runnertest.Response{ExitCode: 1, Stderr: "Access denied"})
	ctrl := testController(t, fake)

	err := ctrl.DaemonReload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access denied")
}
