package service

import (
	"context"
	"fmt"
	"time"

	"github.com/relaystack/relayctl/internal/logger"
	"github.com/relaystack/relayctl/internal/runner"
	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

// PollPolicy bounds how long StartAll waits for a service to come up.
// Delays grow exponentially up to MaxDelay; MaxAttempts caps the loop so
// a wedged unit cannot hang a run forever.
type PollPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPollPolicy waits roughly a minute in the worst case.
var DefaultPollPolicy = PollPolicy{
	MaxAttempts:  8,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// Controller drives named services through systemctl. It never retries a
// failed operation on its own; retry is the step executor's decision.
// Observed state is always re-queried, never cached.
type Controller struct {
	run  runner.Runner
	log  *logger.Logger
	poll PollPolicy
}

// NewController builds a Controller with the default poll policy.
func NewController(run runner.Runner, log *logger.Logger) *Controller {
	return &Controller{run: run, log: log, poll: DefaultPollPolicy}
}

// WithPollPolicy overrides the wait bounds, mainly for tests.
func (c *Controller) WithPollPolicy(p PollPolicy) *Controller {
	c.poll = p
	return c
}

// IsActive queries live state through systemctl is-active. A non-zero
// exit means inactive, not an error.
func (c *Controller) IsActive(ctx context.Context, service string) (bool, error) {
	res, err := c.run.Run(ctx, "systemctl", "is-active", "--quiet", service)
	if err != nil {
		return false, err
	}
	return res.Ok(), nil
}

// StatusSummary returns the human-readable status text for a service.
func (c *Controller) StatusSummary(ctx context.Context, service string) (string, error) {
	res, err := c.run.Run(ctx, "systemctl", "status", "--no-pager", "--lines=5", service)
	if err != nil {
		return "", err
	}
	// systemctl status exits non-zero for inactive units; the text is
	// still the summary the operator wants.
	return res.Stdout, nil
}

// Start brings a service up. Starting an already-active service is a
// logged no-op.
func (c *Controller) Start(ctx context.Context, service string) error {
	active, err := c.IsActive(ctx, service)
	if err != nil {
		return err
	}
	if active {
		c.log.WithFields(map[string]any{"service": service}).Debug("already active, start skipped")
		return nil
	}

	res, err := c.run.Run(ctx, "systemctl", "start", service)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return relayerrors.NewActivationError(service, fmt.Sprintf("start failed: %s", res.Output()), runner.ExecErrorFromResult(res))
	}
	c.log.WithFields(map[string]any{"service": service}).Info("service started")
	return nil
}

// Stop brings a service down. Stopping an inactive service is a logged
// no-op, not an error.
func (c *Controller) Stop(ctx context.Context, service string) error {
	active, err := c.IsActive(ctx, service)
	if err != nil {
		return err
	}
	if !active {
		c.log.WithFields(map[string]any{"service": service}).Debug("not active, stop skipped")
		return nil
	}

	res, err := c.run.Run(ctx, "systemctl", "stop", service)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return relayerrors.NewActivationError(service, fmt.Sprintf("stop failed: %s", res.Output()), runner.ExecErrorFromResult(res))
	}
	c.log.WithFields(map[string]any{"service": service}).Info("service stopped")
	return nil
}

// Restart is stop followed by start, not an atomic primitive. When the
// start half fails the service is observably stopped and the returned
// ActivationError says so; a failed restart is never masked as success.
func (c *Controller) Restart(ctx context.Context, service string) error {
	if err := c.Stop(ctx, service); err != nil {
		return err
	}
	if err := c.Start(ctx, service); err != nil {
		return relayerrors.NewActivationError(service, "restart left service stopped", err)
	}
	return nil
}

// Reload asks a service to re-read its configuration.
func (c *Controller) Reload(ctx context.Context, service string) error {
	res, err := c.run.Run(ctx, "systemctl", "reload", service)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return relayerrors.NewActivationError(service, fmt.Sprintf("reload failed: %s", res.Output()), runner.ExecErrorFromResult(res))
	}
	return nil
}

// Enable marks a service for boot-time start.
func (c *Controller) Enable(ctx context.Context, service string) error {
	res, err := c.run.Run(ctx, "systemctl", "enable", service)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return relayerrors.NewActivationError(service, fmt.Sprintf("enable failed: %s", res.Output()), runner.ExecErrorFromResult(res))
	}
	return nil
}

// DaemonReload makes systemd pick up changed unit definitions.
func (c *Controller) DaemonReload(ctx context.Context) error {
	res, err := c.run.Run(ctx, "systemctl", "daemon-reload")
	if err != nil {
		return err
	}
	if !res.Ok() {
		return relayerrors.NewActivationError("systemd", fmt.Sprintf("daemon-reload failed: %s", res.Output()), runner.ExecErrorFromResult(res))
	}
	return nil
}

// StartAll starts services in the given dependency order, waiting for
// each to reach the active state before the next one starts. A service
// that never comes up aborts the remainder of the sequence.
func (c *Controller) StartAll(ctx context.Context, ordered []string) error {
	for _, service := range ordered {
		if err := c.Start(ctx, service); err != nil {
			return fmt.Errorf("start sequence aborted at %s: %w", service, err)
		}
		if err := c.waitActive(ctx, service); err != nil {
			return fmt.Errorf("start sequence aborted at %s: %w", service, err)
		}
	}
	return nil
}

// StopAll stops services in reverse dependency order.
func (c *Controller) StopAll(ctx context.Context, ordered []string) error {
	for i := len(ordered) - 1; i >= 0; i-- {
		if err := c.Stop(ctx, ordered[i]); err != nil {
			return fmt.Errorf("stop sequence aborted at %s: %w", ordered[i], err)
		}
	}
	return nil
}

func (c *Controller) waitActive(ctx context.Context, service string) error {
	delay := c.poll.InitialDelay
	for attempt := 1; attempt <= c.poll.MaxAttempts; attempt++ {
		active, err := c.IsActive(ctx, service)
		if err != nil {
			return err
		}
		if active {
			return nil
		}
		if attempt == c.poll.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return relayerrors.NewTimeoutError(service, attempt, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.poll.MaxDelay {
			delay = c.poll.MaxDelay
		}
	}
	return relayerrors.NewTimeoutError(service, c.poll.MaxAttempts, nil)
}
