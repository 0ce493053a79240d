package errors

import (
	"errors"
	"fmt"
)

// PreconditionError reports a required capability that is absent from the
// host (missing binary, unreadable directory, secrets not supplied). It is
// fatal: no retry can succeed until the operator fixes the host.
type PreconditionError struct {
	Capability string
	Message    string
	Err        error
}

// NewPreconditionError constructs a PreconditionError.
func NewPreconditionError(capability, message string, err error) error {
	return &PreconditionError{Capability: capability, Message: message, Err: err}
}

func (e *PreconditionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Capability != "" {
		return fmt.Sprintf("precondition failed: %s: %s", e.Capability, e.Message)
	}
	return fmt.Sprintf("precondition failed: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *PreconditionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError reports artifact content that failed its validator. The
// mutation that produced it has already been rolled back by the time the
// error is returned.
type ValidationError struct {
	Artifact string
	Message  string
	Err      error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(artifact, message string, err error) error {
	return &ValidationError{Artifact: artifact, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Artifact != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Artifact, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ActivationError reports content that validated but failed to take effect:
// the owning service refused a reload, or a stopped service would not start.
type ActivationError struct {
	Subject string
	Message string
	Err     error
}

// NewActivationError constructs an ActivationError.
func NewActivationError(subject, message string, err error) error {
	return &ActivationError{Subject: subject, Message: message, Err: err}
}

func (e *ActivationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Subject != "" {
		return fmt.Sprintf("activation error: %s: %s", e.Subject, e.Message)
	}
	return fmt.Sprintf("activation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ActivationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TimeoutError reports a bounded wait that ran out of attempts or hit its
// deadline before the observed state matched the desired one.
type TimeoutError struct {
	Subject  string
	Attempts int
	Err      error
}

// NewTimeoutError constructs a TimeoutError.
func NewTimeoutError(subject string, attempts int, err error) error {
	return &TimeoutError{Subject: subject, Attempts: attempts, Err: err}
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return ""
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("timeout: %s not ready after %d attempts", e.Subject, e.Attempts)
	}
	return fmt.Sprintf("timeout: %s", e.Subject)
}

// Unwrap exposes the underlying error.
func (e *TimeoutError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AbortError records an operator's explicit decision not to retry a failed
// step. It wraps the failure that prompted the decision.
type AbortError struct {
	Step string
	Err  error
}

// NewAbortError constructs an AbortError.
func NewAbortError(step string, err error) error {
	return &AbortError{Step: step, Err: err}
}

func (e *AbortError) Error() string {
	if e == nil {
		return ""
	}
	if e.Step != "" {
		return fmt.Sprintf("aborted at step %q: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("aborted: %v", e.Err)
}

// Unwrap exposes the underlying error.
func (e *AbortError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecError carries the evidence of a failed external command: what ran,
// how it exited, and what it printed. Diagnostics depend on this never
// being truncated to a bare exit code.
type ExecError struct {
	Command  string
	ExitCode int
	Output   string
	Err      error
}

// NewExecError constructs an ExecError.
func NewExecError(command string, exitCode int, output string, err error) error {
	return &ExecError{Command: command, ExitCode: exitCode, Output: output, Err: err}
}

func (e *ExecError) Error() string {
	if e == nil {
		return ""
	}
	if e.Output != "" {
		return fmt.Sprintf("command %q exited %d: %s", e.Command, e.ExitCode, e.Output)
	}
	return fmt.Sprintf("command %q exited %d", e.Command, e.ExitCode)
}

// Unwrap exposes the underlying error.
func (e *ExecError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsFatal reports whether err is of a kind no retry can fix.
func IsFatal(err error) bool {
	var pre *PreconditionError
	return errors.As(err, &pre)
}
