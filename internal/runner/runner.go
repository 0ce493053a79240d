package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

// Result captures everything a caller needs to judge an external command:
// what ran, how it exited, and both output streams.
type Result struct {
	Command  string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Ok reports a zero exit.
func (r Result) Ok() bool {
	return r.ExitCode == 0
}

// CommandLine reconstructs the invocation for log and error messages.
func (r Result) CommandLine() string {
	if len(r.Args) == 0 {
		return r.Command
	}
	return r.Command + " " + strings.Join(r.Args, " ")
}

// Output returns stderr when present, otherwise stdout. External tools are
// inconsistent about which stream carries the useful evidence.
func (r Result) Output() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner executes external OS commands with host privileges. A non-zero
// exit is reported through Result, never as an error; errors are reserved
// for "could not run at all" conditions (binary missing, deadline hit,
// start failure). Callers that need a bound on network I/O pass a context
// with a deadline.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
	LookPath(name string) (string, error)
}

// System is the production Runner backed by os/exec.
type System struct{}

var _ Runner = System{}

// Run executes name with args, capturing both output streams.
func (System) Run(ctx context.Context, name string, args ...string) (Result, error) {
	res := Result{Command: name, Args: args}

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			res.ExitCode = exitErr.ExitCode()
			return res, relayerrors.NewTimeoutError(res.CommandLine(), 0, ctx.Err())
		}
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		res.ExitCode = -1
		return res, relayerrors.NewPreconditionError(name, "command not found", err)
	}

	res.ExitCode = -1
	if ctx.Err() != nil {
		return res, relayerrors.NewTimeoutError(res.CommandLine(), 0, ctx.Err())
	}
	return res, relayerrors.NewExecError(res.CommandLine(), -1, res.Output(), err)
}

// LookPath resolves name on PATH.
func (System) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", relayerrors.NewPreconditionError(name, "command not found", err)
	}
	return path, nil
}

// ExecErrorFromResult turns a non-zero Result into an ExecError carrying
// the command line and output evidence.
func ExecErrorFromResult(res Result) error {
	return relayerrors.NewExecError(res.CommandLine(), res.ExitCode, res.Output(), nil)
}
