package runnertest

import (
	"context"
	"strings"
	"sync"

	"github.com/relaystack/relayctl/internal/runner"
	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

// Response is what the fake returns for one matched command line.
type Response struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Fake is a scripted Runner for tests. Commands are matched by their full
// command line; unmatched commands succeed with exit 0 so tests only
// script what they care about. All invocations are recorded in order.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]Response
	missing   map[string]bool
	Calls     []string
}

var _ runner.Runner = (*Fake)(nil)

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		responses: make(map[string][]Response),
		missing:   make(map[string]bool),
	}
}

// Script queues a response for the given command line. Multiple responses
// for the same line are consumed in order; the last one repeats.
func (f *Fake) Script(commandLine string, resp Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[commandLine] = append(f.responses[commandLine], resp)
	return f
}

// MarkMissing makes LookPath and Run fail for name as if the binary were
// not installed.
func (f *Fake) MarkMissing(name string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[name] = true
	return f
}

// Run implements runner.Runner.
func (f *Fake) Run(ctx context.Context, name string, args ...string) (runner.Result, error) {
	if err := ctx.Err(); err != nil {
		return runner.Result{Command: name, Args: args, ExitCode: -1}, relayerrors.NewTimeoutError(name, 0, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	line := commandLine(name, args)
	f.Calls = append(f.Calls, line)

	if f.missing[name] {
		return runner.Result{Command: name, Args: args, ExitCode: -1},
			relayerrors.NewPreconditionError(name, "command not found", nil)
	}

	queue := f.responses[line]
	if len(queue) == 0 {
		return runner.Result{Command: name, Args: args, ExitCode: 0}, nil
	}

	resp := queue[0]
	if len(queue) > 1 {
		f.responses[line] = queue[1:]
	}

	res := runner.Result{
		Command:  name,
		Args:     args,
		ExitCode: resp.ExitCode,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
	}
	return res, resp.Err
}

// LookPath implements runner.Runner.
func (f *Fake) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[name] {
		return "", relayerrors.NewPreconditionError(name, "command not found", nil)
	}
	return "/usr/bin/" + name, nil
}

// CallCount returns how many times commandLine ran.
func (f *Fake) CallCount(commandLine string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.Calls {
		if call == commandLine {
			count++
		}
	}
	return count
}

// CalledBefore reports whether the first occurrence of a precedes the
// first occurrence of b.
func (f *Fake) CalledBefore(a, b string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ai, bi := -1, -1
	for i, call := range f.Calls {
		if ai == -1 && call == a {
			ai = i
		}
		if bi == -1 && call == b {
			bi = i
		}
	}
	return ai != -1 && (bi == -1 || ai < bi)
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
