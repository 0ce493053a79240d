package step

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/relaystack/relayctl/internal/logger"
	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

// Step is one named, retryable unit of orchestration work. Actions must be
// safely re-runnable: a retry re-invokes the same closure, so every action
// checks current state before mutating.
type Step struct {
	Label  string
	Action func(ctx context.Context) error
}

// Decision is the operator's answer to a failed step.
type Decision int

const (
	// Retry re-invokes the failed action.
	Retry Decision = iota
	// Abort gives up on the step and propagates the failure.
	Abort
)

// Decider supplies retry-or-abort decisions. Interactive runs prompt the
// operator; unattended runs plug in a fixed policy instead. This is the
// only seam through which the engine asks a human anything.
type Decider interface {
	Decide(label string, attempt int, cause error) Decision
}

// Policy is a non-interactive Decider: retry up to MaxRetries times, then
// abort.
type Policy struct {
	MaxRetries int
}

// Decide implements Decider.
func (p Policy) Decide(_ string, attempt int, _ error) Decision {
	if attempt <= p.MaxRetries {
		return Retry
	}
	return Abort
}

// Prompt is the interactive Decider. It prints the failure evidence and
// reads a single-letter answer. One scanner lives for the Prompt's
// lifetime: a fresh scanner per question would buffer-consume input
// meant for the next one.
type Prompt struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

// Decide implements Decider.
func (p *Prompt) Decide(label string, attempt int, cause error) Decision {
	fmt.Fprintf(p.Out, "step %q failed (attempt %d): %v\n", label, attempt, cause)
	fmt.Fprint(p.Out, "[r]etry or [a]bort? ")

	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	if !p.scanner.Scan() {
		return Abort
	}
	switch strings.ToLower(strings.TrimSpace(p.scanner.Text())) {
	case "r", "retry":
		return Retry
	default:
		return Abort
	}
}

// Executor runs steps and mediates failures through the Decider.
type Executor struct {
	decider Decider
	log     *logger.Logger
}

// NewExecutor builds an Executor.
func NewExecutor(decider Decider, log *logger.Logger) *Executor {
	return &Executor{decider: decider, log: log}
}

// Run executes the step, retrying on demand. Fatal precondition failures
// are never offered for retry: the host has to change before they can
// pass. The final failure is wrapped in an AbortError naming the step.
func (e *Executor) Run(ctx context.Context, s Step) error {
	for attempt := 1; ; attempt++ {
		e.log.WithFields(map[string]any{"step": s.Label, "attempt": attempt}).Info("running step")

		err := s.Action(ctx)
		if err == nil {
			e.log.WithFields(map[string]any{"step": s.Label}).Info("step succeeded")
			return nil
		}

		e.log.WithFields(map[string]any{"step": s.Label, "attempt": attempt}).Error(err, "step failed")

		if relayerrors.IsFatal(err) {
			return relayerrors.NewAbortError(s.Label, err)
		}
		if ctx.Err() != nil {
			return relayerrors.NewAbortError(s.Label, ctx.Err())
		}

		if e.decider.Decide(s.Label, attempt, err) == Abort {
			return relayerrors.NewAbortError(s.Label, err)
		}
	}
}
