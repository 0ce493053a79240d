package diagnose

import (
	"context"

	"github.com/relaystack/relayctl/internal/logger"
)

// Check pairs a read-only probe with an optional remediation. The probe
// returns nil when the condition holds; otherwise its error is the
// concrete evidence (which port, which table, which file). Remediation
// must route through the artifact mutator or the service controller so
// the usual backup/validate/rollback guarantees apply.
type Check struct {
	Name   string
	Probe  func(ctx context.Context) error
	Repair func(ctx context.Context) error
}

// Result is one evaluated check in a report.
type Result struct {
	Name      string
	Passed    bool
	Evidence  string
	Repaired  bool
	RepairErr error
}

// Report is the engine's primary artifact: every check result in
// evaluation order.
type Report struct {
	Results []Result
}

// Failed reports whether any check failed and stayed failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if !res.Passed && !res.Repaired {
			return true
		}
	}
	return false
}

// Confirmer gates each repair. Interactive runs ask the operator;
// unattended repair runs supply one that always answers yes.
type Confirmer interface {
	Confirm(check, evidence string) bool
}

// ConfirmAll approves every repair.
type ConfirmAll struct{}

// Confirm implements Confirmer.
func (ConfirmAll) Confirm(string, string) bool { return true }

// Engine evaluates checks and, when asked, repairs detected drift.
type Engine struct {
	checks []Check
	log    *logger.Logger
}

// NewEngine builds an Engine over an ordered check set.
func NewEngine(checks []Check, log *logger.Logger) *Engine {
	return &Engine{checks: checks, log: log}
}

// Run evaluates every check in order. Without repair it is strictly
// read-only: probes observe, nothing mutates. With repair, each failed
// check that has a remediation and is confirmed gets repaired and then
// re-probed; Repaired is only set when the re-probe passes.
func (e *Engine) Run(ctx context.Context, repair bool, confirm Confirmer) *Report {
	report := &Report{Results: make([]Result, 0, len(e.checks))}

	for _, check := range e.checks {
		res := Result{Name: check.Name}

		err := check.Probe(ctx)
		if err == nil {
			res.Passed = true
			report.Results = append(report.Results, res)
			continue
		}
		res.Evidence = err.Error()
		e.log.WithFields(map[string]any{"check": check.Name}).Warn("drift detected: " + res.Evidence)

		if repair && check.Repair != nil && confirm != nil && confirm.Confirm(check.Name, res.Evidence) {
			if repairErr := check.Repair(ctx); repairErr != nil {
				res.RepairErr = repairErr
				e.log.WithFields(map[string]any{"check": check.Name}).Error(repairErr, "repair failed")
			} else if reprobe := check.Probe(ctx); reprobe == nil {
				res.Repaired = true
				e.log.WithFields(map[string]any{"check": check.Name}).Info("drift repaired")
			} else {
				res.Evidence = reprobe.Error()
			}
		}

		report.Results = append(report.Results, res)
	}

	return report
}
