package pipeline

import (
	"context"
	"time"

	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
)

// Step is one unit of work in a pipeline. A BestEffort step may fail without
// failing the run; an Always step runs even after an earlier step failed.
type Step struct {
	Name       string
	BestEffort bool
	Always     bool
	Run        func(ctx context.Context) error
}

type Outcome struct {
	Step     string
	Err      error
	Skipped  bool
	Duration time.Duration
}

func (o Outcome) Succeeded() bool {
	return !o.Skipped && o.Err == nil
}

type Report struct {
	Outcomes []Outcome
	failed   bool
	firstErr error
}

// Failed reports whether a step that was not best-effort returned an error.
func (r *Report) Failed() bool {
	return r.failed
}

// Err returns the error of the first failing required step, if any.
func (r *Report) Err() error {
	return r.firstErr
}

func (r *Report) Outcome(step string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Step == step {
			return o, true
		}
	}
	return Outcome{}, false
}

// Observer is notified after every step.
type Observer func(step Step, outcome Outcome)

type Runner struct {
	observers []Observer
}

func NewRunner(observers ...Observer) *Runner {
	return &Runner{observers: observers}
}

// Run executes steps in order. After the first required step fails, the
// remaining steps are skipped unless marked Always. A canceled context
// counts as a failure of the step it interrupted.
func (r *Runner) Run(ctx context.Context, steps []Step) *Report {
	log := logger.FromContext(ctx)
	report := &Report{Outcomes: make([]Outcome, 0, len(steps))}

	for _, step := range steps {
		outcome := Outcome{Step: step.Name}

		switch {
		case report.failed && !step.Always:
			outcome.Skipped = true
		case ctx.Err() != nil && !step.Always:
			outcome.Err = ctx.Err()
		default:
			outcome.Duration, outcome.Err = logger.TimedOperation(ctx, step.Name, step.Run)
		}

		if outcome.Err != nil {
			if step.BestEffort {
				log.Warn("step failed, continuing", "step", step.Name, "error", outcome.Err)
			} else if !report.failed {
				report.failed = true
				report.firstErr = outcome.Err
			}
		}

		report.Outcomes = append(report.Outcomes, outcome)
		for _, obs := range r.observers {
			obs(step, outcome)
		}
	}

	return report
}
