// Package degrade carries the outcome of best-effort side calls (cache
// writes, task dispatch, queue-depth reads). A fault is a value the caller
// inspects and logs, never an error that aborts the primary operation.
package degrade

import (
	"fmt"
	"log/slog"
)

// Result is the outcome of one auxiliary step.
type Result struct {
	Step string
	Err  error
}

// OK reports a completed step.
func OK(step string) Result {
	return Result{Step: step}
}

// Fault reports a step that failed and was absorbed.
func Fault(step string, err error) Result {
	return Result{Step: step, Err: err}
}

// Degraded reports whether the step was absorbed as a fault.
func (r Result) Degraded() bool {
	return r.Err != nil
}

func (r Result) String() string {
	if r.Err == nil {
		return r.Step + ": ok"
	}
	return fmt.Sprintf("%s: degraded: %v", r.Step, r.Err)
}

// Log writes a warning for a degraded step and nothing otherwise.
func (r Result) Log(logger *slog.Logger, msg string, attrs ...any) {
	if r.Err == nil {
		return
	}
	logger.Warn(msg, append(attrs, "step", r.Step, "error", r.Err)...)
}

// Faults keeps only the degraded results.
func Faults(results ...Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Degraded() {
			out = append(out, r)
		}
	}
	return out
}
