// Package timing measures the steps of a pylambda command.
package timing

import (
	"fmt"
	"strings"
	"time"
)

// Step is a named duration between two marks
type Step struct {
	Label    string
	Duration time.Duration
}

// Timer tracks the duration of consecutive steps
type Timer struct {
	now   func() time.Time
	start time.Time
	last  time.Time
	steps []Step
}

// NewTimer creates a timer started now
func NewTimer() *Timer {
	return newTimer(time.Now)
}

func newTimer(now func() time.Time) *Timer {
	start := now()
	return &Timer{now: now, start: start, last: start}
}

// Mark closes the current step under label and returns its duration
func (t *Timer) Mark(label string) time.Duration {
	at := t.now()
	d := at.Sub(t.last)
	t.last = at
	t.steps = append(t.steps, Step{Label: label, Duration: d})
	return d
}

// Elapsed returns the total time since the timer started
func (t *Timer) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// Steps returns the recorded steps in order
func (t *Timer) Steps() []Step {
	return append([]Step(nil), t.steps...)
}

// Get returns the duration of a recorded step
func (t *Timer) Get(label string) (time.Duration, bool) {
	for _, s := range t.steps {
		if s.Label == label {
			return s.Duration, true
		}
	}
	return 0, false
}

// Summary formats the total and each step in seconds
func (t *Timer) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total: %.3fs", t.Elapsed().Seconds())
	if len(t.steps) > 0 {
		parts := make([]string, 0, len(t.steps))
		for _, s := range t.steps {
			parts = append(parts, fmt.Sprintf("%s: %.3fs", s.Label, s.Duration.Seconds()))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	return b.String()
}
