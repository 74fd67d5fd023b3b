package models

import "time"

// Mode selects what the orchestrator drives after preparation.
type Mode string

// Drive modes.
const (
	ModeSequential Mode = "sequential"
	ModeMonitor    Mode = "monitor"
)

// RunResult holds the outcome of a run.
type RunResult struct {
	Mode      Mode
	Attempts  int
	Passes    int    // monitoring passes completed in the last attempt
	Ports     []Port // registry snapshot at the end of the run
	StartTime time.Time
	Duration  time.Duration
	Error     error
}

// Succeeded returns the number of ports classified as success.
func (r *RunResult) Succeeded() int {
	n := 0
	for _, p := range r.Ports {
		if p.Classification == ClassSuccess {
			n++
		}
	}
	return n
}

// Failed returns the number of ports classified as failed.
func (r *RunResult) Failed() int {
	n := 0
	for _, p := range r.Ports {
		if p.Classification == ClassFailed {
			n++
		}
	}
	return n
}
