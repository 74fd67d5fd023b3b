package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fgeck/poecheck/internal/models"
)

// presenter prints observations as they arrive.
type presenter struct {
	mu  sync.Mutex
	out io.Writer
}

func newPresenter(out io.Writer) *presenter {
	return &presenter{out: out}
}

func (p *presenter) Observe(obs models.Observation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch obs.Kind {
	case models.ObservationActivation:
		fmt.Fprintf(p.out, "Port: %s -> %s [%s]\n", obs.Port, watts(obs), label(obs.Classification))
	case models.ObservationPower:
		fmt.Fprintf(p.out, "Port: %s -> %s\n", obs.Port, watts(obs))
	case models.ObservationStatus:
		fmt.Fprintf(p.out, "Port: %s -> %s\n", obs.Port, obs.Status)
	}
}

func (p *presenter) Countdown(remaining time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	secs := int((remaining + time.Second - 1) / time.Second)
	if secs == 0 {
		return
	}
	fmt.Fprintf(p.out, "next launch in %d\n", secs)
}

// Summary prints the outcome of a finished run.
func (p *presenter) Summary(result *models.RunResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "Mode: %s  Attempts: %d  Duration: %s\n",
		result.Mode, result.Attempts, result.Duration.Round(time.Second))
	if result.Mode == models.ModeMonitor {
		fmt.Fprintf(p.out, "Passes: %d\n", result.Passes)
		return
	}

	var failed []string
	for _, port := range result.Ports {
		if port.Classification == models.ClassFailed {
			failed = append(failed, port.ID)
		}
	}
	fmt.Fprintf(p.out, "Passed: %d  Failed: %d\n", result.Succeeded(), result.Failed())
	if len(failed) > 0 {
		fmt.Fprintf(p.out, "Failed ports: %s\n", strings.Join(failed, ", "))
	}
}

func watts(obs models.Observation) string {
	if !obs.PowerPresent {
		return "no power"
	}
	return fmt.Sprintf("%d [W]", obs.Watts)
}

func label(c models.Classification) string {
	switch c {
	case models.ClassSuccess:
		return "Success"
	case models.ClassFailed:
		return "Failed"
	default:
		return "Pending"
	}
}
