package poe

import (
	"time"

	"github.com/fgeck/poecheck/internal/models"
)

// Observer receives every observation the engine produces.
type Observer interface {
	Observe(obs models.Observation)
}

// CountdownObserver is also told how long until the next monitoring pass.
type CountdownObserver interface {
	Observer
	Countdown(remaining time.Duration)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(obs models.Observation)

// Observe calls f.
func (f ObserverFunc) Observe(obs models.Observation) {
	f(obs)
}

// Observers fans out to several observers in order.
type Observers []Observer

// Observe forwards obs to every observer.
func (o Observers) Observe(obs models.Observation) {
	for _, ob := range o {
		if ob != nil {
			ob.Observe(obs)
		}
	}
}

// Countdown forwards to the observers that care.
func (o Observers) Countdown(remaining time.Duration) {
	for _, ob := range o {
		if co, ok := ob.(CountdownObserver); ok {
			co.Countdown(remaining)
		}
	}
}

type discard struct{}

func (discard) Observe(models.Observation) {}
