package poe

import (
	"github.com/fgeck/poecheck/internal/models"
	"github.com/fgeck/poecheck/internal/services/registry"
	"github.com/rs/zerolog"
)

// Bench is what the controller and the monitoring loop share during one
// attempt. Everything is owned by the orchestrator.
type Bench struct {
	Switch   *Switch
	Registry *registry.Registry
	Clock    Clock
	RunClock RunClock
	Settings models.TestSettings
	Observer Observer
	Logger   zerolog.Logger
}

func (b Bench) observer() Observer {
	if b.Observer == nil {
		return discard{}
	}
	return b.Observer
}
