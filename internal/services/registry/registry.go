// Package registry holds the ordered ports under test and their observed
// state. It is not safe for concurrent use; a run touches it from one
// goroutine only.
package registry

import (
	"errors"
	"fmt"

	"github.com/fgeck/poecheck/internal/models"
)

// ErrUnknownPort is returned for port ids that were not configured.
var ErrUnknownPort = errors.New("unknown port")

// Registry is the fixed, ordered set of ports for a run.
type Registry struct {
	order []string
	ports map[string]*models.Port
}

// New creates a registry with every port reset. Duplicate ids are rejected.
func New(ids []string) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(ids)),
		ports: make(map[string]*models.Port, len(ids)),
	}
	for _, id := range ids {
		if _, ok := r.ports[id]; ok {
			return nil, fmt.Errorf("duplicate port %q", id)
		}
		r.order = append(r.order, id)
		r.ports[id] = &models.Port{
			ID:             id,
			AdminState:     models.AdminDisabled,
			Classification: models.ClassPending,
		}
	}
	return r, nil
}

func (r *Registry) lookup(id string) (*models.Port, error) {
	p, ok := r.ports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPort, id)
	}
	return p, nil
}

// Reset puts a port back into disabled, unpowered, pending.
func (r *Registry) Reset(id string) error {
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	p.AdminState = models.AdminDisabled
	p.Watts = 0
	p.PowerPresent = false
	p.Classification = models.ClassPending
	p.Status = ""
	return nil
}

// SetAdminState records the admin state. Disabling a port clears its power.
func (r *Registry) SetAdminState(id string, state models.AdminState) error {
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	p.AdminState = state
	if state == models.AdminDisabled {
		p.Watts = 0
		p.PowerPresent = false
	}
	return nil
}

// RecordPower stores a power reading. Readings for disabled ports are stored
// as absent.
func (r *Registry) RecordPower(id string, watts int, present bool) error {
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	if p.AdminState != models.AdminEnabled {
		present = false
	}
	if !present {
		watts = 0
	}
	p.Watts = watts
	p.PowerPresent = present
	return nil
}

// RecordStatus stores the last status token the switch reported.
func (r *Registry) RecordStatus(id, status string) error {
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	p.Status = status
	return nil
}

// Classify marks the port success when its power exceeds threshold and failed
// otherwise, and returns the classification.
func (r *Registry) Classify(id string, threshold int) (models.Classification, error) {
	p, err := r.lookup(id)
	if err != nil {
		return "", err
	}
	if p.PowerPresent && p.Watts > threshold {
		p.Classification = models.ClassSuccess
	} else {
		p.Classification = models.ClassFailed
	}
	return p.Classification, nil
}

// Get returns a copy of a port's state.
func (r *Registry) Get(id string) (models.Port, error) {
	p, err := r.lookup(id)
	if err != nil {
		return models.Port{}, err
	}
	return *p, nil
}

// IDs returns the port ids in registry order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Ports returns a snapshot of every port in registry order.
func (r *Registry) Ports() []models.Port {
	out := make([]models.Port, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.ports[id])
	}
	return out
}

// Len returns the number of ports.
func (r *Registry) Len() int {
	return len(r.order)
}
