package models

import "time"

// AdminState is the administrative PoE state of a switch port.
type AdminState string

// Admin states.
const (
	AdminDisabled AdminState = "disabled"
	AdminEnabled  AdminState = "enabled"
)

// Classification is the outcome of a port's activation test.
type Classification string

// Classifications.
const (
	ClassPending Classification = "pending"
	ClassSuccess Classification = "success"
	ClassFailed  Classification = "failed"
)

// Status tokens reported by the switch.
const (
	StatusEnabled    = "enabled"
	StatusDisabled   = "disabled"
	StatusDelivering = "delivering"
)

// Port is the observed state of one port under test.
type Port struct {
	ID             string
	AdminState     AdminState
	Watts          int
	PowerPresent   bool // Watts is meaningless when false
	Classification Classification
	Status         string // last status token reported by the switch
}

// Reading is a single parsed switch response for a port.
type Reading struct {
	Port         string
	Raw          string
	Watts        int
	PowerPresent bool
	Status       string
	Offset       time.Duration // elapsed run time when the reading was taken
}

// ObservationKind tells presenters which fields of an Observation are set.
type ObservationKind string

// Observation kinds.
const (
	ObservationActivation ObservationKind = "activation"
	ObservationPower      ObservationKind = "power"
	ObservationStatus     ObservationKind = "status"
)

// Observation is what the engine reports per port.
type Observation struct {
	Kind           ObservationKind
	Port           string
	Watts          int
	PowerPresent   bool
	Status         string
	Classification Classification // activation only
	Pass           int            // monitoring pass, starting at 1
	Offset         time.Duration
}
