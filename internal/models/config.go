// Package models contains the data structures used throughout poecheck.
package models

import "time"

// Config holds the complete configuration for a PoE verification run.
type Config struct {
	Switch   SwitchConfig
	Test     TestSettings
	Commands Dialect
	Metrics  MetricsConfig
	Telegram *TelegramConfig // nil if not configured
}

// SwitchConfig holds the connection settings for the switch under test.
type SwitchConfig struct {
	Host           string
	Port           int
	Transport      string // "ssh" (default) or "telnet"
	Username       string
	Password       string
	EnablePassword string // optional, used when the login lands in user mode
	KeyPath        string // optional, ssh only
	PrivateKey     []byte // loaded from KeyPath
	KnownHosts     string // optional, ssh only; host key is not verified when empty
	Timeout        time.Duration
	Prompt         string // privileged prompt suffix, "#" by default
}

// TestSettings holds the engine parameters. They are read once and never
// changed during a run.
type TestSettings struct {
	Ports             []string
	MinConsumption    int // watts a port must exceed to pass
	PowerLimit        int // aggregate ceiling applied during preparation
	SettleDelay       time.Duration
	SurveyDelay       time.Duration
	TimeBudget        time.Duration
	Retries           int
	PortMode          string // optional power supply mode, e.g. "at"
	SkipUnknownStatus bool
}

// Dialect holds the CLI command templates for the switch. Port templates take
// the interface prefix and the port label.
type Dialect struct {
	InterfacePrefix string
	ShowPoE         string
	EnablePoE       string
	PowerLimit      string // %d ceiling
	PortAdmin       string // %s mode, %s prefix, %s port
	PortMode        string // %s mode, %s prefix, %s port
	ShowDelivering  string
	ShowPortPower   string // %s prefix, %s port
	PowerField      int    // whitespace field index holding the wattage
	ConfigEnter     string
	ConfigExit      string
}

// MetricsConfig holds the Prometheus textfile export settings.
type MetricsConfig struct {
	Textfile string // empty disables export
}

// DefaultDialect returns the command set understood by the switches the tool
// was written against.
func DefaultDialect() Dialect {
	return Dialect{
		InterfacePrefix: "GigabitEthernet",
		ShowPoE:         "show poe enable",
		EnablePoE:       "poe enable",
		PowerLimit:      "poe power limit %d",
		PortAdmin:       "poe enable mode %s port %s %s",
		PortMode:        "poe mode %s port %s %s",
		ShowDelivering:  "show poe ports delivering",
		ShowPortPower:   "show poe port %s %s status",
		PowerField:      1,
		ConfigEnter:     "configure terminal",
		ConfigExit:      "end",
	}
}
