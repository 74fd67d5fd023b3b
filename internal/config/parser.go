// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/poecheck/internal/models"
	"github.com/spf13/viper"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("switch.transport", "ssh")
	v.SetDefault("switch.timeout", 30*time.Second)
	v.SetDefault("switch.prompt", "#")

	v.SetDefault("test.min_consumption", 2)
	v.SetDefault("test.power_limit", 120)
	v.SetDefault("test.settle_delay", 3*time.Second)
	v.SetDefault("test.survey_delay", 5*time.Second)
	v.SetDefault("test.time_budget", 120*time.Second)
	v.SetDefault("test.retries", 1)
	v.SetDefault("test.skip_unknown_status", false)

	d := models.DefaultDialect()
	v.SetDefault("commands.interface_prefix", d.InterfacePrefix)
	v.SetDefault("commands.show_poe", d.ShowPoE)
	v.SetDefault("commands.enable_poe", d.EnablePoE)
	v.SetDefault("commands.power_limit", d.PowerLimit)
	v.SetDefault("commands.port_admin", d.PortAdmin)
	v.SetDefault("commands.port_mode", d.PortMode)
	v.SetDefault("commands.show_delivering", d.ShowDelivering)
	v.SetDefault("commands.show_port_power", d.ShowPortPower)
	v.SetDefault("commands.power_field", d.PowerField)
	v.SetDefault("commands.config_enter", d.ConfigEnter)
	v.SetDefault("commands.config_exit", d.ConfigExit)

	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{}

	// Parse switch connection (required).
	cfg.Switch = models.SwitchConfig{
		Host:           p.v.GetString("switch.host"),
		Port:           p.v.GetInt("switch.port"),
		Transport:      strings.ToLower(p.v.GetString("switch.transport")),
		Username:       p.expandEnv(p.v.GetString("switch.username")),
		Password:       p.expandEnv(p.v.GetString("switch.password")),
		EnablePassword: p.expandEnv(p.v.GetString("switch.enable_password")),
		KeyPath:        p.expandEnv(p.v.GetString("switch.key_path")),
		KnownHosts:     p.expandEnv(p.v.GetString("switch.known_hosts")),
		Timeout:        p.v.GetDuration("switch.timeout"),
		Prompt:         p.v.GetString("switch.prompt"),
	}

	if cfg.Switch.Port == 0 {
		cfg.Switch.Port = 22
		if cfg.Switch.Transport == "telnet" {
			cfg.Switch.Port = 23
		}
	}

	// Parse test settings.
	cfg.Test = models.TestSettings{
		Ports:             p.v.GetStringSlice("test.ports"),
		MinConsumption:    p.v.GetInt("test.min_consumption"),
		PowerLimit:        p.v.GetInt("test.power_limit"),
		SettleDelay:       p.v.GetDuration("test.settle_delay"),
		SurveyDelay:       p.v.GetDuration("test.survey_delay"),
		TimeBudget:        p.v.GetDuration("test.time_budget"),
		Retries:           p.v.GetInt("test.retries"),
		PortMode:          p.v.GetString("test.port_mode"),
		SkipUnknownStatus: p.v.GetBool("test.skip_unknown_status"),
	}

	// Parse command dialect.
	cfg.Commands = models.Dialect{
		InterfacePrefix: p.v.GetString("commands.interface_prefix"),
		ShowPoE:         p.v.GetString("commands.show_poe"),
		EnablePoE:       p.v.GetString("commands.enable_poe"),
		PowerLimit:      p.v.GetString("commands.power_limit"),
		PortAdmin:       p.v.GetString("commands.port_admin"),
		PortMode:        p.v.GetString("commands.port_mode"),
		ShowDelivering:  p.v.GetString("commands.show_delivering"),
		ShowPortPower:   p.v.GetString("commands.show_port_power"),
		PowerField:      p.v.GetInt("commands.power_field"),
		ConfigEnter:     p.v.GetString("commands.config_enter"),
		ConfigExit:      p.v.GetString("commands.config_exit"),
	}

	cfg.Metrics = models.MetricsConfig{
		Textfile: p.expandEnv(p.v.GetString("metrics.textfile")),
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
//
//nolint:gocyclo // one check per field
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	sw := cfg.Switch
	if sw.Host == "" {
		return fmt.Errorf("switch.host is required")
	}
	switch sw.Transport {
	case "ssh":
		if sw.Username == "" {
			return fmt.Errorf("switch.username is required for ssh")
		}
		if sw.Password == "" && sw.KeyPath == "" && len(sw.PrivateKey) == 0 {
			return fmt.Errorf("switch.password or switch.key_path is required for ssh")
		}
	case "telnet":
		if sw.KeyPath != "" {
			return fmt.Errorf("switch.key_path is not supported with telnet")
		}
	default:
		return fmt.Errorf("switch.transport must be one of: ssh, telnet")
	}
	if sw.Port < 1 || sw.Port > 65535 {
		return fmt.Errorf("switch.port must be between 1 and 65535")
	}
	if sw.Timeout <= 0 {
		return fmt.Errorf("switch.timeout must be positive")
	}

	t := cfg.Test
	if len(t.Ports) == 0 {
		return fmt.Errorf("test.ports is required")
	}
	seen := make(map[string]bool, len(t.Ports))
	for _, id := range t.Ports {
		if strings.TrimSpace(id) == "" || strings.ContainsAny(id, " \t") {
			return fmt.Errorf("test.ports contains an invalid port %q", id)
		}
		if seen[id] {
			return fmt.Errorf("test.ports contains %q more than once", id)
		}
		seen[id] = true
	}
	if t.MinConsumption < 0 {
		return fmt.Errorf("test.min_consumption must not be negative")
	}
	if t.PowerLimit <= 0 {
		return fmt.Errorf("test.power_limit must be positive")
	}
	if t.SettleDelay < 0 || t.SurveyDelay < 0 || t.TimeBudget < 0 {
		return fmt.Errorf("test delays and time_budget must not be negative")
	}
	if t.Retries < 0 {
		return fmt.Errorf("test.retries must not be negative")
	}

	c := cfg.Commands
	required := map[string]string{
		"commands.show_poe":        c.ShowPoE,
		"commands.enable_poe":      c.EnablePoE,
		"commands.power_limit":     c.PowerLimit,
		"commands.port_admin":      c.PortAdmin,
		"commands.show_delivering": c.ShowDelivering,
		"commands.show_port_power": c.ShowPortPower,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}
	if t.PortMode != "" && strings.TrimSpace(c.PortMode) == "" {
		return fmt.Errorf("commands.port_mode is required when test.port_mode is set")
	}
	if c.PowerField < 0 {
		return fmt.Errorf("commands.power_field must not be negative")
	}

	return nil
}
