package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fgeck/poecheck/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without connecting to the switch.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	// Load configuration, validation included
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Switch:")
	fmt.Printf("  Host: %s:%d\n", cfg.Switch.Host, cfg.Switch.Port)
	fmt.Printf("  Transport: %s\n", cfg.Switch.Transport)
	fmt.Printf("  Username: %s\n", cfg.Switch.Username)
	fmt.Printf("  Timeout: %s\n", cfg.Switch.Timeout)
	if cfg.Switch.KeyPath != "" {
		fmt.Printf("  Key: %s\n", cfg.Switch.KeyPath)
	}
	if cfg.Switch.KnownHosts != "" {
		fmt.Printf("  Known hosts: %s\n", cfg.Switch.KnownHosts)
	} else if cfg.Switch.Transport == "ssh" {
		fmt.Println("  Known hosts: (host key not verified)")
	}
	fmt.Println()
	fmt.Println("Test:")
	fmt.Printf("  Ports: %s\n", strings.Join(cfg.Test.Ports, ", "))
	fmt.Printf("  Min consumption: %d W\n", cfg.Test.MinConsumption)
	fmt.Printf("  Power limit: %d W\n", cfg.Test.PowerLimit)
	fmt.Printf("  Settle delay: %s\n", cfg.Test.SettleDelay)
	fmt.Printf("  Survey delay: %s\n", cfg.Test.SurveyDelay)
	fmt.Printf("  Time budget: %s\n", cfg.Test.TimeBudget)
	fmt.Printf("  Retries: %d\n", cfg.Test.Retries)
	if cfg.Test.PortMode != "" {
		fmt.Printf("  Port mode: %s\n", cfg.Test.PortMode)
	}
	fmt.Printf("  Skip unknown status: %v\n", cfg.Test.SkipUnknownStatus)
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Metrics textfile: %v\n", cfg.Metrics.Textfile != "")
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.Metrics.Textfile != "" {
		fmt.Println()
		fmt.Println("Metrics Configuration:")
		fmt.Printf("  Textfile: %s\n", cfg.Metrics.Textfile)
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}
