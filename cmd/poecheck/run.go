package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fgeck/poecheck/internal/config"
	"github.com/fgeck/poecheck/internal/models"
	"github.com/fgeck/poecheck/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runMode string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a PoE verification run",
	Long: `Execute a PoE verification run:
1. Enable PoE on the switch if needed and set the power ceiling
2. Apply the port power supply mode (if configured)
3. Disable every port under test
4. Drive the selected mode:
   sequential  enable each port, measure it, disable it when it draws power
   monitor     survey delivering ports until the time budget is spent
5. Re-run the whole procedure once if a step failed
6. Write the metrics textfile and send a Telegram report (if configured)`,
	RunE: runCheck,
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", string(models.ModeSequential), "drive mode: sequential or monitor")
}

func loadConfig(cmd *cobra.Command) (*models.Config, error) {
	if configFile == "" {
		log.Error().Msg("config file is required")
		_ = cmd.Help()
		return nil, errors.New("config file is required")
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	log.Info().
		Str("config", configFile).
		Str("switch", cfg.Switch.Host).
		Str("transport", cfg.Switch.Transport).
		Strs("ports", cfg.Test.Ports).
		Msg("configuration loaded")

	return cfg, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	mode := models.Mode(runMode)
	if mode != models.ModeSequential && mode != models.ModeMonitor {
		return fmt.Errorf("unsupported mode %q: use sequential or monitor", runMode)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	out := newPresenter(os.Stdout)
	runnerSvc := runner.New(log.Logger, out)
	result, err := runnerSvc.Run(ctx, *cfg, mode)
	if result != nil {
		out.Summary(result)
	}
	if err != nil {
		if errors.Is(err, runner.ErrInterrupted) {
			log.Warn().Msg("run interrupted")
			return err
		}
		log.Error().Err(err).Msg("PoE run failed")
		return err
	}

	log.Info().Msg("PoE run completed successfully")
	return nil
}
