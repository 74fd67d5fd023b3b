package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fgeck/poecheck/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var togglePort string

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Power cycle one port on every Enter keypress",
	Long: `Enable the given port, measure it and disable it again each time Enter is
pressed. Type q and Enter (or send EOF) to stop. Useful to collect switch logs
for a single device.`,
	RunE: runToggle,
}

func init() {
	toggleCmd.Flags().StringVarP(&togglePort, "port", "p", "", "port to toggle, e.g. 1/3 (required)")
}

func runToggle(cmd *cobra.Command, args []string) error {
	if togglePort == "" {
		return errors.New("--port is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Press Enter to toggle port %s, q to quit\n", togglePort)

	done := make(chan struct{})
	defer close(done)

	out := newPresenter(os.Stdout)
	runnerSvc := runner.New(log.Logger, out)
	if err := runnerSvc.Toggle(ctx, *cfg, togglePort, keypresses(done, os.Stdin)); err != nil {
		if !errors.Is(err, runner.ErrInterrupted) {
			log.Error().Err(err).Str("port", togglePort).Msg("toggle failed")
		}
		return err
	}
	return nil
}

// keypresses sends one value per input line until EOF, a line starting
// with q, or done being closed.
func keypresses(done <-chan struct{}, r io.Reader) <-chan struct{} {
	presses := make(chan struct{})
	go func() {
		defer close(presses)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if strings.HasPrefix(strings.TrimSpace(strings.ToLower(scanner.Text())), "q") {
				return
			}
			select {
			case presses <- struct{}{}:
			case <-done:
				return
			}
		}
	}()
	return presses
}
