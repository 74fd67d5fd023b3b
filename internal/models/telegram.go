package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a run report.
type TelegramMessage struct {
	Success   bool
	Switch    string
	Mode      Mode
	StartTime time.Time
	Duration  time.Duration
	Attempts  int

	// Port outcomes (if the run reached the drive stage).
	Ports     []Port
	Succeeded int
	Failed    int
	Passes    int

	// Error info (if failed).
	ErrorMessage string
	Interrupted  bool
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
