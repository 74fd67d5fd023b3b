// Package parser extracts status tokens and power readings from switch CLI
// output. All functions are pure.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	digitRun        = regexp.MustCompile(`^\d+`)
	commandErrHints = []string{
		"invalid input",
		"unknown command",
		"incomplete command",
		"ambiguous command",
		"unrecognized command",
		"invalid command",
		"syntax error",
		"cannot find command",
	}
)

// ParseError reports a response that does not have the shape expected for
// its command.
type ParseError struct {
	Command string
	Raw     string
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("parse error: %s: %q", e.Reason, e.Raw)
	}
	return fmt.Sprintf("parse error for %q: %s: %q", e.Command, e.Reason, e.Raw)
}

// StatusToken returns the last token of the first non-blank line.
func StatusToken(raw string) (string, error) {
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return strings.ToLower(fields[len(fields)-1]), nil
	}
	return "", &ParseError{Raw: raw, Reason: "empty response"}
}

// StatusList returns the last field of every data line of a multi-port
// listing. The first line is a header.
func StatusList(raw string) ([]string, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r", ""), "\n")
	if len(lines) < 2 {
		return nil, &ParseError{Raw: raw, Reason: "no port lines"}
	}

	statuses := make([]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 || isSeparatorLine(line) {
			continue
		}
		statuses = append(statuses, strings.ToLower(fields[len(fields)-1]))
	}
	if len(statuses) == 0 {
		return nil, &ParseError{Raw: raw, Reason: "no port lines"}
	}
	return statuses, nil
}

// Power reads the leading digit run of the given whitespace field, which
// truncates it to an integer. The field may carry a unit or a trailing period
// ("12.5W", "12.5."). present is false when the field does not start with a
// digit.
func Power(raw string, field int) (watts int, present bool, err error) {
	fields := strings.Fields(raw)
	if field < 0 || len(fields) <= field {
		return 0, false, &ParseError{Raw: raw, Reason: fmt.Sprintf("expected at least %d fields, got %d", field+1, len(fields))}
	}

	run := digitRun.FindString(fields[field])
	if run == "" {
		return 0, false, nil
	}
	watts, err = strconv.Atoi(run)
	if err != nil {
		return 0, false, &ParseError{Raw: raw, Reason: err.Error()}
	}
	return watts, true, nil
}

// Rejected reports whether the output carries a CLI error message.
func Rejected(raw string) bool {
	lower := strings.ToLower(raw)
	for _, hint := range commandErrHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func isSeparatorLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && strings.Trim(trimmed, "-=+ ") == ""
}
