package schema

import (
	"errors"
	"time"
)

// ConsoleConfig defines limits and timing for a console instance.
type ConsoleConfig struct {
	ID      ConsoleID
	Title   string
	WorkDir string
	// CyclicCapacity bounds the total buffered plus rendered character
	// count. Zero means unbounded.
	CyclicCapacity int
	// FlushDelay is the debounce window for coalesced flushes.
	FlushDelay time.Duration
	// CommandLineFoldLimit folds the first document line when it is at
	// least this many characters long.
	CommandLineFoldLimit int
}

// DefaultFlushDelay is the debounce window applied when none is configured.
const DefaultFlushDelay = 200 * time.Millisecond

// DefaultCommandLineFoldLimit is the first-line fold threshold.
const DefaultCommandLineFoldLimit = 1000

// NormalizeConsoleConfig applies defaults and validates the config.
func NormalizeConsoleConfig(cfg ConsoleConfig) (ConsoleConfig, error) {
	if cfg.ID == "" {
		cfg.ID = ConsoleID("console")
	}
	if err := ValidateConsoleID(cfg.ID); err != nil {
		return ConsoleConfig{}, err
	}
	if cfg.Title == "" {
		cfg.Title = string(cfg.ID)
	}
	if cfg.CyclicCapacity < 0 {
		return ConsoleConfig{}, errors.New("cyclic capacity must not be negative")
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = DefaultFlushDelay
	}
	if cfg.CommandLineFoldLimit <= 0 {
		cfg.CommandLineFoldLimit = DefaultCommandLineFoldLimit
	}
	return cfg, nil
}
