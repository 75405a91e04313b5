package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     StorageConfig     `json:"storage"`
	Distributor DistributorConfig `json:"distributor"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, lost on restart
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DistributorConfig controls the weekly movie distribution window.
//
// Weekday follows cron/time.Weekday numbering: 0 = Sunday .. 6 = Saturday.
// All durations are Go duration strings.
type DistributorConfig struct {
	Enabled bool `json:"enabled"`

	Weekday int `json:"weekday"`
	Hour    int `json:"hour"`
	Minute  int `json:"minute"`

	PollInterval string `json:"poll_interval,omitempty"` // default "30s"
	Debounce     string `json:"debounce,omitempty"`      // default "60s"
	SendTimeout  string `json:"send_timeout,omitempty"`  // default "10s"
	RatePerSec   int    `json:"rate_per_sec,omitempty"`  // default 10
}

// Validate rejects configs that must not be committed (startup or hot reload).
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if _, err := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, 0); err != nil {
		return err
	}

	d := c.Distributor
	if d.Weekday < 0 || d.Weekday > 6 {
		return fmt.Errorf("distributor.weekday must be 0..6 (got %d)", d.Weekday)
	}
	if d.Hour < 0 || d.Hour > 23 {
		return fmt.Errorf("distributor.hour must be 0..23 (got %d)", d.Hour)
	}
	if d.Minute < 0 || d.Minute > 59 {
		return fmt.Errorf("distributor.minute must be 0..59 (got %d)", d.Minute)
	}
	if d.RatePerSec < 0 {
		return fmt.Errorf("distributor.rate_per_sec must be >= 0")
	}
	for _, f := range []struct {
		name string
		raw  string
	}{
		{"distributor.poll_interval", d.PollInterval},
		{"distributor.debounce", d.Debounce},
		{"distributor.send_timeout", d.SendTimeout},
	} {
		if _, err := ParseDurationOrDefault(f.name, f.raw, 0); err != nil {
			return err
		}
	}
	return nil
}
