package garden

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("garden", flag.ContinueOnError)
	t.Setenv("MEMORIAE_GARDEN_PORT", "9093")
	t.Setenv("MEMORIAE_GARDEN_DB_PATH", "data/test.db")

	cfg, err := ParseConfig(fs, []string{"-max-attempts", "5", "-snooze-minutes", "15"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9093 {
		t.Fatalf("port = %d, want 9093", cfg.Port)
	}
	if cfg.DBPath != "data/test.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "data/test.db")
	}
	if cfg.MaxAttempts != 5 {
		t.Fatalf("max attempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.SnoozeMinutes != 15 {
		t.Fatalf("snooze minutes = %d, want 15", cfg.SnoozeMinutes)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("garden", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8093 {
		t.Fatalf("port = %d, want 8093", cfg.Port)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("poll interval = %v, want 1s", cfg.PollInterval)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.JobTimeout != 2*time.Minute {
		t.Fatalf("job timeout = %v, want 2m", cfg.JobTimeout)
	}
	if cfg.DeadRetention != 168*time.Hour {
		t.Fatalf("dead retention = %v, want 168h", cfg.DeadRetention)
	}
}
