package config

import (
	"testing"
	"time"
)

func TestParseEnvDefaults(t *testing.T) {
	type cfg struct {
		Port     int           `env:"MEMORIAE_TEST_PORT" envDefault:"8089"`
		Interval time.Duration `env:"MEMORIAE_TEST_INTERVAL" envDefault:"1m"`
	}

	var c cfg
	if err := ParseEnv(&c); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if c.Port != 8089 {
		t.Fatalf("port = %d, want 8089", c.Port)
	}
	if c.Interval != time.Minute {
		t.Fatalf("interval = %v, want 1m", c.Interval)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	type cfg struct {
		DBPath string `env:"MEMORIAE_TEST_DB_PATH" envDefault:"data/garden.db"`
	}

	t.Setenv("MEMORIAE_TEST_DB_PATH", "/tmp/other.db")

	var c cfg
	if err := ParseEnv(&c); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if c.DBPath != "/tmp/other.db" {
		t.Fatalf("db path = %q, want /tmp/other.db", c.DBPath)
	}
}

func TestParseEnvInvalidValue(t *testing.T) {
	type cfg struct {
		Interval time.Duration `env:"MEMORIAE_TEST_BAD_INTERVAL" envDefault:"1m"`
	}

	t.Setenv("MEMORIAE_TEST_BAD_INTERVAL", "not-a-duration")

	var c cfg
	if err := ParseEnv(&c); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
