package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

func TestParseConfigRequiresTarget(t *testing.T) {
	var cfg *struct{}
	if err := ParseConfig(cfg); err == nil {
		t.Fatal("expected error for nil config target")
	}
}

func TestParseArgsRequiresFlagSet(t *testing.T) {
	if err := ParseArgs(nil, nil); err == nil {
		t.Fatal("expected error for nil flag set")
	}
}

func TestParseArgsNilArgs(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if err := ParseArgs(fs, nil); err != nil {
		t.Fatalf("parse args: %v", err)
	}
}

func TestRunWithTelemetryRequiresService(t *testing.T) {
	err := RunWithTelemetry(context.Background(), "  ", func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error for empty service name")
	}
}

func TestRunWithTelemetryRequiresRun(t *testing.T) {
	err := RunWithTelemetry(context.Background(), "garden", nil)
	if err == nil {
		t.Fatal("expected error for nil run function")
	}
}

func TestRunWithTelemetryPropagatesRunError(t *testing.T) {
	want := errors.New("run failed")
	err := RunWithTelemetry(context.Background(), "garden", func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
