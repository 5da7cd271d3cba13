package otel_test

import (
	"context"
	"testing"

	"github.com/harms-haus/memoriae/internal/platform/otel"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("MEMORIAE_OTEL_ENDPOINT", "")
	t.Setenv("MEMORIAE_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupNoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("MEMORIAE_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("MEMORIAE_OTEL_ENABLED", "false")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address so no actual export happens.
	t.Setenv("MEMORIAE_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("MEMORIAE_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Shutdown with an already-cancelled context should still return promptly.
	_ = shutdown(ctx)
}
