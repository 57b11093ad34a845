package types

import (
	"context"
	"log/slog"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID = %q", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("empty context returned %q", got)
	}
}

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{ID: "scheduler", Type: ActorTypeSystem})
	actor, ok := GetActor(ctx)
	if !ok || actor.Type != ActorTypeSystem {
		t.Errorf("GetActor = %+v, %v", actor, ok)
	}
}

func TestLoggerFromContextFallback(t *testing.T) {
	fallback := slog.Default()
	if got := LoggerFromContext(context.Background(), fallback); got != fallback {
		t.Error("expected fallback logger")
	}

	scoped := slog.Default().With("request_id", "abc")
	ctx := WithLogger(context.Background(), scoped)
	if got := LoggerFromContext(ctx, fallback); got != scoped {
		t.Error("expected scoped logger")
	}
}
