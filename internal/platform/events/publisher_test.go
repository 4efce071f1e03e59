package events

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("booking.confirmed", map[string]string{"bookingId": "b1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.ID == "" || env.Type != "booking.confirmed" || env.OccurredAt.IsZero() {
		t.Errorf("incomplete envelope %+v", env)
	}
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil || data["bookingId"] != "b1" {
		t.Errorf("unexpected data %s", env.Data)
	}
}

func TestNewEnvelope_Unmarshalable(t *testing.T) {
	if _, err := NewEnvelope("x", make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	if err := p.Publish(context.Background(), "payment.observed", map[string]string{"type": "payment_failed"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"routing_key":"payment.observed"`) || !strings.Contains(out, `"type":"payment_failed"`) {
		t.Errorf("unexpected log line %s", out)
	}
}

func TestPublisher_PingWithoutConnection(t *testing.T) {
	if err := (&Publisher{}).Ping(context.Background()); err == nil {
		t.Error("expected error without a connection")
	}
}

func TestPublisher_PublishWithoutConnection(t *testing.T) {
	p := &Publisher{exchange: "consultbook.events"}
	err := p.Publish(context.Background(), "booking.allocation_failed", map[string]string{"bookingId": "b1"})
	if err == nil || !strings.Contains(err.Error(), "booking.allocation_failed") {
		t.Errorf("expected publish error naming the routing key, got %v", err)
	}
	if p.ch != nil {
		t.Error("expected no channel to be cached")
	}
}

func TestPublisher_CloseWithoutConnection(t *testing.T) {
	if err := (&Publisher{}).Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
