// Package webhook turns payment-provider callbacks into confirmed bookings.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payment event types accepted from the provider. Anything else is rejected.
const (
	EventPaymentPaid       = "payment_paid"
	EventPaymentFailed     = "payment_failed"
	EventPaymentRefunded   = "payment_refunded"
	EventPaymentVoided     = "payment_voided"
	EventPaymentAuthorized = "payment_authorized"
	EventPaymentCaptured   = "payment_captured"
	EventPaymentVerified   = "payment_verified"
)

var allowedEvents = map[string]bool{
	EventPaymentPaid:       true,
	EventPaymentFailed:     true,
	EventPaymentRefunded:   true,
	EventPaymentVoided:     true,
	EventPaymentAuthorized: true,
	EventPaymentCaptured:   true,
	EventPaymentVerified:   true,
}

// AllowedEvent reports whether eventType is on the allow-list.
func AllowedEvent(eventType string) bool {
	return allowedEvents[eventType]
}

// PaymentEvent is the body the payment provider posts.
type PaymentEvent struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Live  bool     `json:"live"`
	Token string   `json:"token,omitempty"`
	Data  *Payment `json:"data"`
}

type Payment struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Metadata PaymentMetadata `json:"metadata"`
}

// PaymentMetadata carries the checkout selections made before payment.
type PaymentMetadata struct {
	ServiceID        string      `json:"serviceId"`
	SelectedDate     string      `json:"selectedDate"`
	SelectedTimeSlot string      `json:"selectedTimeSlot"`
	ClerkUserID      string      `json:"clerkUserId"`
	ConsultantID     string      `json:"consultantId"`
	Duration         FlexibleInt `json:"duration"`
}

// FlexibleInt decodes from a JSON number or a numeric string. Checkout
// metadata is a string map on most providers.
type FlexibleInt int

func (f *FlexibleInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("duration %q is not a number", s)
		}
		*f = FlexibleInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexibleInt(n)
	return nil
}

// InvalidWebhookError rejects a delivery before any state is touched.
type InvalidWebhookError struct {
	Reason string
}

func (e *InvalidWebhookError) Error() string {
	return "invalid webhook: " + e.Reason
}

func invalid(format string, args ...any) error {
	return &InvalidWebhookError{Reason: fmt.Sprintf(format, args...)}
}

// ParseEvent decodes and validates a raw delivery. When secret is non-empty
// the event's token must match it.
func ParseEvent(body []byte, secret string) (*PaymentEvent, error) {
	var ev PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, invalid("malformed body: %v", err)
	}
	if secret != "" && !VerifyToken(ev.Token, secret) {
		return nil, invalid("token mismatch")
	}
	if ev.ID == "" {
		return nil, invalid("missing id")
	}
	if ev.Type == "" {
		return nil, invalid("missing type")
	}
	if ev.Data == nil {
		return nil, invalid("missing data")
	}
	if !AllowedEvent(ev.Type) {
		return nil, invalid("unsupported event type %q", ev.Type)
	}
	if ev.Data.ID == "" {
		return nil, invalid("missing data.id")
	}
	return &ev, nil
}

// VerifyToken compares the shared secret in constant time.
func VerifyToken(token, secret string) bool {
	if token == "" {
		return false
	}
	return hmac.Equal([]byte(token), []byte(secret))
}
