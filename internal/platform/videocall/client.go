// Package videocall schedules video-call rooms for confirmed bookings with an
// external provider and retries failed attempts through an asynq queue.
package videocall

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request describes the call to create for a booking.
type Request struct {
	BookingID          uuid.UUID `json:"bookingId"`
	UserID             uuid.UUID `json:"userId"`
	ConsultantID       uuid.UUID `json:"consultantId"`
	StartsAt           time.Time `json:"startsAt"`
	MaxDurationSeconds int       `json:"maxDurationSeconds"`
}

// Call is the provider's handle for a scheduled room.
type Call struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

type Scheduler interface {
	Schedule(ctx context.Context, req Request) (*Call, error)
}

// SchedulingError reports a failed attempt to schedule the call for a booking
// that has already been committed.
type SchedulingError struct {
	BookingID uuid.UUID
	Err       error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule video call for booking %s: %v", e.BookingID, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.httpClient.Timeout = d
		}
	}
}

// Client talks to the video-call provider's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type createCallBody struct {
	ExternalID   string   `json:"externalId"`
	Participants []string `json:"participants"`
	StartsAt     string   `json:"startsAt"`
	MaxDuration  int      `json:"maxDurationSeconds"`
}

// Schedule creates a call room. The request is idempotent on the booking id.
func (c *Client) Schedule(ctx context.Context, req Request) (*Call, error) {
	if req.MaxDurationSeconds <= 0 {
		return nil, fmt.Errorf("max call duration must be positive")
	}
	payload, err := json.Marshal(createCallBody{
		ExternalID:   req.BookingID.String(),
		Participants: []string{req.UserID.String(), req.ConsultantID.String()},
		StartsAt:     req.StartsAt.UTC().Format(time.RFC3339),
		MaxDuration:  req.MaxDurationSeconds,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calls", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.BookingID.String())
	httpReq.Header.Set("X-Signature", "sha256="+SignPayload(payload, c.apiKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var call Call
	if err := json.Unmarshal(body, &call); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if call.ID == "" {
		return nil, fmt.Errorf("provider response has no call id")
	}
	return &call, nil
}
