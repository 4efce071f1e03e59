package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/consultbook/consultbook/internal/domain/booking"
	"github.com/consultbook/consultbook/internal/platform/identity"
	"github.com/consultbook/consultbook/internal/platform/videocall"
)

const (
	EventAllocationFailed = "booking.allocation_failed"
	EventPaymentObserved  = "payment.observed"

	DefaultMaxCallSeconds = 3600
)

type PayerResolver interface {
	ResolvePayer(ctx context.Context, externalID string) (uuid.UUID, error)
}

type Allocator interface {
	AllocateForPayment(ctx context.Context, paymentID string, req booking.AllocationRequest) (*booking.Booking, bool, error)
}

type CallDispatcher interface {
	Dispatch(ctx context.Context, req videocall.Request) (*videocall.Call, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Outcome says how a delivery was handled. Every outcome is acknowledged.
type Outcome string

const (
	OutcomeBooked          Outcome = "booked"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeObserved        Outcome = "observed"
	OutcomeUserNotFound    Outcome = "user_not_found"
	OutcomeServiceNotFound Outcome = "service_not_found"
	OutcomeSlotUnavailable Outcome = "slot_unavailable"
)

type Result struct {
	Outcome   Outcome    `json:"outcome"`
	BookingID *uuid.UUID `json:"bookingId,omitempty"`
	// SchedulingErr is set when the booking was committed but the video call
	// could not be scheduled inline.
	SchedulingErr error `json:"-"`
}

type Pipeline struct {
	payers         PayerResolver
	allocator      Allocator
	calls          CallDispatcher
	events         EventPublisher
	secret         string
	verify         bool
	maxCallSeconds int
	logger         zerolog.Logger
}

type PipelineOption func(*Pipeline)

// WithSecret sets the shared token deliveries must carry.
func WithSecret(secret string) PipelineOption {
	return func(p *Pipeline) { p.secret = secret }
}

// WithVerification toggles the token check. It is on by default.
func WithVerification(enabled bool) PipelineOption {
	return func(p *Pipeline) { p.verify = enabled }
}

func WithCallDispatcher(d CallDispatcher) PipelineOption {
	return func(p *Pipeline) { p.calls = d }
}

func WithEventPublisher(e EventPublisher) PipelineOption {
	return func(p *Pipeline) { p.events = e }
}

func WithMaxCallSeconds(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxCallSeconds = n
		}
	}
}

func WithPipelineLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

func NewPipeline(payers PayerResolver, allocator Allocator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		payers:         payers,
		allocator:      allocator,
		verify:         true,
		maxCallSeconds: DefaultMaxCallSeconds,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse validates a raw delivery against the configured secret.
func (p *Pipeline) Parse(body []byte) (*PaymentEvent, error) {
	if !p.verify {
		return ParseEvent(body, "")
	}
	if p.secret == "" {
		return nil, errors.New("webhook verification is enabled but no secret is configured")
	}
	return ParseEvent(body, p.secret)
}

// Process handles one validated event. A returned error means the delivery
// could not be handled and the provider should retry it.
func (p *Pipeline) Process(ctx context.Context, ev *PaymentEvent) (*Result, error) {
	log := p.logger.With().
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Str("payment_id", ev.Data.ID).
		Bool("live", ev.Live).
		Logger()

	if ev.Type != EventPaymentPaid {
		log.Info().Str("status", ev.Data.Status).Msg("payment event observed")
		p.publish(ctx, log, EventPaymentObserved, map[string]any{
			"eventId":   ev.ID,
			"eventType": ev.Type,
			"paymentId": ev.Data.ID,
			"status":    ev.Data.Status,
		})
		return &Result{Outcome: OutcomeObserved}, nil
	}

	req, err := allocationRequest(ev.Data)
	if err != nil {
		return nil, err
	}

	userID, err := p.payers.ResolvePayer(ctx, ev.Data.Metadata.ClerkUserID)
	if errors.Is(err, identity.ErrUserNotFound) {
		log.Warn().Str("external_user_id", ev.Data.Metadata.ClerkUserID).Msg("payer not found, event abandoned")
		return &Result{Outcome: OutcomeUserNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve payer: %w", err)
	}
	req.UserID = userID

	b, created, err := p.allocator.AllocateForPayment(ctx, ev.Data.ID, req)
	switch {
	case errors.Is(err, booking.ErrSlotUnavailable):
		log.Error().Str("date", req.Date).Str("time", req.Time).Msg("slot taken before payment completed")
		p.publish(ctx, log, EventAllocationFailed, map[string]any{
			"paymentId":    ev.Data.ID,
			"userId":       userID,
			"serviceId":    req.ServiceID,
			"consultantId": req.ConsultantID,
			"date":         req.Date,
			"time":         req.Time,
			"amount":       ev.Data.Amount,
			"currency":     ev.Data.Currency,
			"reason":       "slot_unavailable",
		})
		return &Result{Outcome: OutcomeSlotUnavailable}, nil
	case errors.Is(err, booking.ErrServiceNotFound):
		log.Warn().Err(err).Msg("service not found, event abandoned")
		return &Result{Outcome: OutcomeServiceNotFound}, nil
	case err != nil:
		return nil, err
	}

	res := &Result{Outcome: OutcomeBooked, BookingID: &b.ID}
	if !created {
		log.Info().Str("booking_id", b.ID.String()).Msg("payment already processed")
		res.Outcome = OutcomeDuplicate
		return res, nil
	}
	log.Info().Str("booking_id", b.ID.String()).Msg("booking confirmed from payment")

	res.SchedulingErr = p.scheduleCall(ctx, log, b)
	return res, nil
}

// scheduleCall requests the video call for a new booking. Failures are
// logged and returned for the caller to inspect but never undo the booking.
func (p *Pipeline) scheduleCall(ctx context.Context, log zerolog.Logger, b *booking.Booking) error {
	if p.calls == nil {
		return nil
	}
	startsAt, err := b.StartsAt()
	if err != nil {
		log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("cannot compute call start")
		return &videocall.SchedulingError{BookingID: b.ID, Err: err}
	}
	_, err = p.calls.Dispatch(ctx, videocall.Request{
		BookingID:          b.ID,
		UserID:             b.UserID,
		ConsultantID:       b.ConsultantID,
		StartsAt:           startsAt,
		MaxDurationSeconds: p.maxCallSeconds,
	})
	if err != nil {
		log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("video call scheduling failed")
		return err
	}
	return nil
}

func (p *Pipeline) publish(ctx context.Context, log zerolog.Logger, key string, payload any) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(ctx, key, payload); err != nil {
		// A lost allocation_failed event leaves a paid customer without a refund trigger.
		level := zerolog.WarnLevel
		if key == EventAllocationFailed {
			level = zerolog.ErrorLevel
		}
		log.WithLevel(level).Err(err).Str("routing_key", key).Msg("failed to publish payment event")
	}
}

func allocationRequest(pay *Payment) (booking.AllocationRequest, error) {
	md := pay.Metadata
	if strings.TrimSpace(md.ClerkUserID) == "" {
		return booking.AllocationRequest{}, invalid("missing metadata.clerkUserId")
	}
	serviceID, err := uuid.Parse(md.ServiceID)
	if err != nil {
		return booking.AllocationRequest{}, invalid("metadata.serviceId is not a valid id")
	}
	var consultantID uuid.UUID
	if md.ConsultantID != "" {
		if consultantID, err = uuid.Parse(md.ConsultantID); err != nil {
			return booking.AllocationRequest{}, invalid("metadata.consultantId is not a valid id")
		}
	}
	if md.SelectedDate == "" || md.SelectedTimeSlot == "" {
		return booking.AllocationRequest{}, invalid("missing selected date or time slot")
	}
	return booking.AllocationRequest{
		ConsultantID: consultantID,
		ServiceID:    serviceID,
		Date:         md.SelectedDate,
		Time:         md.SelectedTimeSlot,
		Duration:     int(md.Duration),
		Amount:       pay.Amount,
		Currency:     pay.Currency,
	}, nil
}
