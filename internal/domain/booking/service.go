package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/consultbook/consultbook/internal/platform/auth"
	"github.com/consultbook/consultbook/pkg/wallclock"
)

const (
	EventConfirmed     = "booking.confirmed"
	EventStatusChanged = "booking.status_changed"
)

type Service struct {
	bookings  Repository
	offerings OfferingRepository
	ledger    PaymentLedger
	tx        TxRunner
	events    EventPublisher
	logger    zerolog.Logger
}

func NewService(bookings Repository, offerings OfferingRepository, ledger PaymentLedger, tx TxRunner, events EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		bookings:  bookings,
		offerings: offerings,
		ledger:    ledger,
		tx:        tx,
		events:    events,
		logger:    logger,
	}
}

// Allocate reserves a slot and creates a confirmed booking. The slot is
// re-checked inside the transaction so two concurrent callers cannot both win.
func (s *Service) Allocate(ctx context.Context, req AllocationRequest) (*Booking, error) {
	b, _, err := s.allocate(ctx, "", req)
	return b, err
}

// AllocateForPayment behaves like Allocate but is idempotent per paymentID: a
// repeated call returns the booking created by the first one with created=false.
func (s *Service) AllocateForPayment(ctx context.Context, paymentID string, req AllocationRequest) (b *Booking, created bool, err error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, false, &ValidationError{Field: "paymentId", Reason: "is required"}
	}
	return s.allocate(ctx, paymentID, req)
}

func (s *Service) allocate(ctx context.Context, paymentID string, req AllocationRequest) (*Booking, bool, error) {
	if err := normalizeRequest(&req); err != nil {
		return nil, false, err
	}

	var result *Booking
	var created bool
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		result, created = nil, false

		if paymentID != "" {
			existingID, ok, err := s.ledger.BookingForPayment(ctx, paymentID)
			if err != nil {
				return fmt.Errorf("check payment ledger: %w", err)
			}
			if ok {
				existing, err := s.bookings.GetByID(ctx, existingID)
				if err != nil {
					return fmt.Errorf("load booking %s for payment %s: %w", existingID, paymentID, err)
				}
				result = existing
				return nil
			}
		}

		offering, err := s.offerings.GetByID(ctx, req.ServiceID)
		if err != nil {
			return err
		}
		if req.ConsultantID != uuid.Nil && req.ConsultantID != offering.ConsultantID {
			return fmt.Errorf("%w: service %s is not offered by consultant %s", ErrServiceNotFound, req.ServiceID, req.ConsultantID)
		}

		taken, err := s.bookings.SlotTaken(ctx, offering.ConsultantID, req.Date, req.Time)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotUnavailable
		}

		b := &Booking{
			UserID:       req.UserID,
			ServiceID:    offering.ID,
			ConsultantID: offering.ConsultantID,
			Date:         req.Date,
			Time:         req.Time,
			Duration:     req.Duration,
			Amount:       req.Amount,
			Currency:     req.Currency,
			Status:       StatusConfirmed,
			Notes:        req.Notes,
		}
		if b.Duration == 0 {
			b.Duration = offering.Duration
		}
		if b.Currency == "" {
			b.Currency = offering.Currency
		}
		if paymentID != "" {
			b.PaymentID = &paymentID
		}
		if err := s.bookings.Create(ctx, b); err != nil {
			return err
		}
		if paymentID != "" {
			if err := s.ledger.Record(ctx, paymentID, b.ID); err != nil {
				return fmt.Errorf("record payment: %w", err)
			}
		}
		result, created = b, true
		return nil
	})
	if errors.Is(err, ErrSlotUnavailable) && paymentID != "" {
		// A concurrent delivery of the same payment may have won the slot.
		if existing, ok := s.bookingForPayment(ctx, paymentID); ok {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}

	if created {
		s.publish(ctx, EventConfirmed, result)
	}
	return result, created, nil
}

func (s *Service) bookingForPayment(ctx context.Context, paymentID string) (*Booking, bool) {
	id, ok, err := s.ledger.BookingForPayment(ctx, paymentID)
	if err != nil || !ok {
		return nil, false
	}
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, false
	}
	return b, true
}

func normalizeRequest(req *AllocationRequest) error {
	if req.ServiceID == uuid.Nil {
		return &ValidationError{Field: "serviceId", Reason: "is required"}
	}
	if req.UserID == uuid.Nil {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	d, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		return &ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	req.Date = d.Format("2006-01-02")

	// Slots are matched by exact string, so "9:00" must become "09:00".
	t := strings.TrimSpace(req.Time)
	if !wallclock.Valid24Hour(t) {
		t, err = wallclock.To24Hour(t)
		if err != nil {
			return err
		}
	}
	m, err := wallclock.Minutes(t)
	if err != nil {
		return err
	}
	req.Time = wallclock.FromMinutes(m)

	if req.Duration < 0 {
		return &ValidationError{Field: "duration", Reason: "must not be negative"}
	}
	if req.Amount < 0 {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	return nil
}

func (s *Service) GetBooking(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(caller, b) {
		return nil, ErrForbidden
	}
	return b, nil
}

// ListBookings returns the caller's bookings: those on their services for a
// consultant, otherwise those they paid for.
func (s *Service) ListBookings(ctx context.Context, caller auth.Identity, limit, offset int) ([]*Booking, int, error) {
	if caller.HasRole(auth.RoleConsultant) && !caller.IsAdmin() {
		return s.bookings.ListByConsultant(ctx, caller.UserID, limit, offset)
	}
	return s.bookings.ListByUser(ctx, caller.UserID, limit, offset)
}

func (s *Service) ListForConsultant(ctx context.Context, consultantID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return s.bookings.ListByConsultant(ctx, consultantID, limit, offset)
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return s.bookings.ListByUser(ctx, userID, limit, offset)
}

// BookedOn lists bookings on date that still occupy their slot.
func (s *Service) BookedOn(ctx context.Context, consultantID uuid.UUID, date string) ([]*Booking, error) {
	return s.bookings.ListActiveByConsultantDate(ctx, consultantID, date)
}

// UpdateStatus applies a status transition. Admins and the booking's
// consultant may apply any valid transition; the paying user may only cancel.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.Identity, id uuid.UUID, next Status) (*Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case caller.IsAdmin(), caller.UserID == b.ConsultantID:
	case caller.UserID == b.UserID && next == StatusCancelled:
	default:
		return nil, ErrForbidden
	}
	if !b.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, next)
	}
	if err := s.bookings.UpdateStatus(ctx, id, b.Status, next); err != nil {
		return nil, err
	}

	prev := b.Status
	b.Status = next
	s.publish(ctx, EventStatusChanged, map[string]any{
		"bookingId": b.ID,
		"from":      prev,
		"to":        next,
	})
	return b, nil
}

// AttachVideoCall stores the provider's call id on the booking.
func (s *Service) AttachVideoCall(ctx context.Context, id uuid.UUID, callID string) error {
	return s.bookings.SetVideoCall(ctx, id, callID)
}

func (s *Service) publish(ctx context.Context, key string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, key, payload); err != nil {
		s.logger.Warn().Err(err).Str("routing_key", key).Msg("failed to publish booking event")
	}
}

func canView(caller auth.Identity, b *Booking) bool {
	return caller.IsAdmin() || caller.UserID == b.UserID || caller.UserID == b.ConsultantID
}
