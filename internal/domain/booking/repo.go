package booking

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// SlotTaken reports whether a booking that still occupies its slot exists
	// at exactly (consultantID, date, time).
	SlotTaken(ctx context.Context, consultantID uuid.UUID, date, time string) (bool, error)
	ListActiveByConsultantDate(ctx context.Context, consultantID uuid.UUID, date string) ([]*Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Booking, int, error)
	ListByConsultant(ctx context.Context, consultantID uuid.UUID, limit, offset int) ([]*Booking, int, error)
	// UpdateStatus moves id from one status to another, failing with
	// ErrInvalidTransition if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	SetVideoCall(ctx context.Context, id uuid.UUID, callID string) error
}

type OfferingRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Offering, error)
}

// PaymentLedger records which payment produced which booking.
type PaymentLedger interface {
	BookingForPayment(ctx context.Context, paymentID string) (uuid.UUID, bool, error)
	Record(ctx context.Context, paymentID string, bookingID uuid.UUID) error
}

// TxRunner runs fn in a single serializable transaction carried by ctx.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher emits booking lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
