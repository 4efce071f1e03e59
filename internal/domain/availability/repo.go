package availability

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// ListByConsultant returns the stored days for a consultant, possibly fewer than seven.
	ListByConsultant(ctx context.Context, consultantID uuid.UUID) ([]*ConsultantAvailability, error)
	GetDay(ctx context.Context, consultantID uuid.UUID, day Day) (*ConsultantAvailability, error)
	// UpsertDay inserts or replaces the row for (ConsultantID, DayOfWeek).
	UpsertDay(ctx context.Context, a *ConsultantAvailability) error
	// UpsertWeek replaces every given day atomically.
	UpsertWeek(ctx context.Context, consultantID uuid.UUID, days []*ConsultantAvailability) error
}

// BookingLookup lists the bookings that occupy a consultant's slots on a date.
type BookingLookup interface {
	ListBookedTimes(ctx context.Context, consultantID uuid.UUID, date string) ([]BookedTime, error)
}

// ConsultantDirectory answers whether an id belongs to a consultant.
type ConsultantDirectory interface {
	IsConsultant(ctx context.Context, id uuid.UUID) (bool, error)
}

// Cache stores serialized weekly availability per consultant.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
