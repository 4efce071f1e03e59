package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPendingPayment    Status = "pending_payment"
	StatusPaymentProcessing Status = "payment_processing"
	StatusConfirmed         Status = "confirmed"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusFailed            Status = "failed"
	StatusRefunded          Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusPendingPayment:    {StatusPaymentProcessing, StatusCancelled, StatusFailed},
	StatusPaymentProcessing: {StatusConfirmed, StatusCancelled, StatusFailed},
	StatusConfirmed:         {StatusCompleted, StatusCancelled, StatusRefunded},
	StatusCompleted:         {StatusRefunded},
	StatusCancelled:         {StatusRefunded},
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	switch st {
	case StatusPendingPayment, StatusPaymentProcessing, StatusConfirmed, StatusCompleted,
		StatusCancelled, StatusFailed, StatusRefunded:
		return st, true
	}
	return "", false
}

// CanTransition reports whether a booking in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// FreesSlot reports whether a booking in this status no longer occupies its slot.
func (s Status) FreesSlot() bool {
	return s == StatusCancelled || s == StatusFailed || s == StatusRefunded
}

// Offering maps to the services table: something a consultant sells.
type Offering struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ConsultantID uuid.UUID `db:"consultant_id" json:"consultantId"`
	Name         string    `db:"name" json:"name"`
	Duration     int       `db:"duration" json:"duration"`
	Price        int64     `db:"price" json:"price"`
	Currency     string    `db:"currency" json:"currency"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Booking maps to the bookings table. Date is "YYYY-MM-DD" and Time is a
// 24-hour "HH:MM" wall-clock string in the consultant's local time.
type Booking struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"userId"`
	ServiceID    uuid.UUID `db:"service_id" json:"serviceId"`
	ConsultantID uuid.UUID `db:"consultant_id" json:"consultantId"`
	Date         string    `db:"date" json:"date"`
	Time         string    `db:"time" json:"time"`
	Duration     int       `db:"duration" json:"duration"`
	Amount       int64     `db:"amount" json:"amount"`
	Currency     string    `db:"currency" json:"currency"`
	Status       Status    `db:"status" json:"status"`
	Notes        *string   `db:"notes" json:"notes,omitempty"`
	PaymentID    *string   `db:"payment_id" json:"paymentId,omitempty"`
	VideoCallID  *string   `db:"video_call_id" json:"videoCallId,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// StartsAt combines Date and Time into an instant, treating the wall-clock
// value as UTC.
func (b *Booking) StartsAt() (time.Time, error) {
	return time.Parse("2006-01-02 15:04", b.Date+" "+b.Time)
}

// AllocationRequest carries what the allocator needs to reserve a slot.
type AllocationRequest struct {
	ConsultantID uuid.UUID `json:"consultantId"`
	ServiceID    uuid.UUID `json:"serviceId"`
	UserID       uuid.UUID `json:"userId"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Duration     int       `json:"duration"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Notes        *string   `json:"notes,omitempty"`
}
