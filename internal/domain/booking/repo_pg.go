package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consultbook/consultbook/internal/platform/db"
)

// =========== Booking Repository ===========

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &bookingRepoPG{pool: pool} }

const bookingCols = `id, user_id, service_id, consultant_id, to_char(date, 'YYYY-MM-DD'), time,
	duration, amount, currency, status, notes, payment_id, video_call_id, created_at, updated_at`

// occupying matches bookings that still hold their slot. It mirrors the
// predicate of the bookings_active_slot_key partial unique index.
const occupying = `status NOT IN ('cancelled', 'failed', 'refunded')`

func (r *bookingRepoPG) scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.UserID, &b.ServiceID, &b.ConsultantID, &b.Date, &b.Time,
		&b.Duration, &b.Amount, &b.Currency, &b.Status, &b.Notes, &b.PaymentID, &b.VideoCallID,
		&b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *bookingRepoPG) Create(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO bookings (id, user_id, service_id, consultant_id, date, time, duration,
			amount, currency, status, notes, payment_id)
		VALUES ($1,$2,$3,$4,$5::date,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		b.ID, b.UserID, b.ServiceID, b.ConsultantID, b.Date, b.Time, b.Duration,
		b.Amount, b.Currency, b.Status, b.Notes, b.PaymentID).Scan(&b.CreatedAt, &b.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrSlotUnavailable
	}
	return err
}

func (r *bookingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := r.scanBooking(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bookingCols+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *bookingRepoPG) SlotTaken(ctx context.Context, consultantID uuid.UUID, date, t string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE consultant_id = $1 AND date = $2::date AND time = $3 AND `+occupying+`
		)`, consultantID, date, t).Scan(&exists)
	return exists, err
}

func (r *bookingRepoPG) ListActiveByConsultantDate(ctx context.Context, consultantID uuid.UUID, date string) ([]*Booking, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+bookingCols+` FROM bookings
		WHERE consultant_id = $1 AND date = $2::date AND `+occupying+`
		ORDER BY time`, consultantID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *bookingRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return r.listBy(ctx, "user_id", userID, limit, offset)
}

func (r *bookingRepoPG) ListByConsultant(ctx context.Context, consultantID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return r.listBy(ctx, "consultant_id", consultantID, limit, offset)
}

func (r *bookingRepoPG) listBy(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `
		SELECT `+bookingCols+` FROM bookings WHERE `+column+` = $1
		ORDER BY date DESC, time DESC LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *bookingRepoPG) collect(rows pgx.Rows) ([]*Booking, error) {
	var items []*Booking
	for rows.Next() {
		b, err := r.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *bookingRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE bookings SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if db.IsUniqueViolation(err) {
		return ErrSlotUnavailable
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: booking %s is no longer %s", ErrInvalidTransition, id, from)
	}
	return nil
}

func (r *bookingRepoPG) SetVideoCall(ctx context.Context, id uuid.UUID, callID string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE bookings SET video_call_id = $2, updated_at = NOW() WHERE id = $1`, id, callID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Offering Repository ===========

type offeringRepoPG struct{ pool *pgxpool.Pool }

func NewOfferingRepoPG(pool *pgxpool.Pool) OfferingRepository { return &offeringRepoPG{pool: pool} }

func (r *offeringRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Offering, error) {
	var o Offering
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, consultant_id, name, duration, price, currency, created_at
		FROM services WHERE id = $1`, id).
		Scan(&o.ID, &o.ConsultantID, &o.Name, &o.Duration, &o.Price, &o.Currency, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// =========== Payment Ledger ===========

type ledgerPG struct{ pool *pgxpool.Pool }

func NewLedgerPG(pool *pgxpool.Pool) PaymentLedger { return &ledgerPG{pool: pool} }

func (r *ledgerPG) BookingForPayment(ctx context.Context, paymentID string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT booking_id FROM processed_payments WHERE payment_id = $1`, paymentID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (r *ledgerPG) Record(ctx context.Context, paymentID string, bookingID uuid.UUID) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO processed_payments (payment_id, booking_id) VALUES ($1, $2)`, paymentID, bookingID)
	return err
}

// =========== Transactions ===========

// allocationAttempts bounds retries of serialization failures.
const allocationAttempts = 3

type txRunnerPG struct{ pool *pgxpool.Pool }

func NewTxRunnerPG(pool *pgxpool.Pool) TxRunner { return &txRunnerPG{pool: pool} }

func (r *txRunnerPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.RunInTx(ctx, r.pool, db.Serializable, allocationAttempts, fn)
}
