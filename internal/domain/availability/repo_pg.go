package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consultbook/consultbook/internal/platform/db"
)

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &availabilityRepoPG{pool: pool} }

const availCols = `id, consultant_id, day_of_week, is_active, time_ranges, created_at, updated_at`

func (r *availabilityRepoPG) scan(row pgx.Row) (*ConsultantAvailability, error) {
	var a ConsultantAvailability
	var ranges []byte
	if err := row.Scan(&a.ID, &a.ConsultantID, &a.DayOfWeek, &a.IsActive, &ranges, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if len(ranges) > 0 {
		if err := json.Unmarshal(ranges, &a.TimeRanges); err != nil {
			return nil, fmt.Errorf("decode time_ranges: %w", err)
		}
	}
	if a.TimeRanges == nil {
		a.TimeRanges = []TimeRange{}
	}
	return &a, nil
}

func (r *availabilityRepoPG) ListByConsultant(ctx context.Context, consultantID uuid.UUID) ([]*ConsultantAvailability, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+availCols+` FROM consultant_availability WHERE consultant_id = $1`, consultantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ConsultantAvailability
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *availabilityRepoPG) GetDay(ctx context.Context, consultantID uuid.UUID, day Day) (*ConsultantAvailability, error) {
	a, err := r.scan(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+availCols+` FROM consultant_availability WHERE consultant_id = $1 AND day_of_week = $2`,
		consultantID, day))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *availabilityRepoPG) UpsertDay(ctx context.Context, a *ConsultantAvailability) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if !a.IsActive || a.TimeRanges == nil {
		a.TimeRanges = []TimeRange{}
	}
	ranges, err := json.Marshal(a.TimeRanges)
	if err != nil {
		return fmt.Errorf("encode time_ranges: %w", err)
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO consultant_availability (id, consultant_id, day_of_week, is_active, time_ranges)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (consultant_id, day_of_week)
		DO UPDATE SET is_active = EXCLUDED.is_active, time_ranges = EXCLUDED.time_ranges, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		a.ID, a.ConsultantID, a.DayOfWeek, a.IsActive, ranges).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *availabilityRepoPG) UpsertWeek(ctx context.Context, consultantID uuid.UUID, days []*ConsultantAvailability) error {
	return db.RunInTx(ctx, r.pool, pgx.TxOptions{}, 1, func(ctx context.Context) error {
		for _, d := range days {
			d.ConsultantID = consultantID
			if err := r.UpsertDay(ctx, d); err != nil {
				return fmt.Errorf("upsert %s: %w", d.DayOfWeek, err)
			}
		}
		return nil
	})
}
