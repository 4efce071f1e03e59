package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/consultbook/consultbook/internal/platform/auth"
)

// DefaultWindowDays bounds GetAvailableDates when the caller gives no end date.
const DefaultWindowDays = 90

// DefaultMaxWindowDays caps how many days a single GetAvailableDates call may span.
const DefaultMaxWindowDays = 366

// DayUpdate is one day's worth of availability as submitted by a consultant.
type DayUpdate struct {
	Day        string         `json:"day"`
	IsActive   bool           `json:"isActive"`
	TimeRanges []DisplayRange `json:"timeRanges"`
}

type Service struct {
	repo        Repository
	bookings    BookingLookup
	consultants ConsultantDirectory
	cache       Cache
	slotMinutes int
	windowDays  int
	maxWindow   int
	now         func() time.Time
	logger      zerolog.Logger
}

type Option func(*Service)

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func WithSlotMinutes(m int) Option {
	return func(s *Service) {
		if m > 0 {
			s.slotMinutes = m
		}
	}
}

func WithWindowDays(d int) Option {
	return func(s *Service) {
		if d > 0 {
			s.windowDays = d
		}
	}
}

func WithMaxWindowDays(d int) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxWindow = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(repo Repository, bookings BookingLookup, consultants ConsultantDirectory, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		bookings:    bookings,
		consultants: consultants,
		slotMinutes: DefaultSlotMinutes,
		windowDays:  DefaultWindowDays,
		maxWindow:   DefaultMaxWindowDays,
		now:         time.Now,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(consultantID uuid.UUID) string {
	return "availability:" + consultantID.String()
}

// GetAvailability returns all seven days in Week order. Days without a stored
// record, including every day of an unknown consultant, are reported inactive.
func (s *Service) GetAvailability(ctx context.Context, consultantID uuid.UUID) ([]DayAvailability, error) {
	if cached, ok := s.cachedWeek(ctx, consultantID); ok {
		return cached, nil
	}

	records, err := s.repo.ListByConsultant(ctx, consultantID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	byDay := make(map[Day]*ConsultantAvailability, len(records))
	for _, r := range records {
		byDay[r.DayOfWeek] = r
	}

	week := make([]DayAvailability, 0, len(Week))
	for _, d := range Week {
		rec, ok := byDay[d]
		if !ok {
			week = append(week, DayAvailability{Day: d, TimeRanges: []DisplayRange{}})
			continue
		}
		view, err := rec.toDisplay()
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", d, err)
		}
		week = append(week, view)
	}

	s.storeWeek(ctx, consultantID, week)
	return week, nil
}

// UpdateDay upserts one day. Only the consultant or an admin may call it.
func (s *Service) UpdateDay(ctx context.Context, caller auth.Identity, consultantID uuid.UUID, upd DayUpdate) (*DayAvailability, error) {
	if err := s.authorize(ctx, caller, consultantID); err != nil {
		return nil, err
	}
	rec, err := buildRecord(consultantID, upd)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertDay(ctx, rec); err != nil {
		return nil, fmt.Errorf("upsert availability: %w", err)
	}
	s.invalidate(ctx, consultantID)

	view, err := rec.toDisplay()
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// UpdateWeek upserts each submitted day in one transaction. Days not present
// in the request keep their stored state.
func (s *Service) UpdateWeek(ctx context.Context, caller auth.Identity, consultantID uuid.UUID, days []DayUpdate) ([]DayAvailability, error) {
	if err := s.authorize(ctx, caller, consultantID); err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, &ValidationError{Field: "weeklyAvailability", Reason: "at least one day is required"}
	}

	seen := make(map[Day]bool, len(days))
	records := make([]*ConsultantAvailability, 0, len(days))
	for _, upd := range days {
		rec, err := buildRecord(consultantID, upd)
		if err != nil {
			return nil, err
		}
		if seen[rec.DayOfWeek] {
			return nil, &ValidationError{Field: "weeklyAvailability", Reason: fmt.Sprintf("%s listed more than once", rec.DayOfWeek)}
		}
		seen[rec.DayOfWeek] = true
		records = append(records, rec)
	}

	if err := s.repo.UpsertWeek(ctx, consultantID, records); err != nil {
		return nil, fmt.Errorf("upsert weekly availability: %w", err)
	}
	s.invalidate(ctx, consultantID)
	return s.GetAvailability(ctx, consultantID)
}

// GetAvailableSlots lists the open slots on date. Slots whose start time is
// taken by a non-cancelled booking are removed.
func (s *Service) GetAvailableSlots(ctx context.Context, consultantID uuid.UUID, date string) ([]Slot, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return nil, &ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}

	rec, err := s.repo.GetDay(ctx, consultantID, DayOf(d))
	if err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}
	if rec == nil || !rec.IsActive || len(rec.TimeRanges) == 0 {
		return []Slot{}, nil
	}

	booked, err := s.bookings.ListBookedTimes(ctx, consultantID, d.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
	}
	return GenerateSlots(rec.TimeRanges, s.slotMinutes, BookedStartTimes(booked)), nil
}

// GetAvailableDates lists dates in [start, end] that fall on an active day.
// Empty start means today; empty end means start plus the configured window.
func (s *Service) GetAvailableDates(ctx context.Context, consultantID uuid.UUID, start, end string) ([]string, error) {
	from := truncateDay(s.now().UTC())
	if start != "" {
		t, err := time.Parse(DateLayout, start)
		if err != nil {
			return nil, &ValidationError{Field: "start", Reason: "expected YYYY-MM-DD"}
		}
		from = t
	}
	to := from.AddDate(0, 0, s.windowDays)
	if end != "" {
		t, err := time.Parse(DateLayout, end)
		if err != nil {
			return nil, &ValidationError{Field: "end", Reason: "expected YYYY-MM-DD"}
		}
		to = t
	}
	if to.Before(from) {
		return nil, &ValidationError{Field: "end", Reason: "must not be before start"}
	}
	if to.Sub(from) > time.Duration(s.maxWindow)*24*time.Hour {
		return nil, &ValidationError{Field: "end", Reason: fmt.Sprintf("range must not exceed %d days", s.maxWindow)}
	}

	records, err := s.repo.ListByConsultant(ctx, consultantID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return ExpandDates(records, from, to), nil
}

func (s *Service) authorize(ctx context.Context, caller auth.Identity, consultantID uuid.UUID) error {
	if !caller.IsAdmin() && caller.UserID != consultantID {
		return ErrForbidden
	}
	ok, err := s.consultants.IsConsultant(ctx, consultantID)
	if err != nil {
		return fmt.Errorf("lookup consultant: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func buildRecord(consultantID uuid.UUID, upd DayUpdate) (*ConsultantAvailability, error) {
	day, err := ParseDay(upd.Day)
	if err != nil {
		return nil, err
	}
	rec := &ConsultantAvailability{
		ConsultantID: consultantID,
		DayOfWeek:    day,
		IsActive:     upd.IsActive,
		TimeRanges:   []TimeRange{},
	}
	if !upd.IsActive {
		return rec, nil
	}
	ranges, err := normalizeRanges(upd.TimeRanges)
	if err != nil {
		return nil, err
	}
	rec.TimeRanges = ranges
	return rec, nil
}

func (s *Service) cachedWeek(ctx context.Context, consultantID uuid.UUID) ([]DayAvailability, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, cacheKey(consultantID))
	if err != nil {
		s.logger.Warn().Err(err).Str("consultant_id", consultantID.String()).Msg("availability cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var week []DayAvailability
	if err := json.Unmarshal(raw, &week); err != nil || len(week) != len(Week) {
		return nil, false
	}
	return week, true
}

func (s *Service) storeWeek(ctx context.Context, consultantID uuid.UUID, week []DayAvailability) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(week)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(consultantID), raw); err != nil {
		s.logger.Warn().Err(err).Str("consultant_id", consultantID.String()).Msg("availability cache write failed")
	}
}

func (s *Service) invalidate(ctx context.Context, consultantID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(consultantID)); err != nil {
		s.logger.Warn().Err(err).Str("consultant_id", consultantID.String()).Msg("availability cache invalidation failed")
	}
}
