package availability

import (
	"errors"
	"testing"
	"time"
)

func TestParseDay(t *testing.T) {
	tests := []struct {
		in   string
		want Day
	}{
		{"Monday", Monday},
		{"monday", Monday},
		{" SUNDAY ", Sunday},
		{"wed", Wednesday},
		{"Thu", Thursday},
	}
	for _, tt := range tests {
		got, err := ParseDay(tt.in)
		if err != nil {
			t.Errorf("ParseDay(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDay(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseDay_Invalid(t *testing.T) {
	for _, in := range []string{"", "Mo", "Funday", "mond"} {
		_, err := ParseDay(in)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("ParseDay(%q) expected ValidationError, got %v", in, err)
		}
	}
}

func TestDayOf(t *testing.T) {
	d := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	if DayOf(d) != Monday {
		t.Errorf("expected Monday, got %s", DayOf(d))
	}
}

func TestNormalizeRanges_SortsAndConverts(t *testing.T) {
	got, err := normalizeRanges([]DisplayRange{
		{From: "1:00 pm", To: "5:00 pm"},
		{From: "9:00 am", To: "12:00 pm"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []TimeRange{{"09:00", "12:00"}, {"13:00", "17:00"}}
	if len(got) != len(want) {
		t.Fatalf("expected %d ranges, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNormalizeRanges_AdjacentAllowed(t *testing.T) {
	_, err := normalizeRanges([]DisplayRange{
		{From: "9:00 am", To: "10:00 am"},
		{From: "10:00 am", To: "11:00 am"},
	})
	if err != nil {
		t.Errorf("adjacent ranges should be accepted: %v", err)
	}
}

func TestNormalizeRanges_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		ranges []DisplayRange
	}{
		{"overlap", []DisplayRange{{From: "9:00 am", To: "11:00 am"}, {From: "10:30 am", To: "12:00 pm"}}},
		{"reversed", []DisplayRange{{From: "5:00 pm", To: "9:00 am"}}},
		{"empty", []DisplayRange{{From: "9:00 am", To: "9:00 am"}}},
		{"malformed", []DisplayRange{{From: "nine", To: "10:00 am"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := normalizeRanges(tt.ranges); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestToDisplay_Inactive(t *testing.T) {
	a := &ConsultantAvailability{DayOfWeek: Friday, IsActive: false, TimeRanges: []TimeRange{{"09:00", "10:00"}}}
	view, err := a.toDisplay()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.IsActive || len(view.TimeRanges) != 0 {
		t.Errorf("inactive day should render without ranges, got %+v", view)
	}
}

func TestToDisplay_Active(t *testing.T) {
	a := &ConsultantAvailability{DayOfWeek: Friday, IsActive: true, TimeRanges: []TimeRange{{"00:00", "12:30"}}}
	view, err := a.toDisplay()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.TimeRanges) != 1 || view.TimeRanges[0].From != "12:00 am" || view.TimeRanges[0].To != "12:30 pm" {
		t.Errorf("unexpected display ranges %+v", view.TimeRanges)
	}
}
