package cron

import (
	"errors"
	"testing"
	"time"
)

func TestParse_Interval(t *testing.T) {
	d, err := Parse("30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != KindInterval {
		t.Fatalf("expected interval kind, got %q", d.Kind)
	}
	if d.Interval != 30*time.Minute {
		t.Errorf("expected 30m, got %s", d.Interval)
	}
}

func TestParse_IntervalLeadingZeros(t *testing.T) {
	d, err := Parse("030")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Interval != 30*time.Minute {
		t.Errorf("expected 30m, got %s", d.Interval)
	}
}

func TestParse_IntervalZero(t *testing.T) {
	_, err := Parse("0")
	if !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestParse_IntervalOverflow(t *testing.T) {
	_, err := Parse("99999999999999999999")
	if !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestParse_Cron(t *testing.T) {
	d, err := Parse("0 9 * * 1-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != KindCron {
		t.Fatalf("expected cron kind, got %q", d.Kind)
	}
	if d.Minute != "0" || d.Hour != "9" || d.Day != "*" || d.Month != "*" || d.DayOfWeek != "1-5" {
		t.Errorf("fields assigned wrong: %+v", d)
	}
	if d.Expression() != "0 9 * * 1-5" {
		t.Errorf("expression round-trip: %q", d.Expression())
	}
}

func TestParse_CronExtraWhitespace(t *testing.T) {
	d, err := Parse("  */5   *  * *   * ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Minute != "*/5" {
		t.Errorf("minute = %q", d.Minute)
	}
}

func TestParse_MalformedCron(t *testing.T) {
	for _, schedule := range []string{"", "* * * *", "* * * * * *", "every day"} {
		if _, err := Parse(schedule); !errors.Is(err, ErrMalformedCron) {
			t.Errorf("Parse(%q): expected ErrMalformedCron, got %v", schedule, err)
		}
	}
}

func TestActivate_IntervalFixedDelay(t *testing.T) {
	d, err := Parse("15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched, err := d.Activate()
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	after := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	next := sched.Next(after)
	if want := after.Add(15 * time.Minute); !next.Equal(want) {
		t.Errorf("Next = %s, want %s", next, want)
	}
}

func TestActivate_CronNext(t *testing.T) {
	d, err := Parse("0 9 * * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched, err := d.Activate()
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	after := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	next := sched.Next(after)
	if want := time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("Next = %s, want %s", next, want)
	}
}

func TestActivate_InvalidCronField(t *testing.T) {
	// Syntactically five fields, so Parse accepts it; grammar validation
	// happens at activation.
	d, err := Parse("bogus * * * *")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if _, err := d.Activate(); !errors.Is(err, ErrInvalidCronField) {
		t.Fatalf("expected ErrInvalidCronField, got %v", err)
	}
}

func TestActivate_CronStepAndList(t *testing.T) {
	for _, expr := range []string{"*/10 * * * *", "0,30 8-18 * * 1,3,5", "5 4 1 1 *"} {
		d, err := Parse(expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", expr, err)
		}
		if _, err := d.Activate(); err != nil {
			t.Errorf("Activate(%q): %v", expr, err)
		}
	}
}
