// Package cron parses trigger schedule strings into schedule descriptors.
//
// A schedule is either a plain decimal integer (an interval in minutes) or
// a standard 5-field cron expression (minute hour day month day-of-week).
package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidInterval  = errors.New("interval must be a positive number of minutes")
	ErrMalformedCron    = errors.New("cron expression must have 5 fields")
	ErrInvalidCronField = errors.New("invalid cron field")
)

type Kind string

const (
	KindInterval Kind = "interval"
	KindCron     Kind = "cron"
)

// Descriptor is a normalized schedule: an interval or five cron field
// patterns. Cron field grammar is not checked at parse time; Activate
// validates it when the descriptor is turned into a live schedule.
type Descriptor struct {
	Kind Kind

	Interval time.Duration

	Minute    string
	Hour      string
	Day       string
	Month     string
	DayOfWeek string
}

// Parse interprets a schedule string. A string composed entirely of decimal
// digits is an interval in minutes; anything else must split into exactly
// five whitespace-separated cron fields.
func Parse(schedule string) (Descriptor, error) {
	if isDigits(schedule) {
		minutes, err := strconv.Atoi(schedule)
		if err != nil || minutes <= 0 {
			return Descriptor{}, ErrInvalidInterval
		}
		return Descriptor{
			Kind:     KindInterval,
			Interval: time.Duration(minutes) * time.Minute,
		}, nil
	}

	fields := strings.Fields(schedule)
	if len(fields) != 5 {
		return Descriptor{}, ErrMalformedCron
	}

	return Descriptor{
		Kind:      KindCron,
		Minute:    fields[0],
		Hour:      fields[1],
		Day:       fields[2],
		Month:     fields[3],
		DayOfWeek: fields[4],
	}, nil
}

// Expression reassembles the five cron fields.
func (d Descriptor) Expression() string {
	return strings.Join([]string{d.Minute, d.Hour, d.Day, d.Month, d.DayOfWeek}, " ")
}

// Schedule computes successive fire times.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Activate turns the descriptor into a live schedule, validating cron field
// grammar in the process. A grammar failure is reported as ErrInvalidCronField.
func (d Descriptor) Activate() (Schedule, error) {
	switch d.Kind {
	case KindInterval:
		if d.Interval <= 0 {
			return nil, ErrInvalidInterval
		}
		return intervalSchedule{every: d.Interval}, nil

	case KindCron:
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		sched, err := parser.Parse(d.Expression())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCronField, err)
		}
		return cronSchedule{sched: sched}, nil

	default:
		return nil, fmt.Errorf("unknown schedule kind %q", d.Kind)
	}
}

// intervalSchedule fires a fixed delay after whatever time it is asked
// about, so firings drift with callback duration rather than queueing up.
type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.every)
}

type cronSchedule struct {
	sched cron.Schedule
}

func (s cronSchedule) Next(after time.Time) time.Time {
	return s.sched.Next(after)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
