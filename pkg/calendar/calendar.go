// Package calendar holds the pure date arithmetic used for deliveries and
// renewals. Every function works on the calendar fields of the value it is
// given, in that value's own location, so a date never drifts by a day when
// it travels through a UTC view.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// ISOLayout is the YYYY-MM-DD wire format for calendar dates.
const ISOLayout = "2006-01-02"

var frenchWeekdays = [...]string{"Dimanche", "Lundi", "Mardi", "Mercredi", "Jeudi", "Vendredi", "Samedi"}

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// Date truncates t to midnight of its calendar day, keeping its location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekdayOf returns 0..6 with 0 = Sunday.
func WeekdayOf(t time.Time) int {
	return int(t.Weekday())
}

// IsDeliverableWeekday is true only for Monday and Tuesday.
func IsDeliverableWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Monday || wd == time.Tuesday
}

// FormatISODate renders the zero-padded YYYY-MM-DD of t's own calendar fields.
func FormatISODate(t time.Time) string {
	return t.Format(ISOLayout)
}

// ParseISODate reads YYYY-MM-DD into a UTC midnight value.
func ParseISODate(value string) (time.Time, error) {
	t, err := time.Parse(ISOLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO date %q: %w", value, err)
	}
	return t, nil
}

// AsUTCDate keeps t's calendar day but pins it to UTC midnight, the shape dates
// are persisted in.
func AsUTCDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a date by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// AddMonths shifts by n months on the same day-of-month. Overflow rolls into
// the following month: Jan 31 + 1 month is Mar 3 (Mar 2 in leap years).
func AddMonths(t time.Time, n int) time.Time {
	return t.AddDate(0, n, 0)
}

// FrenchWeekdayLabel returns the capitalised French day name.
func FrenchWeekdayLabel(day time.Weekday) string {
	if day < time.Sunday || day > time.Saturday {
		return ""
	}
	return frenchWeekdays[day]
}

// FormatFrenchLong renders "lundi 27 janvier 2025".
func FormatFrenchLong(t time.Time) string {
	return fmt.Sprintf("%s %d %s %d",
		strings.ToLower(FrenchWeekdayLabel(t.Weekday())),
		t.Day(),
		frenchMonths[t.Month()-1],
		t.Year(),
	)
}
