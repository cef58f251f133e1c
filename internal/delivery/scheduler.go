package delivery

import (
	"sort"
	"time"

	"github.com/corbeille/corbeille-backend/pkg/calendar"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
)

// MinLeadDays is the minimum number of full days between ordering and delivery.
const MinLeadDays = 2

// Option is one selectable delivery slot.
type Option struct {
	Weekday       enums.DeliveryWeekday `json:"weekday"`
	ISODate       string                `json:"isoDate"`
	Label         string                `json:"label"`
	FormattedDate string                `json:"formattedDate"`
	Date          time.Time             `json:"-"`
}

// NextDeliveryDate returns the next target weekday at least MinLeadDays after from.
// Same-day and next-day requests are pushed a full week out.
func NextDeliveryDate(target time.Weekday, from time.Time) time.Time {
	from = calendar.Date(from)
	days := (int(target) - calendar.WeekdayOf(from) + 7) % 7
	if days < MinLeadDays {
		days += 7
	}
	return calendar.AddDays(from, days)
}

// Options lists the Monday and Tuesday candidates for from, earliest first.
func Options(from time.Time) []Option {
	weekdays := enums.DeliveryWeekdays()
	opts := make([]Option, 0, len(weekdays))
	for _, wd := range weekdays {
		date := NextDeliveryDate(wd.Weekday(), from)
		opts = append(opts, Option{
			Weekday:       wd,
			ISODate:       calendar.FormatISODate(date),
			Label:         calendar.FrenchWeekdayLabel(date.Weekday()),
			FormattedDate: calendar.FormatFrenchLong(date),
			Date:          date,
		})
	}
	sort.SliceStable(opts, func(i, j int) bool {
		return opts[i].Date.Before(opts[j].Date)
	})
	return opts
}

// Scheduler binds the pure calculation to the business timezone and a clock.
type Scheduler struct {
	loc *time.Location
	now func() time.Time
}

// NewScheduler builds a scheduler. A nil location means UTC, a nil clock time.Now.
func NewScheduler(loc *time.Location, now func() time.Time) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{loc: loc, now: now}
}

// Today is the current calendar day in the business timezone.
func (s *Scheduler) Today() time.Time {
	return calendar.Date(s.now().In(s.loc))
}

// OptionsFrom lists options from a caller-supplied date, or from today.
func (s *Scheduler) OptionsFrom(from *time.Time) []Option {
	if from == nil {
		return Options(s.Today())
	}
	return Options(*from)
}

// Resolve checks that weekday/isoDate is one of today's offered options.
func (s *Scheduler) Resolve(weekday enums.DeliveryWeekday, isoDate string) (Option, error) {
	if !weekday.IsValid() {
		return Option{}, pkgerrors.New(pkgerrors.CodeValidation, "delivery weekday must be monday or tuesday")
	}
	for _, opt := range Options(s.Today()) {
		if opt.Weekday != weekday {
			continue
		}
		if opt.ISODate != isoDate {
			return Option{}, pkgerrors.New(pkgerrors.CodeValidation, "delivery date is no longer available").
				WithDetails(map[string]any{"expected": opt.ISODate, "got": isoDate})
		}
		return opt, nil
	}
	return Option{}, pkgerrors.New(pkgerrors.CodeValidation, "delivery weekday not offered")
}
