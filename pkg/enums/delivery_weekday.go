package enums

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryWeekday is one of the two days the vans run.
type DeliveryWeekday string

const (
	DeliveryMonday  DeliveryWeekday = "monday"
	DeliveryTuesday DeliveryWeekday = "tuesday"
)

var validDeliveryWeekdays = []DeliveryWeekday{DeliveryMonday, DeliveryTuesday}

func (d DeliveryWeekday) String() string {
	return string(d)
}

func (d DeliveryWeekday) IsValid() bool {
	for _, candidate := range validDeliveryWeekdays {
		if candidate == d {
			return true
		}
	}
	return false
}

// Weekday maps the delivery day onto the time package.
func (d DeliveryWeekday) Weekday() time.Weekday {
	if d == DeliveryTuesday {
		return time.Tuesday
	}
	return time.Monday
}

// DeliveryWeekdays lists the deliverable days in calendar order.
func DeliveryWeekdays() []DeliveryWeekday {
	return append([]DeliveryWeekday(nil), validDeliveryWeekdays...)
}

// ParseDeliveryWeekday converts raw input into a DeliveryWeekday.
func ParseDeliveryWeekday(value string) (DeliveryWeekday, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validDeliveryWeekdays {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery weekday %q", value)
}
