package enums

import "fmt"

// DriverStatus records whether the assigned driver took the run.
type DriverStatus string

const (
	DriverStatusPending  DriverStatus = "pending"
	DriverStatusAccepted DriverStatus = "accepted"
	DriverStatusRefused  DriverStatus = "refused"
)

var validDriverStatuses = []DriverStatus{
	DriverStatusPending,
	DriverStatusAccepted,
	DriverStatusRefused,
}

func (s DriverStatus) IsValid() bool {
	for _, candidate := range validDriverStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseDriverDecision accepts only the two answers a driver can give.
func ParseDriverDecision(value string) (DriverStatus, error) {
	switch DriverStatus(value) {
	case DriverStatusAccepted, DriverStatusRefused:
		return DriverStatus(value), nil
	}
	return "", fmt.Errorf("invalid driver decision %q", value)
}
