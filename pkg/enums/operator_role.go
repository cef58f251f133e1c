package enums

import "fmt"

// OperatorRole is the back-office permission carried in an operator token.
type OperatorRole string

const (
	OperatorRoleAdmin      OperatorRole = "admin"
	OperatorRoleDispatcher OperatorRole = "dispatcher"
	OperatorRoleDriver     OperatorRole = "driver"
)

var validOperatorRoles = []OperatorRole{
	OperatorRoleAdmin,
	OperatorRoleDispatcher,
	OperatorRoleDriver,
}

func (r OperatorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known OperatorRole.
func (r OperatorRole) IsValid() bool {
	for _, candidate := range validOperatorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseOperatorRole converts raw input into an OperatorRole.
func ParseOperatorRole(value string) (OperatorRole, error) {
	for _, candidate := range validOperatorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operator role %q", value)
}
