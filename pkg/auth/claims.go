package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// OperatorTokenPayload is what the back-office signs into an operator token.
type OperatorTokenPayload struct {
	OperatorID string
	Role       enums.OperatorRole
	JTI        string
}

// OperatorClaims is the typed JWT presented on admin routes.
type OperatorClaims struct {
	Role enums.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

// OperatorID is the token subject.
func (c *OperatorClaims) OperatorID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
