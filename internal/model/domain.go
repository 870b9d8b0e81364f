package model

import (
	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "ADMIN"
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	Subject string
	Role    UserRole
	TokenID uuid.UUID
}

func (p Principal) IsAdmin() bool {
	return p.Role == UserRoleAdmin
}
