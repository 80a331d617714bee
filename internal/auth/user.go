package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/skyward-school/skyward/internal/email"
)

// Role is the role of a user within the school administration.
type Role string

const (
	RoleTeacher Role = "teacher"
)

// User contains the data for a user account.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        email.Address
	Username     Username
	PasswordHash PasswordHash
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
