package models

import (
	"time"
)

// Role values for marketplace accounts
const (
	RoleBuyer   = "buyer"
	RoleArtisan = "artisan"
	RoleAdmin   = "admin"
)

type User struct {
	ID                string
	Email             string
	PasswordHash      string // NULL for accounts created via external providers
	Name              string
	Role              string // "buyer", "artisan", "admin"
	Status            string // "active", "suspended", "disabled"
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
