package auth

import "time"

// Role distinguishes ordinary travellers from guide curators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account represents a registered principal. Email is unique and stored
// lower-cased. The refresh-token set lives next to the account in the
// credential store; it is the only server-side session state.
type Account struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         Role

	// Pending password-reset code. ResetCodeExpiresAt is the zero time when
	// no code is outstanding.
	ResetCode          string
	ResetCodeExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
