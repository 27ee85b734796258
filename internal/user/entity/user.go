package entity

import "time"

// User is an identity record of the `users` table.
// ID is a KSUID assigned at registration and never changes afterwards.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	// SecondFactor is the 2FA secret; nil or empty when disabled.
	SecondFactor *string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasSecondFactor reports whether a second factor is configured.
func (u *User) HasSecondFactor() bool {
	return u.SecondFactor != nil && *u.SecondFactor != ""
}
