package model

import "time"

// Account represents a player account stored in the database.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        string
	CreatedAt    time.Time
	LastLogin    time.Time
	IsBanned     bool
	BanReason    string
	BanExpiresAt time.Time // zero when the ban is permanent or absent
}

// BanActive reports whether the account is banned at the given moment.
// A zero BanExpiresAt on a banned account means the ban never expires.
func (a *Account) BanActive(now time.Time) bool {
	if !a.IsBanned {
		return false
	}
	if a.BanExpiresAt.IsZero() {
		return true
	}
	return now.Before(a.BanExpiresAt)
}
