package model

import "time"

// Session is an issued auth session. The token is the bearer credential
// presented by clients and checked by the matchmaking coordinator.
type Session struct {
	Token      string
	AccountID  int64
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastSeenIP string
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
