package domain

import "time"

// Session describes the authenticated actor behind a credential.
type Session struct {
	SubjectID string
	Role      SenderRole
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry. A zero expiry never expires.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
