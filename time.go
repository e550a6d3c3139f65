package auth

import "time"

// Clock returns the current time. Handlers take one so tests can pin "now".
type Clock func() time.Time

// DefaultClock returns the current UTC time truncated to the second, which
// is the precision stored by the database.
func DefaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func normalizeClock(c Clock) Clock {
	if c == nil {
		return DefaultClock
	}
	return c
}

// IsExpiredAt reports whether expiration lies strictly before now.
// An expiration equal to now is still valid.
func IsExpiredAt(expiration, now time.Time) bool {
	return expiration.Before(now)
}

const (
	// InvitationTTL is the default validity of a new invitation
	InvitationTTL = 7 * 24 * time.Hour
	// PasswordResetTTL is the validity of a password reset token
	PasswordResetTTL = 24 * time.Hour
)
