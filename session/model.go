package session

import "time"

// Record is the cached state bound to one session id.
type Record struct {
	SessionID string
	UserID    string
	IP        string
	UserAgent string

	// CreatedAt and ExpiresAt are unix seconds. ExpiresAt mirrors the cookie expiry.
	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether the record's cookie expiry has passed at now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt > 0 && now.Unix() >= r.ExpiresAt
}
