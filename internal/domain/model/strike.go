package model

import "time"

// StrikeRecord is the per (group, user) violation counter. Count never goes
// negative; a zero count carries no last-strike timestamp. Records are zeroed
// on expiration or expulsion, never deleted.
type StrikeRecord struct {
	GroupID      string
	UserID       string
	Count        int
	LastStrikeAt *time.Time
}

// Expired reports whether the record's last strike is older than the group's
// expiration window. A non-positive window disables expiration.
func (r StrikeRecord) Expired(expirationDays int, now time.Time) bool {
	if expirationDays <= 0 || r.LastStrikeAt == nil {
		return false
	}
	return now.Sub(*r.LastStrikeAt) > time.Duration(expirationDays)*24*time.Hour
}
