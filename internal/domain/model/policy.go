package model

// GroupPenaltyPolicy configures the escalation tiers for one group. A level of
// zero disables the tier. Policies come from the surrounding settings layer;
// the core only reads them.
type GroupPenaltyPolicy struct {
	AlertLevel           int
	MuteLevel            int
	KickLevel            int
	BanLevel             int
	MuteDurationMinutes  int
	StrikeExpirationDays int
}
