package enums

// EventType tags an audit payload. Legacy automatic rows predate the tag and
// carry an empty type; every consumer must treat them as a spam violation
// paired with a deletion.
type EventType string

const (
	EventLegacyAuto         EventType = ""
	EventScanned            EventType = "SCANNED"
	EventViolation          EventType = "VIOLATION"
	EventPenalty            EventType = "PENALTY"
	EventManualStrikeAdd    EventType = "MANUAL_STRIKE_ADD"
	EventManualStrikeRemove EventType = "MANUAL_STRIKE_REMOVE"
	EventManualStrikeSet    EventType = "MANUAL_STRIKE_SET"
	EventUnknown            EventType = "UNKNOWN"
)
