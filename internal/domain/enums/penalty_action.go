package enums

type PenaltyAction string

const (
	ActionDelete PenaltyAction = "DELETE"
	ActionAlert  PenaltyAction = "ALERT"
	ActionMute   PenaltyAction = "MUTE"
	ActionKick   PenaltyAction = "KICK"
	ActionBan    PenaltyAction = "BAN"
)

// Severity orders actions for the escalator tie-break: when two enabled
// thresholds share the same numeric level the harsher action wins.
func (a PenaltyAction) Severity() int {
	switch a {
	case ActionBan:
		return 4
	case ActionKick:
		return 3
	case ActionMute:
		return 2
	case ActionAlert:
		return 1
	default:
		return 0
	}
}

// IsExpulsion reports whether the action removes the user from the group and
// therefore resets the strike counter.
func (a PenaltyAction) IsExpulsion() bool {
	return a == ActionKick || a == ActionBan
}
