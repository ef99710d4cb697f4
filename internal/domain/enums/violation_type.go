package enums

type ViolationType string

const (
	ViolationSpam      ViolationType = "SPAM"
	ViolationProfanity ViolationType = "PROFANITY"
)
