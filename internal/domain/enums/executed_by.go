package enums

type ExecutedBy string

const (
	ExecutorAutoModerator ExecutedBy = "AUTO_MODERATOR"
	ExecutorAdmin         ExecutedBy = "ADMIN"
)
