package moderation

import "context"

// StaticSettings serves the same configured settings for every group. Used
// until a per-group settings backend is attached.
type StaticSettings struct {
	settings GroupSettings
}

func NewStaticSettings(settings GroupSettings) *StaticSettings {
	return &StaticSettings{settings: settings}
}

func (s *StaticSettings) SettingsFor(_ context.Context, _ string) (GroupSettings, error) {
	return s.settings, nil
}
