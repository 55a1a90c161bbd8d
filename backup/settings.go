package backup

import "time"

// Location modes.
const (
	LocationPrimary  = "primary"
	LocationExternal = "external"
)

// Settings holds backup configuration.
type Settings struct {
	Enabled      bool   `yaml:"enabled"`
	Frequency    string `yaml:"frequency"`     // "daily" or "weekly"
	LocationMode string `yaml:"location_mode"` // "primary" or "external"
	Dir          string `yaml:"dir"`           // primary storage directory
	ExternalDir  string `yaml:"external_dir"`  // user-chosen folder, optional
	KeepLatest   int    `yaml:"keep_latest"`
}

func (s *Settings) defaults() {
	if s.Frequency != "weekly" {
		s.Frequency = "daily"
	}
	if s.LocationMode != LocationExternal {
		s.LocationMode = LocationPrimary
	}
	if s.Dir == "" {
		s.Dir = "backups"
	}
	if s.KeepLatest < 1 {
		s.KeepLatest = 5
	}
}

// Interval returns how often automatic backups should run.
func (s *Settings) Interval() time.Duration {
	if s.Frequency == "weekly" {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}
