package app

import (
	"strings"

	"eventcast/internal/config"
	"eventcast/internal/storage"
)

// mapStorageConfig reports whether the journal is enabled. Settings are
// validated by config.Load, so only the mapping happens here.
func mapStorageConfig(s *config.Settings) (storage.Config, bool) {
	j := s.Daemon.Journal
	driver := strings.ToLower(strings.TrimSpace(j.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(j.Path)}, true
}
