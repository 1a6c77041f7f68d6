package agent

import "strings"

// AccessScope is the per-instance record of permitted paths and held locks.
// One scope exists per running instance; it is created when the instance
// starts and destroyed when it reaches a terminal status.
type AccessScope struct {
	AgentID       string              `json:"agent_id"`
	WorkingDir    string              `json:"working_dir,omitempty"`
	AllowedPaths  []string            `json:"allowed_paths,omitempty"`
	DeniedPaths   []string            `json:"denied_paths,omitempty"`
	ModifiedFiles []string            `json:"modified_files"`
	LockedFiles   map[string]struct{} `json:"-"`
	Overlays      map[string]string   `json:"-"` // contested path → private copy (isolated strategy)
}

// NewAccessScope creates a scope for the given instance from its spawn config.
func NewAccessScope(agentID string, cfg *SpawnConfig) *AccessScope {
	return &AccessScope{
		AgentID:      agentID,
		WorkingDir:   cfg.WorkingDir,
		AllowedPaths: cfg.AllowedPaths,
		DeniedPaths:  cfg.DeniedPaths,
		LockedFiles:  make(map[string]struct{}),
		Overlays:     make(map[string]string),
	}
}

// PathAllowed reports whether the scope permits access to path.
// Denied prefixes are checked first and any match denies. An empty allowed
// list means allow-all; otherwise the path must match an allowed prefix.
func (s *AccessScope) PathAllowed(path string) bool {
	for _, denied := range s.DeniedPaths {
		if strings.HasPrefix(path, denied) {
			return false
		}
	}
	if len(s.AllowedPaths) == 0 {
		return true
	}
	for _, allowed := range s.AllowedPaths {
		if strings.HasPrefix(path, allowed) {
			return true
		}
	}
	return false
}

// RecordModification appends path to ModifiedFiles. Idempotent on repeats;
// entries are never removed, even after the file's lock is released.
func (s *AccessScope) RecordModification(path string) {
	for _, p := range s.ModifiedFiles {
		if p == path {
			return
		}
	}
	s.ModifiedFiles = append(s.ModifiedFiles, path)
}
