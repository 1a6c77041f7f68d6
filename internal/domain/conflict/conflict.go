// Package conflict defines the file conflict domain entities and the
// resolution strategy enum.
package conflict

import "time"

// Strategy selects how a file conflict between two agents is resolved.
type Strategy string

const (
	// StrategySerialize pauses the losing agent until the winner releases
	// the contested lock, then resumes it.
	StrategySerialize Strategy = "serialize"
	// StrategyAbortNewer cancels whichever agent started later.
	StrategyAbortNewer Strategy = "abort-newer"
	// StrategyMergeResults combines both agents' pending writes into merged
	// content and resumes both against the merged state.
	StrategyMergeResults Strategy = "merge-results"
	// StrategyIsolated gives each agent a private copy of the contested file;
	// reconciliation happens outside the coordinator.
	StrategyIsolated Strategy = "isolated"
)

// Valid reports whether s is one of the four known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySerialize, StrategyAbortNewer, StrategyMergeResults, StrategyIsolated:
		return true
	}
	return false
}

// ResolutionResult records the outcome of resolving a FileConflict.
type ResolutionResult struct {
	Strategy       Strategy  `json:"strategy"`
	WinningAgentID string    `json:"winning_agent_id,omitempty"`
	MergedContent  string    `json:"merged_content,omitempty"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// FileConflict is created the instant two agents' access requests collide
// on the same path.
type FileConflict struct {
	ID         string            `json:"id"`
	Path       string            `json:"path"`
	AgentIDs   []string          `json:"agent_ids"`
	DetectedAt time.Time         `json:"detected_at"`
	Resolution *ResolutionResult `json:"resolution,omitempty"`
}

// Resolved reports whether the conflict has a recorded resolution.
func (c *FileConflict) Resolved() bool { return c.Resolution != nil }
