package agent

import "fmt"

// MinTimeoutMS is the lowest timeout a spawn config may request.
const MinTimeoutMS = 1000

// ValidationResult is the outcome of validating a SpawnConfig. Errors are
// accumulated so the caller can display every problem at once; validation
// never panics and never stops at the first failure.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateSpawn checks a SpawnConfig against the definition set and the
// configured default timeout in a single pass. The default timeout bounds
// the requested one: anything above twice the default is rejected.
func ValidateSpawn(cfg *SpawnConfig, defs *DefinitionSet, defaultTimeoutMS int64) ValidationResult {
	var errs []string

	if cfg.AgentName == "" {
		errs = append(errs, "agent_name is required")
	} else if defs != nil {
		if _, ok := defs.Get(cfg.AgentName); !ok {
			errs = append(errs, fmt.Sprintf("unknown agent definition %q", cfg.AgentName))
		}
	}

	if cfg.Task == "" {
		errs = append(errs, "task is required")
	}

	if cfg.TimeoutMS != 0 {
		if cfg.TimeoutMS < MinTimeoutMS {
			errs = append(errs, fmt.Sprintf("timeout_ms must be at least %d", MinTimeoutMS))
		}
		if defaultTimeoutMS > 0 && cfg.TimeoutMS > 2*defaultTimeoutMS {
			errs = append(errs, fmt.Sprintf("timeout_ms must not exceed %d (2x default)", 2*defaultTimeoutMS))
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
