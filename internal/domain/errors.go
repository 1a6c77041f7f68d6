// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a request failed validation.
var ErrValidation = errors.New("validation failed")

// ErrAgentNotFound indicates the spawn config names an unknown agent definition.
var ErrAgentNotFound = errors.New("agent definition not found")

// ErrMaxConcurrentExceeded indicates a spawn was rejected because the global
// concurrency ceiling is reached. Spawns are never queued; callers retry later.
var ErrMaxConcurrentExceeded = errors.New("max concurrent agents exceeded")

// ErrInvalidTransition indicates a status change the lifecycle state machine
// does not permit.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNoScope indicates a write-access request from an agent that has no
// active access scope.
var ErrNoScope = errors.New("no access scope for agent")
