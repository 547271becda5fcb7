package model

import "fmt"

// JobState tracks a canonical record through its lifecycle.
//
// Valid state graph:
//
//	NEW ──► ACTIVE ◄──► STALE
//	           │          │
//	           ├──────────┴──► EXPIRED
//	           │          │
//	NEW ───────┴──────────┴──► DUPLICATE
//
// EXPIRED and DUPLICATE are terminal: such records are kept for audit but
// never scored or recommended again.
type JobState string

const (
	StateNew       JobState = "NEW"
	StateActive    JobState = "ACTIVE"
	StateStale     JobState = "STALE"
	StateExpired   JobState = "EXPIRED"
	StateDuplicate JobState = "DUPLICATE"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[JobState][]JobState{
	StateNew:    {StateActive, StateDuplicate},
	StateActive: {StateStale, StateExpired, StateDuplicate},
	StateStale:  {StateActive, StateExpired, StateDuplicate},
	// EXPIRED and DUPLICATE are terminal — no outgoing transitions
}

// ParseJobState converts a raw string to a JobState, returning an error for
// unknown values.
func ParseJobState(s string) (JobState, error) {
	st := JobState(s)
	switch st {
	case StateNew, StateActive, StateStale, StateExpired, StateDuplicate:
		return st, nil
	}
	return "", fmt.Errorf("unknown job state %q", s)
}

// CanTransition returns true when moving from → to is permitted by the state
// machine.
func CanTransition(from, to JobState) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal returns true for states with no outgoing transitions.
func (s JobState) Terminal() bool {
	_, ok := validTransitions[s]
	return !ok
}
