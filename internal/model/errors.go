package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by catalog lookups that match no record.
var ErrNotFound = errors.New("job not found")

// ErrHashConflict is returned by Upsert when a different record already
// claims the same deduplication hash.
var ErrHashConflict = errors.New("deduplication hash already claimed")

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ValidationError rejects a raw posting that is malformed or missing required
// fields. Non-fatal: the posting is logged with its source and external ID,
// then dropped.
type ValidationError struct {
	Source     JobSource
	ExternalID string
	Missing    []string // required fields absent from the payload
	Err        error    // set when the payload itself could not be parsed
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("posting %s/%s malformed: %v", e.Source, e.ExternalID, e.Err)
	}
	return fmt.Sprintf("posting %s/%s missing required fields: %s",
		e.Source, e.ExternalID, strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DuplicateRaceError reports that concurrent ingests raced on the same new
// hash and the retry could not reconcile them.
type DuplicateRaceError struct {
	Hash string
	Err  error
}

func (e *DuplicateRaceError) Error() string {
	return fmt.Sprintf("duplicate race on hash %s: %v", e.Hash, e.Err)
}

func (e *DuplicateRaceError) Unwrap() error {
	return e.Err
}

// ScoringTimeoutError reports that on-demand scoring exceeded its budget and
// no cached result was available to fall back on.
type ScoringTimeoutError struct {
	JobID string
}

func (e *ScoringTimeoutError) Error() string {
	return fmt.Sprintf("scoring %s exceeded its time budget", e.JobID)
}
