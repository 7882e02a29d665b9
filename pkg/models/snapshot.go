package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the immutable record of a produced answer, keyed by request id.
// It is created when an answer is emitted and read-only afterwards; a
// correction produces a superseding snapshot under the same request id.
type Snapshot struct {
	RequestID uuid.UUID      `json:"request_id"`
	Question  string         `json:"question"`
	Intent    *Intent        `json:"intent"`
	SQL       string         `json:"sql"`
	Binds     map[string]any `json:"binds"`
	CreatedAt time.Time      `json:"created_at"`
}

// FeedbackState tracks the corrective loop for one request id.
type FeedbackState string

const (
	// FeedbackAnswered is the initial state after the first answer.
	FeedbackAnswered FeedbackState = "answered"
	// FeedbackRetried means one deterministic retry with the conservative
	// measure strategy has been produced.
	FeedbackRetried FeedbackState = "retried"
	// FeedbackEscalated is terminal: the retry also failed to satisfy and a
	// notification was emitted.
	FeedbackEscalated FeedbackState = "escalated"
	// FeedbackClosed is terminal: the answer was rated at or above threshold.
	FeedbackClosed FeedbackState = "closed"
)

// Terminal reports whether no further ratings are accepted.
func (s FeedbackState) Terminal() bool {
	return s == FeedbackEscalated || s == FeedbackClosed
}
