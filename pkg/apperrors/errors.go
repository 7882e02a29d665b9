package apperrors

import "errors"

var (
	// ErrSnapshotNotFound is returned when feedback re-planning references a
	// request id with no live snapshot (unknown, or evicted past retention).
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrEmptyQuestion is returned when a plan is requested for blank text.
	ErrEmptyQuestion = errors.New("question text is empty")

	// ErrInvalidIntent is returned when an intent mixes row-level projection
	// with grouped aggregation.
	ErrInvalidIntent = errors.New("intent mixes grouping and row projection")

	// ErrFeedbackClosed is returned when a rating arrives for a request id
	// already in a terminal state.
	ErrFeedbackClosed = errors.New("feedback loop already closed")
)
