// Package task wraps the answering pipeline as an asynchronous unit of work
// with an observable lifecycle (submitted → working → completed/failed/
// canceled) and streamed output.
//
// Conversation state is owned here too: an explicit store keyed by
// conversation id, loaded before a turn and appended after it, never hidden
// inside the pipeline.
package task

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// State is a task lifecycle state.
type State string

const (
	StateSubmitted State = "submitted"
	StateWorking   State = "working"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

// validTransitions encodes the one-directional lifecycle. Cancellation is
// the only lateral path; nothing leaves a terminal state.
var validTransitions = map[State][]State{
	StateSubmitted: {StateWorking, StateCanceled, StateFailed},
	StateWorking:   {StateCompleted, StateFailed, StateCanceled},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is one asynchronous conversational unit of work.
type Task struct {
	ID             uuid.UUID
	ConversationID string
	State          State
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Sentinel errors for task operations. Check with errors.Is().
var (
	// ErrInvalidParams indicates the request lacks usable input content.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInternal is the catch-all surfaced to callers; internal failure
	// details are recorded on the task, not propagated past the shell.
	ErrInternal = errors.New("internal error")
)
