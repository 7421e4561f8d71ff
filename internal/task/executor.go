package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/localrag/localrag/internal/answer"
	"github.com/localrag/localrag/internal/llm"
	"github.com/localrag/localrag/internal/log"
)

// Pipeline is the slice of the answering pipeline the executor drives.
type Pipeline interface {
	Run(ctx context.Context, messages []llm.Message, onFragment answer.FragmentFunc) (*answer.Turn, error)
}

// TaskStore is the persistence the executor needs for task lifecycle rows.
type TaskStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
	Create(ctx context.Context, t *Task) error
	Transition(ctx context.Context, id uuid.UUID, to State, reason string) (bool, error)
}

// Request submits one conversational turn for asynchronous execution.
// TaskID and ConversationID are optional; fresh ids are minted when absent.
type Request struct {
	TaskID         uuid.UUID
	ConversationID string
	Query          string
}

// Executor runs answering turns as observable tasks. Each running task has a
// live event queue registered here so cancellation can deliver the final
// status to whoever is streaming.
type Executor struct {
	tasks         TaskStore
	conversations ConversationStore
	pipeline      Pipeline
	logger        *slog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]*EventQueue
}

func NewExecutor(tasks TaskStore, conversations ConversationStore, pipeline Pipeline, logger *slog.Logger) (*Executor, error) {
	if tasks == nil {
		return nil, fmt.Errorf("task store is required")
	}
	if conversations == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Executor{
		tasks:         tasks,
		conversations: conversations,
		pipeline:      pipeline,
		logger:        logger,
		active:        make(map[uuid.UUID]*EventQueue),
	}, nil
}

// Execute validates the request, creates the task, and starts the turn on
// its own goroutine. The returned queue delivers status and artifact events
// until a terminal status closes it.
//
// Validation happens before any state transition: a rejected request leaves
// no task in a terminal state.
func (e *Executor) Execute(ctx context.Context, req Request) (*Task, *EventQueue, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil, fmt.Errorf("empty query: %w", ErrInvalidParams)
	}

	t, err := e.prepareTask(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	queue := NewEventQueue()
	e.register(t.ID, queue)

	queue.Enqueue(Event{
		Kind:   KindStatus,
		TaskID: t.ID,
		State:  StateSubmitted,
	})

	// Work outlives the submitting request: a departed streaming client
	// must not cancel a turn that is already underway.
	go e.run(context.WithoutCancel(ctx), t, req.Query, queue)

	return t, queue, nil
}

// prepareTask resolves the request to a fresh task row in the submitted
// state. A task id names exactly one turn: resubmitting an id that already
// exists is rejected whatever its state, so a running task never gets a
// second worker racing it for the same transitions.
func (e *Executor) prepareTask(ctx context.Context, req Request) (*Task, error) {
	if req.TaskID != uuid.Nil {
		t, err := e.tasks.Get(ctx, req.TaskID)
		switch {
		case err == nil:
			return nil, fmt.Errorf("task %s already exists (%s): %w", t.ID, t.State, ErrInvalidParams)
		case !isNotFound(err):
			return nil, fmt.Errorf("%v: %w", err, ErrInternal)
		}
	}

	t := &Task{
		ID:             req.TaskID,
		ConversationID: req.ConversationID,
		State:          StateSubmitted,
	}
	if t.ConversationID == "" {
		t.ConversationID = uuid.NewString()
	}
	if err := e.tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInternal)
	}
	return t, nil
}

// run executes one turn to a terminal state. Exactly one terminal status
// event reaches the queue per task; when a cancellation wins the transition
// race the canceling side delivers it and the worker's result is discarded.
func (e *Executor) run(ctx context.Context, t *Task, query string, queue *EventQueue) {
	applied, err := e.tasks.Transition(ctx, t.ID, StateWorking, "")
	if err != nil {
		e.fail(ctx, t.ID, queue, fmt.Errorf("starting task: %w", err))
		return
	}
	if !applied {
		// Canceled before work began; the canceling side owns the queue.
		return
	}

	queue.Enqueue(Event{
		Kind:    KindStatus,
		TaskID:  t.ID,
		State:   StateWorking,
		Message: "Processing your request.",
	})

	history, err := e.conversations.Load(ctx, t.ConversationID)
	if err != nil {
		e.fail(ctx, t.ID, queue, err)
		return
	}
	messages := append(history, llm.User(query))

	turn, err := e.pipeline.Run(ctx, messages, func(text string) error {
		queue.Enqueue(Event{
			Kind:   KindArtifact,
			TaskID: t.ID,
			Text:   text,
		})
		return nil
	})
	if err != nil {
		e.fail(ctx, t.ID, queue, err)
		return
	}

	applied, err = e.tasks.Transition(ctx, t.ID, StateCompleted, "")
	if err != nil {
		e.fail(ctx, t.ID, queue, fmt.Errorf("completing task: %w", err))
		return
	}
	if !applied {
		e.logger.Info("discarding result of canceled task", "task_id", t.ID)
		return
	}

	if err := e.conversations.Save(ctx, t.ConversationID, []llm.Message{
		llm.User(query),
		llm.Assistant(turn.Answer),
	}); err != nil {
		// The task already completed; the turn is just absent from the
		// next load.
		e.logger.Error("persisting conversation turn", "error", err,
			"conversation_id", t.ConversationID)
	}

	e.unregister(t.ID)
	queue.Enqueue(Event{
		Kind:   KindStatus,
		TaskID: t.ID,
		State:  StateCompleted,
		Final:  true,
	})
	queue.Close()
}

// fail moves the task to failed and delivers the final status, unless a
// cancellation already claimed the terminal transition.
func (e *Executor) fail(ctx context.Context, id uuid.UUID, queue *EventQueue, cause error) {
	e.logger.Error("task failed", "task_id", id, "error", cause)

	applied, err := e.tasks.Transition(ctx, id, StateFailed, cause.Error())
	if err != nil {
		e.logger.Error("recording task failure", "task_id", id, "error", err)
	}
	if err == nil && !applied {
		return
	}

	e.unregister(id)
	queue.Enqueue(Event{
		Kind:    KindStatus,
		TaskID:  id,
		State:   StateFailed,
		Message: cause.Error(),
		Final:   true,
	})
	queue.Close()
}

// Get returns the current state of a task.
func (e *Executor) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	return e.tasks.Get(ctx, id)
}

// Cancel requests cancellation of a task. Canceling a task that already
// reached a terminal state is a no-op returning its current state. When the
// cancellation applies, any live stream for the task receives the final
// canceled status.
func (e *Executor) Cancel(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := e.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.State.Terminal() {
		return t, nil
	}

	const reason = "Task cancelled by user"
	applied, err := e.tasks.Transition(ctx, id, StateCanceled, reason)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInternal)
	}
	if !applied {
		// The worker reached a terminal state first.
		return e.tasks.Get(ctx, id)
	}

	if queue := e.take(id); queue != nil {
		queue.Enqueue(Event{
			Kind:    KindStatus,
			TaskID:  id,
			State:   StateCanceled,
			Message: reason,
			Final:   true,
		})
		queue.Close()
	}

	return e.tasks.Get(ctx, id)
}

func (e *Executor) register(id uuid.UUID, queue *EventQueue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[id] = queue
}

func (e *Executor) unregister(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, id)
}

// take removes and returns the live queue for a task, if any.
func (e *Executor) take(id uuid.UUID) *EventQueue {
	e.mu.Lock()
	defer e.mu.Unlock()
	queue := e.active[id]
	delete(e.active, id)
	return queue
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}
