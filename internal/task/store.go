package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localrag/localrag/internal/log"
)

// Store persists tasks in Postgres. State transitions are guarded in SQL so
// that a task which has already reached a terminal state is never moved out
// of it, regardless of how many goroutines race on the same row.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

const taskCols = "id, conversation_id, state, failure_reason, created_at, updated_at"

// Get loads a task by id. Returns ErrTaskNotFound when no row exists.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+taskCols+" FROM tasks WHERE id = $1", id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Create inserts a new task in the submitted state.
func (s *Store) Create(ctx context.Context, t *Task) error {
	now := time.Now().UTC()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.State == "" {
		t.State = StateSubmitted
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, conversation_id, state, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.ConversationID, t.State, t.FailureReason, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Transition moves a task to a new state. The update only applies when the
// current state admits the transition, which makes it safe to call from a
// worker that may have lost a cancellation race: the returned bool reports
// whether the row actually changed.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, to State, reason string) (bool, error) {
	froms := statesAdmitting(to)
	if len(froms) == 0 {
		return false, fmt.Errorf("no state admits transition to %s", to)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET state = $2, failure_reason = $3, updated_at = $4
		WHERE id = $1 AND state = ANY($5)`,
		id, to, reason, time.Now().UTC(), froms)
	if err != nil {
		return false, fmt.Errorf("transition task: %w", err)
	}

	applied := tag.RowsAffected() > 0
	if !applied {
		s.logger.Debug("task transition not applied",
			"task_id", id, "to", to)
	}
	return applied, nil
}

// statesAdmitting returns every state from which a transition to the given
// state is valid.
func statesAdmitting(to State) []string {
	var out []string
	for from, targets := range validTransitions {
		for _, t := range targets {
			if t == to {
				out = append(out, string(from))
			}
		}
	}
	return out
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	if err := row.Scan(&t.ID, &t.ConversationID, &t.State, &t.FailureReason,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
