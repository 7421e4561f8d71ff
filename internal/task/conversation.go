package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localrag/localrag/internal/llm"
	"github.com/localrag/localrag/internal/log"
)

// ConversationStore loads and appends the message history a conversation
// carries between tasks.
type ConversationStore interface {
	Load(ctx context.Context, conversationID string) ([]llm.Message, error)
	Save(ctx context.Context, conversationID string, msgs []llm.Message) error
}

// PostgresConversations stores conversation history in the
// conversation_messages table, ordered by an explicit sequence number.
type PostgresConversations struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresConversations(pool *pgxpool.Pool, logger *slog.Logger) *PostgresConversations {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresConversations{pool: pool, logger: logger}
}

// Load returns the full history of a conversation in send order. An unknown
// conversation yields an empty history, not an error.
func (c *PostgresConversations) Load(ctx context.Context, conversationID string) ([]llm.Message, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT role, content
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY seq`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	defer rows.Close()

	var msgs []llm.Message
	for rows.Next() {
		var m llm.Message
		if err := rows.Scan(&m.Role, &m.Text); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return msgs, nil
}

// Save appends messages to a conversation inside one transaction, continuing
// from the current highest sequence number.
func (c *PostgresConversations) Save(ctx context.Context, conversationID string, msgs []llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var next int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq), -1) + 1
		FROM conversation_messages
		WHERE conversation_id = $1`,
		conversationID).Scan(&next)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for i, m := range msgs {
		batch.Queue(`
			INSERT INTO conversation_messages (conversation_id, seq, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			conversationID, next+i, string(m.Role), m.Text, now)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}
