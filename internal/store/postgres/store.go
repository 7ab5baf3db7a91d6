package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miluhq/milu/internal/model/message"
)

// Postgres error codes the messages schema can raise.
const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeNotNullViolation    = "23502"
)

// Store persists messages in the messages table of a PostgreSQL database.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database behind the connection string and verifies
// the connection with a ping.
func New(ctx context.Context, connString string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Create inserts a message, assigning a UUID when the id is empty.
func (s *Store) Create(ctx context.Context, msg message.Message) (message.Message, error) {
	if msg.Role == "" {
		return message.Message{}, fmt.Errorf("%w: role is required", message.ErrConstraint)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, role, content, parent_id, status, external_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.Role, msg.Content, msg.ParentID, msg.Status, msg.ExternalID)
	if err != nil {
		return message.Message{}, constraintOr(err, "failed to insert message")
	}

	return msg, nil
}

// Get returns the message with the given id.
func (s *Store) Get(ctx context.Context, id string) (message.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, role, content, parent_id, status, external_id
		FROM messages
		WHERE id = $1
	`, id)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return message.Message{}, message.ErrNotFound
	}
	if err != nil {
		return message.Message{}, fmt.Errorf("failed to read message: %w", err)
	}
	return msg, nil
}

// Update mutates the mutable fields of an existing message.
func (s *Store) Update(ctx context.Context, id string, in message.UpdateInput) (message.Message, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE messages
		SET content     = COALESCE($2, content),
		    status      = COALESCE($3, status),
		    external_id = COALESCE($4, external_id)
		WHERE id = $1
		RETURNING id, role, content, parent_id, status, external_id
	`, id, in.Content, in.Status, in.ExternalID)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return message.Message{}, message.ErrNotFound
	}
	if err != nil {
		return message.Message{}, fmt.Errorf("failed to update message: %w", err)
	}
	return msg, nil
}

// ListChildren returns the messages whose parent is id, in insertion order.
func (s *Store) ListChildren(ctx context.Context, id string) ([]message.Message, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check message: %w", err)
	}
	if !exists {
		return nil, message.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, role, content, parent_id, status, external_id
		FROM messages
		WHERE parent_id = $1
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListRoots returns the messages without a parent, in insertion order.
func (s *Store) ListRoots(ctx context.Context) ([]message.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, content, parent_id, status, external_id
		FROM messages
		WHERE parent_id IS NULL
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// Delete removes a message. The self-referencing foreign key rejects the
// delete while children still point at the message.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return constraintOr(err, "failed to delete message")
	}
	if tag.RowsAffected() == 0 {
		return message.ErrNotFound
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func scanMessage(row pgx.Row) (message.Message, error) {
	var msg message.Message
	err := row.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.ParentID, &msg.Status, &msg.ExternalID)
	return msg, err
}

func collectMessages(rows pgx.Rows) ([]message.Message, error) {
	out := make([]message.Message, 0, 8)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return out, nil
}

// constraintOr maps schema violations onto message.ErrConstraint and
// wraps everything else with the given context.
func constraintOr(err error, context string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeForeignKeyViolation, codeUniqueViolation, codeNotNullViolation:
			return fmt.Errorf("%w: %s", message.ErrConstraint, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", context, err)
}
