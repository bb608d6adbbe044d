package remediation

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-tutor/internal/platform/database"
)

// PostgresStore is a PostgreSQL-backed Store over doubt_sessions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, sess Session) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	err := s.pool.QueryRow(ctx,
		`INSERT INTO doubt_sessions (id, user_id, topic_id, doubt_text, resolution_type, resolved)
		 VALUES ($1, $2, $3, $4, $5, FALSE)
		 RETURNING created_at`,
		sess.ID, sess.UserID, sess.TopicID, sess.Text, string(sess.Mode),
	).Scan(&sess.CreatedAt)
	if err != nil {
		return Session{}, database.Wrap("create doubt session", err)
	}
	sess.Resolved = false
	return sess, nil
}

func (s *PostgresStore) ResolveAll(ctx context.Context, userID, topicID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE doubt_sessions SET resolved = TRUE
		 WHERE user_id = $1 AND topic_id = $2 AND NOT resolved`,
		userID, topicID,
	)
	if err != nil {
		return 0, database.Wrap("resolve doubt sessions", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) List(ctx context.Context, userID, topicID string) ([]Session, error) {
	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, topic_id, doubt_text, resolution_type, resolved, created_at
		 FROM doubt_sessions
		 WHERE user_id = $1 AND topic_id = $2
		 ORDER BY created_at ASC`,
		userID, topicID,
	)
	if err != nil {
		return nil, database.Wrap("query doubt sessions", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var mode string
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.TopicID, &sess.Text, &mode, &sess.Resolved, &sess.CreatedAt); err != nil {
			return nil, database.Wrap("scan doubt session", err)
		}
		sess.Mode = Mode(mode)
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("query doubt sessions", err)
	}
	return out, nil
}
