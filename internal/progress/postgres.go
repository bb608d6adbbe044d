package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
	"github.com/p-n-ai/pai-tutor/internal/platform/database"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetOrInit(ctx context.Context, userID string, topics []curriculum.Topic) (map[string]TopicProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	batch := &pgx.Batch{}
	for i, t := range topics {
		batch.Queue(
			`INSERT INTO user_multiplication_progress (user_id, topic_id, unlocked)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, topic_id) DO NOTHING`,
			userID, t.ID, i == 0,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return nil, database.Wrap("init progress", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, topic_id, video_completed, quiz_completed, quiz_score,
		        revision_completed, unlocked, completed_at
		 FROM user_multiplication_progress
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, database.Wrap("query progress", err)
	}
	defer rows.Close()

	out := make(map[string]TopicProgress, len(topics))
	for rows.Next() {
		var p TopicProgress
		if err := rows.Scan(
			&p.UserID,
			&p.TopicID,
			&p.VideoCompleted,
			&p.QuizCompleted,
			&p.QuizScore,
			&p.RevisionCompleted,
			&p.Unlocked,
			&p.CompletedAt,
		); err != nil {
			return nil, database.Wrap("scan progress", err)
		}
		out[p.TopicID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("query progress", err)
	}
	return out, nil
}

func (s *PostgresStore) RecordQuizPass(ctx context.Context, userID, topicID string, score int, nextTopicID string) error {
	if err := checkPass(score); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	err := database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE user_multiplication_progress
			 SET video_completed = TRUE, quiz_completed = TRUE, quiz_score = $3,
			     revision_completed = TRUE, completed_at = NOW()
			 WHERE user_id = $1 AND topic_id = $2`,
			userID, topicID, score,
		)
		if err != nil {
			return database.Wrap("record quiz pass", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("topic %s: %w", topicID, ErrNotInitialized)
		}

		if nextTopicID == "" {
			return nil
		}
		tag, err = tx.Exec(ctx,
			`UPDATE user_multiplication_progress SET unlocked = TRUE
			 WHERE user_id = $1 AND topic_id = $2`,
			userID, nextTopicID,
		)
		if err != nil {
			return database.Wrap("unlock next topic", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("topic %s: %w", nextTopicID, ErrNotInitialized)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotInitialized) {
		return database.Wrap("record quiz pass", err)
	}
	return err
}

func (s *PostgresStore) AppendAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	if err := a.Validate(); err != nil {
		return Attempt{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	// Two concurrent submissions may pick the same number; the unique key
	// rejects one and it retries with the next number.
	var lastErr error
	for try := 0; try < 3; try++ {
		a.ID = uuid.New()
		err := s.pool.QueryRow(ctx,
			`INSERT INTO quiz_attempts (id, user_id, topic_id, score, total_questions, passed, attempt_number)
			 SELECT $1, $2, $3, $4, $5, $6, COALESCE(MAX(attempt_number), 0) + 1
			 FROM quiz_attempts WHERE user_id = $2 AND topic_id = $3
			 RETURNING attempt_number, created_at`,
			a.ID, a.UserID, a.TopicID, a.Score, a.TotalQuestions, a.Passed,
		).Scan(&a.AttemptNumber, &a.CreatedAt)
		if err == nil {
			return a, nil
		}
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
			return Attempt{}, database.Wrap("append attempt", err)
		}
		lastErr = err
	}
	return Attempt{}, database.Wrap("append attempt", lastErr)
}

func (s *PostgresStore) Attempts(ctx context.Context, userID, topicID string) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, topic_id, score, total_questions, passed, attempt_number, created_at
		 FROM quiz_attempts
		 WHERE user_id = $1 AND ($2::text = '' OR topic_id = $2)
		 ORDER BY created_at ASC, attempt_number ASC`,
		userID, topicID,
	)
	if err != nil {
		return nil, database.Wrap("query attempts", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var createdAt time.Time
		if err := rows.Scan(&a.ID, &a.UserID, &a.TopicID, &a.Score, &a.TotalQuestions, &a.Passed, &a.AttemptNumber, &createdAt); err != nil {
			return nil, database.Wrap("scan attempt", err)
		}
		a.CreatedAt = createdAt
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("query attempts", err)
	}
	return out, nil
}

func (s *PostgresStore) Unlock(ctx context.Context, userID, topicID string) error {
	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE user_multiplication_progress SET unlocked = TRUE
		 WHERE user_id = $1 AND topic_id = $2`,
		userID, topicID,
	)
	if err != nil {
		return database.Wrap("unlock topic", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("topic %s: %w", topicID, ErrNotInitialized)
	}
	return nil
}
