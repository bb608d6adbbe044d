package avatar

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-tutor/internal/platform/database"
)

// PostgresStore is a PostgreSQL-backed Store over user_avatars.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Active(ctx context.Context, userID string) (Avatar, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	var a Avatar
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, character_name, character_type, tone, image_url, is_active, created_at
		 FROM user_avatars
		 WHERE user_id = $1 AND is_active
		 LIMIT 1`,
		userID,
	).Scan(&a.ID, &a.UserID, &a.CharacterName, &a.CharacterType, &a.Tone, &a.ImageURL, &a.IsActive, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Avatar{}, false, nil
	}
	if err != nil {
		return Avatar{}, false, database.Wrap("query active avatar", err)
	}
	return a, true, nil
}

func (s *PostgresStore) SetActive(ctx context.Context, a Avatar) (Avatar, error) {
	if err := a.Validate(); err != nil {
		return Avatar{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	a.ID = uuid.New()
	a.IsActive = true
	err := database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE user_avatars SET is_active = FALSE WHERE user_id = $1 AND is_active`,
			a.UserID,
		); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`INSERT INTO user_avatars (id, user_id, character_name, character_type, tone, image_url, is_active)
			 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			 RETURNING created_at`,
			a.ID, a.UserID, a.CharacterName, a.CharacterType, a.Tone, a.ImageURL,
		).Scan(&a.CreatedAt)
	})
	if err != nil {
		return Avatar{}, database.Wrap("set active avatar", err)
	}
	return a, nil
}
