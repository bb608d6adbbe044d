package curriculum

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-tutor/internal/platform/database"
)

// PostgresCatalog reads the multiplication_topics table.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog creates a catalog backed by pool.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

func (c *PostgresCatalog) ListTopics(ctx context.Context) ([]Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	rows, err := c.pool.Query(ctx,
		`SELECT id, title, description, level, order_index, xp_reward, badge_icon, COALESCE(video_duration, 0)
		 FROM multiplication_topics
		 ORDER BY order_index ASC`)
	if err != nil {
		return nil, database.Wrap("list topics", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var t Topic
		var level string
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &level, &t.OrderIndex, &t.XPReward, &t.BadgeIcon, &t.VideoDuration); err != nil {
			return nil, database.Wrap("scan topic", err)
		}
		t.Level = Level(level)
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate topics", err)
	}

	if len(topics) == 0 {
		return nil, fmt.Errorf("catalog is empty: %w", ErrNotFound)
	}

	// Rows are already ordered; Sort re-checks shape at the boundary.
	return Sort(topics)
}

// Seed inserts topics that are not yet present. Existing rows are left untouched.
func (c *PostgresCatalog) Seed(ctx context.Context, topics []Topic) error {
	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	for _, t := range topics {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, err := c.pool.Exec(ctx,
			`INSERT INTO multiplication_topics (id, title, description, level, order_index, xp_reward, badge_icon, video_duration)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, 0))
			 ON CONFLICT (id) DO NOTHING`,
			t.ID, t.Title, t.Description, string(t.Level), t.OrderIndex, t.XPReward, t.BadgeIcon, t.VideoDuration,
		); err != nil {
			return database.Wrap("seed topic "+t.ID, err)
		}
	}
	return nil
}
