package roadmap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-tutor/internal/platform/database"
)

// Analytics event types.
const (
	EventTopicSelected   = "topic_selected"
	EventLessonCompleted = "lesson_completed"
	EventQuizSubmitted   = "quiz_submitted"
	EventDoubtSubmitted  = "doubt_submitted"
	EventDoubtsResolved  = "doubts_resolved"
)

// Event is an analytics record of one roadmap transition.
type Event struct {
	UserID    string
	TopicID   string
	Type      string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger records analytics events. Failures never block a transition.
type EventLogger interface {
	LogEvent(ctx context.Context, event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(context.Context, Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(_ context.Context, event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

// Events returns a copy of everything logged so far.
func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// PostgresEventLogger inserts events into roadmap_events.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(ctx context.Context, event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	var topicID *string
	if event.TopicID != "" {
		topicID = &event.TopicID
	}
	if _, err := l.pool.Exec(ctx,
		`INSERT INTO roadmap_events (user_id, topic_id, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		event.UserID,
		topicID,
		event.Type,
		string(data),
		createdAt,
	); err != nil {
		return database.Wrap("insert event", err)
	}

	slog.Debug("event logged",
		"type", event.Type,
		"user_id", event.UserID,
		"topic_id", event.TopicID,
	)
	return nil
}

// Count returns how many events of eventType were logged for userID.
func (l *PostgresEventLogger) Count(ctx context.Context, userID, eventType string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, database.Timeout)
	defer cancel()

	var n int
	err := l.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM roadmap_events WHERE user_id = $1 AND event_type = $2`,
		userID, eventType,
	).Scan(&n)
	if err != nil {
		return 0, database.Wrap("count events", err)
	}
	return n, nil
}
