package remediation

import (
	"context"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
)

// Flow captures doubts and closes them in batches.
type Flow struct {
	responder *Responder
	now       func() time.Time
}

// NewFlow creates a flow that answers doubts with responder.
func NewFlow(responder *Responder) *Flow {
	return &Flow{responder: responder, now: time.Now}
}

// Submit appends a new unresolved session, even if others are still open,
// and returns the tutor's reply. The reply is produced only after the
// session is stored.
func (f *Flow) Submit(ctx context.Context, store Store, userID string, topic curriculum.Topic, text string, mode Mode, tutor Tutor) (Session, Reply, error) {
	sess, err := newSession(userID, topic.ID, text, mode, f.now())
	if err != nil {
		return Session{}, Reply{}, err
	}
	sess, err = store.Create(ctx, sess)
	if err != nil {
		return Session{}, Reply{}, err
	}
	slog.Info("doubt submitted", "user_id", userID, "topic_id", topic.ID, "mode", string(sess.Mode))

	return sess, f.responder.Respond(ctx, userID, topic, sess.Text, tutor), nil
}

// Resolve closes every open session for (userID, topicID). It succeeds with
// zero sessions open.
func (f *Flow) Resolve(ctx context.Context, store Store, userID, topicID string) (int, error) {
	n, err := store.ResolveAll(ctx, userID, topicID)
	if err != nil {
		return 0, err
	}
	slog.Info("doubts resolved", "user_id", userID, "topic_id", topicID, "count", n)
	return n, nil
}
