package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/p-n-ai/pai-tutor/internal/ai"
	"github.com/p-n-ai/pai-tutor/internal/curriculum"
)

// Reply is the tutor's answer to a doubt. Fallback is true when the
// completion provider was unavailable and a template was used.
type Reply struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
	Reason   string `json:"-"`
}

// Tutor is the persona voicing the reply.
type Tutor struct {
	Name string
	Tone string
}

// Responder produces replies to doubts.
type Responder struct {
	completer ai.Completer
	timeout   time.Duration
}

// NewResponder creates a responder. A nil completer always uses the template.
func NewResponder(completer ai.Completer, timeout time.Duration) *Responder {
	return &Responder{completer: completer, timeout: timeout}
}

// TemplateReply is the static reply used without a completion provider.
func TemplateReply(topicTitle string) string {
	return fmt.Sprintf("Great question! Let me explain %s in a different way:\n\n"+
		"Understanding %s is all about breaking it down into smaller steps. "+
		"Let's start with the basics and work our way up. "+
		"Would you like me to show you some practice examples?", topicTitle, topicTitle)
}

// Respond never fails; provider errors and timeouts yield the template.
func (r *Responder) Respond(ctx context.Context, userID string, topic curriculum.Topic, doubt string, tutor Tutor) Reply {
	if r.completer == nil {
		return Reply{Text: TemplateReply(topic.Title)}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	name := tutor.Name
	if name == "" {
		name = "your tutor"
	}
	tone := tutor.Tone
	if tone == "" {
		tone = "friendly"
	}
	system := fmt.Sprintf("You are %s, a %s maths tutor for children. "+
		"A learner just failed a quiz on %q (%s). Answer their doubt in under 120 words "+
		"with one worked example. Plain text, no markdown.", name, tone, topic.Title, topic.Description)

	resp, err := r.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: doubt},
		},
		MaxTokens:   400,
		Temperature: 0.5,
		Task:        ai.TaskDoubtResponse,
		UserID:      userID,
	})
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = fmt.Errorf("empty reply")
	}
	if err != nil {
		slog.Warn("doubt response failed, using template",
			"user_id", userID,
			"topic_id", topic.ID,
			"error", err,
		)
		return Reply{Text: TemplateReply(topic.Title), Fallback: true, Reason: err.Error()}
	}
	return Reply{Text: strings.TrimSpace(resp.Content)}
}
