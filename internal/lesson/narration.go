// Package lesson prepares the narrated lesson shown before a topic's quiz.
package lesson

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-tutor/internal/ai"
	"github.com/p-n-ai/pai-tutor/internal/curriculum"
)

var (
	headingMarks = regexp.MustCompile(`#{1,6}\s`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// CleanScript strips markdown so the text reads naturally through TTS.
func CleanScript(s string) string {
	s = strings.ReplaceAll(s, "*", "")
	s = headingMarks.ReplaceAllString(s, "")
	s = strings.NewReplacer("[", "", "]", "").Replace(s)
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Script is a generated narration. Fallback is true when generation failed
// and Text is empty.
type Script struct {
	Text     string
	Fallback bool
	Reason   string
}

// NarrationRequest describes the narration to write.
type NarrationRequest struct {
	Topic     curriculum.Topic
	TutorName string
	Language  language.Tag
	UserID    string
}

// Narrator writes lesson scripts through a completion provider.
type Narrator struct {
	completer ai.Completer
	timeout   time.Duration
}

// NewNarrator creates a narrator. A nil completer always falls back.
func NewNarrator(completer ai.Completer, timeout time.Duration) *Narrator {
	return &Narrator{completer: completer, timeout: timeout}
}

func narrationPrompt(tutor string, lang language.Tag) string {
	if tutor == "" {
		tutor = "a friendly tutor"
	}
	return fmt.Sprintf(`You are %s, an enthusiastic teacher creating engaging video lessons for children. Create a 2-3 minute narration script that:
- Starts with a warm greeting and introduction
- Explains the concept in simple, child-friendly language
- Uses relatable examples and analogies
- Includes 3-4 practice problems with explanations
- Encourages and motivates the student
- Ends with a summary and encouragement
Use plain text only, with no asterisks, hashes or markdown. Keep sentences short for text-to-speech.
Narrate in %s.`, tutor, LanguageName(lang))
}

// Generate returns a cleaned script, or a fallback Script if the provider
// fails, times out or returns nothing usable.
func (n *Narrator) Generate(ctx context.Context, req NarrationRequest) Script {
	if n.completer == nil {
		return Script{Fallback: true, Reason: "no narration provider configured"}
	}
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	resp, err := n.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: narrationPrompt(req.TutorName, req.Language)},
			{Role: "user", Content: fmt.Sprintf("Create a lesson narration for: %s. Description: %s", req.Topic.Title, req.Topic.Description)},
		},
		MaxTokens: 1200,
		Task:      ai.TaskNarration,
		UserID:    req.UserID,
	})
	var text string
	if err == nil {
		text = CleanScript(resp.Content)
		if text == "" {
			err = fmt.Errorf("empty narration")
		}
	}
	if err != nil {
		slog.Warn("narration failed, using demo timer",
			"topic_id", req.Topic.ID,
			"error", err,
		)
		return Script{Fallback: true, Reason: err.Error()}
	}
	return Script{Text: text}
}

// wordsPerSecond approximates child-paced TTS narration.
const wordsPerSecond = 2.2

// EstimateSeconds returns how long text takes to narrate, at least 30 seconds.
func EstimateSeconds(text string) int {
	words := len(strings.Fields(text))
	secs := int(float64(words)/wordsPerSecond + 0.5)
	return max(secs, 30)
}
