// Package roadmap drives each learner through the topic unlock state machine:
// lesson, quiz, and on failure doubt clearance before a retry.
package roadmap

import (
	"errors"
	"math"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
	"github.com/p-n-ai/pai-tutor/internal/lesson"
	"github.com/p-n-ai/pai-tutor/internal/progress"
	"github.com/p-n-ai/pai-tutor/internal/quiz"
	"github.com/p-n-ai/pai-tutor/internal/remediation"
)

// State is a roadmap screen.
type State string

const (
	StateRoadmap        State = "roadmap"
	StateVideoLesson    State = "video_lesson"
	StateQuiz           State = "quiz"
	StateDoubtClearance State = "doubt_clearance"
)

var (
	// ErrTopicLocked rejects selecting a topic that is not unlocked. The
	// session is left unchanged.
	ErrTopicLocked = errors.New("topic is locked")
	// ErrInvalidTransition rejects an action the current state does not allow.
	ErrInvalidTransition = errors.New("action not allowed in current state")
	// ErrLessonIncomplete rejects continuing to the quiz before the watch
	// threshold is reached.
	ErrLessonIncomplete = errors.New("lesson not watched far enough")
	// ErrBusy rejects an action while a lesson or quiz is still loading.
	ErrBusy = errors.New("previous action still loading")
	// ErrSuperseded is returned by an action whose slow step was abandoned
	// with Back before it finished. Its result is discarded.
	ErrSuperseded = errors.New("action cancelled before it finished")
)

// Pending names a slow step in progress.
type Pending string

const (
	PendingLesson Pending = "lesson"
	PendingQuiz   Pending = "quiz"
)

// TopicView is a topic with the learner's progress on it.
type TopicView struct {
	curriculum.Topic
	Unlocked  bool `json:"unlocked"`
	Completed bool `json:"completed"`
	Score     int  `json:"quiz_score"`
}

// Summary aggregates progress across the catalog.
type Summary struct {
	TotalXP   int `json:"total_xp"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// Summarize sums xp_reward over completed topics and counts completions.
func Summarize(topics []curriculum.Topic, rows map[string]progress.TopicProgress) Summary {
	s := Summary{Total: len(topics)}
	for _, t := range topics {
		if rows[t.ID].QuizCompleted {
			s.Completed++
			s.TotalXP += t.XPReward
		}
	}
	if s.Total > 0 {
		s.Percent = int(math.Round(100 * float64(s.Completed) / float64(s.Total)))
	}
	return s
}

// QuestionView is a question without its answer.
type QuestionView struct {
	Index   int      `json:"index"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// QuizView is the quiz screen.
type QuizView struct {
	AttemptNumber int            `json:"attempt_number"`
	Total         int            `json:"total"`
	Answered      int            `json:"answered"`
	Question      *QuestionView  `json:"question,omitempty"`
	LastFeedback  *quiz.Feedback `json:"last_feedback,omitempty"`
	Fallback      bool           `json:"fallback"`
}

// DoubtView is the doubt clearance screen.
type DoubtView struct {
	Result    quiz.Result           `json:"result"`
	Open      []remediation.Session `json:"open"`
	LastReply *remediation.Reply    `json:"last_reply,omitempty"`
}

// Snapshot is everything a client needs to render the current screen.
type Snapshot struct {
	State          State          `json:"state"`
	Pending        Pending        `json:"pending,omitempty"`
	LoadFailed     bool           `json:"load_failed,omitempty"`
	Guest          bool           `json:"guest"`
	NeedsAvatar    bool           `json:"needs_avatar"`
	Topics         []TopicView    `json:"topics"`
	Summary        Summary        `json:"summary"`
	CurrentTopic   string         `json:"current_topic,omitempty"`
	Lesson         *lesson.Lesson `json:"lesson,omitempty"`
	WatchedPercent int            `json:"watched_percent"`
	CanContinue    bool           `json:"can_continue"`
	Quiz           *QuizView      `json:"quiz,omitempty"`
	Doubt          *DoubtView     `json:"doubt,omitempty"`
	LastResult     *quiz.Result   `json:"last_result,omitempty"`
}

// topicViews pairs each topic with its row. Topics without a row are locked.
func topicViews(topics []curriculum.Topic, rows map[string]progress.TopicProgress) []TopicView {
	views := make([]TopicView, 0, len(topics))
	for _, t := range topics {
		p := rows[t.ID]
		views = append(views, TopicView{
			Topic:     t,
			Unlocked:  p.Unlocked,
			Completed: p.QuizCompleted,
			Score:     p.QuizScore,
		})
	}
	return views
}

// missingUnlocks lists topics that should be unlocked because their
// predecessor was passed but are still locked, which happens when an unlock
// write was lost. The first topic is always expected to be unlocked.
func missingUnlocks(topics []curriculum.Topic, rows map[string]progress.TopicProgress) []string {
	var ids []string
	for i, t := range topics {
		if rows[t.ID].Unlocked {
			continue
		}
		if i == 0 {
			ids = append(ids, t.ID)
			continue
		}
		prev := rows[topics[i-1].ID]
		if prev.QuizCompleted && quiz.Passed(prev.QuizScore) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
