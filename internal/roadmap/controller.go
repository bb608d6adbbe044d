package roadmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-tutor/internal/avatar"
	"github.com/p-n-ai/pai-tutor/internal/curriculum"
	"github.com/p-n-ai/pai-tutor/internal/identity"
	"github.com/p-n-ai/pai-tutor/internal/lesson"
	"github.com/p-n-ai/pai-tutor/internal/platform/metrics"
	"github.com/p-n-ai/pai-tutor/internal/progress"
	"github.com/p-n-ai/pai-tutor/internal/quiz"
	"github.com/p-n-ai/pai-tutor/internal/remediation"
)

// Publisher pushes snapshots to a session's live connections.
type Publisher interface {
	Publish(key string, payload any)
}

// Forgetter drops everything a store holds for one id.
type Forgetter interface {
	Forget(ctx context.Context, id string) error
}

// Toucher extends how long a store keeps an id's data.
type Toucher interface {
	Touch(ctx context.Context, id string) error
}

// Config holds dependencies for the controller. Nil stores and generators
// default to in-memory and static implementations.
type Config struct {
	Catalog       curriculum.Catalog
	Progress      progress.Store
	GuestProgress progress.Store
	Doubts        remediation.Store
	GuestDoubts   remediation.Store
	Avatars       avatar.Store
	Quizzes       *quiz.Source
	Lessons       *lesson.Deliverer
	Remediation   *remediation.Flow
	Events        EventLogger
	Publisher     Publisher
	Metrics       *metrics.Metrics
	QuestionCount int // questions per quiz (default 5)
}

// Controller runs one state machine per identity.
type Controller struct {
	catalog       curriculum.Catalog
	progress      progress.Store
	guestProgress progress.Store
	doubts        remediation.Store
	guestDoubts   remediation.Store
	avatars       avatar.Store
	quizzes       *quiz.Source
	lessons       *lesson.Deliverer
	flow          *remediation.Flow
	events        EventLogger
	publisher     Publisher
	metrics       *metrics.Metrics
	questions     int
	now           func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	renders sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one identity's state machine. All fields are guarded by mu.
type session struct {
	mu sync.Mutex

	id          identity.Identity
	state       State
	loaded      bool
	topics      []curriculum.Topic
	rows        map[string]progress.TopicProgress
	needsAvatar bool
	tutor       avatar.Avatar
	lastSeen    time.Time

	topic         curriculum.Topic
	lesson        *lesson.Lesson
	watched       int
	run           *quiz.Run
	attemptNumber int
	quizFallback  bool
	feedback      *quiz.Feedback
	recorded      *progress.Attempt // attempt already stored for the current run
	result        *quiz.Result
	open          []remediation.Session
	reply         *remediation.Reply

	epoch       uint64
	cancelVideo context.CancelFunc

	// pending names the slow step running with mu released; op identifies
	// it so a cancelled step can tell it lost.
	pending Pending
	op      uint64
}

// NewController creates a controller.
func NewController(cfg Config) *Controller {
	c := &Controller{
		catalog:       cfg.Catalog,
		progress:      cfg.Progress,
		guestProgress: cfg.GuestProgress,
		doubts:        cfg.Doubts,
		guestDoubts:   cfg.GuestDoubts,
		avatars:       cfg.Avatars,
		quizzes:       cfg.Quizzes,
		lessons:       cfg.Lessons,
		flow:          cfg.Remediation,
		events:        cfg.Events,
		publisher:     cfg.Publisher,
		metrics:       cfg.Metrics,
		questions:     cfg.QuestionCount,
		now:           time.Now,
		sessions:      make(map[string]*session),
	}
	if c.catalog == nil {
		c.catalog = &curriculum.Static{}
	}
	if c.progress == nil {
		c.progress = progress.NewMemoryStore()
	}
	if c.guestProgress == nil {
		c.guestProgress = progress.NewMemoryStore()
	}
	if c.doubts == nil {
		c.doubts = remediation.NewMemoryStore()
	}
	if c.guestDoubts == nil {
		c.guestDoubts = remediation.NewMemoryStore()
	}
	if c.avatars == nil {
		c.avatars = avatar.NewMemoryStore()
	}
	if c.quizzes == nil {
		c.quizzes = quiz.NewSource(nil, quiz.NewStaticGenerator(uint64(time.Now().UnixNano())), 0)
	}
	if c.lessons == nil {
		c.lessons = lesson.NewDeliverer(lesson.NewNarrator(nil, 0), nil, 0, 300)
	}
	if c.flow == nil {
		c.flow = remediation.NewFlow(remediation.NewResponder(nil, 0))
	}
	if c.events == nil {
		c.events = NopEventLogger{}
	}
	if c.questions <= 0 {
		c.questions = quiz.DefaultQuestionCount
	}
	c.baseCtx, c.stop = context.WithCancel(context.Background())
	return c
}

// Close cancels in-flight video renders and waits for them to return.
func (c *Controller) Close() {
	c.stop()
	c.renders.Wait()
}

func (c *Controller) session(id identity.Identity) *session {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id.Key()]
	if !ok {
		s = &session{id: id, state: StateRoadmap}
		c.sessions[id.Key()] = s
	}
	s.lastSeen = c.now()
	return s
}

// enter returns the session for id. A guest's stored progress is kept alive
// for as long as the guest keeps making requests.
func (c *Controller) enter(ctx context.Context, id identity.Identity) *session {
	s := c.session(id)
	if id.Guest {
		if t, ok := c.guestProgress.(Toucher); ok {
			if err := t.Touch(ctx, id.UserID); err != nil {
				slog.Warn("extending guest progress failed", "user_id", id.UserID, "error", err)
			}
		}
	}
	return s
}

// begin marks s busy with a slow step and publishes that, so watchers see
// the loading state. Pass the token to finish when the step returns.
func (c *Controller) begin(s *session, p Pending) uint64 {
	s.op++
	s.pending = p
	c.publish(s)
	return s.op
}

// finish clears the busy mark. It reports false if the step was cancelled
// while it ran, in which case its result must be dropped.
func (s *session) finish(token uint64) bool {
	if s.op != token {
		return false
	}
	s.pending = ""
	return true
}

// cancelPending abandons a running slow step.
func (s *session) cancelPending() bool {
	if s.pending == "" {
		return false
	}
	s.op++
	s.pending = ""
	return true
}

// ready checks that s is in want and not busy.
func (s *session) ready(want State, action string) error {
	if s.pending != "" {
		return fmt.Errorf("%s while %s is loading: %w", action, s.pending, ErrBusy)
	}
	if s.state != want {
		return fmt.Errorf("%s from %s: %w", action, s.state, ErrInvalidTransition)
	}
	return nil
}

// outside runs fn with s.mu released.
func outside(s *session, fn func()) {
	s.mu.Unlock()
	defer s.mu.Lock()
	fn()
}

func (c *Controller) progressStore(id identity.Identity) progress.Store {
	if id.Guest {
		return c.guestProgress
	}
	return c.progress
}

func (c *Controller) doubtStore(id identity.Identity) remediation.Store {
	if id.Guest {
		return c.guestDoubts
	}
	return c.doubts
}

// Load reads the catalog and the learner's progress, creating progress rows
// on first visit and repairing any unlock a lost write left behind. The
// current screen is kept. On failure the snapshot has LoadFailed set and no
// topics.
func (c *Controller) Load(ctx context.Context, id identity.Identity) (Snapshot, error) {
	s := c.enter(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.load(ctx, s); err != nil {
		return s.failed(), err
	}
	return s.snapshot(), nil
}

func (c *Controller) load(ctx context.Context, s *session) error {
	uid := s.id.UserID
	topics, err := c.catalog.ListTopics(ctx)
	if err != nil {
		slog.Error("roadmap load failed", "user_id", uid, "error", err)
		return fmt.Errorf("listing topics: %w", err)
	}

	store := c.progressStore(s.id)
	rows, err := store.GetOrInit(ctx, uid, topics)
	if err != nil {
		slog.Error("roadmap load failed", "user_id", uid, "error", err)
		return fmt.Errorf("loading progress: %w", err)
	}
	for _, topicID := range missingUnlocks(topics, rows) {
		if err := store.Unlock(ctx, uid, topicID); err != nil {
			slog.Error("roadmap unlock repair failed", "user_id", uid, "topic_id", topicID, "error", err)
			return fmt.Errorf("repairing unlock: %w", err)
		}
		p := rows[topicID]
		p.Unlocked = true
		rows[topicID] = p
		slog.Warn("repaired missing unlock", "user_id", uid, "topic_id", topicID)
	}

	s.topics = topics
	s.rows = rows
	s.loaded = true
	c.loadTutor(ctx, s)
	return nil
}

// loadTutor picks the persona. Guests and lookup failures get the default.
func (c *Controller) loadTutor(ctx context.Context, s *session) {
	s.tutor = avatar.Default
	s.needsAvatar = false
	if s.id.Guest {
		return
	}

	a, ok, err := c.avatars.Active(ctx, s.id.UserID)
	switch {
	case err != nil:
		slog.Warn("avatar lookup failed, using default persona", "user_id", s.id.UserID, "error", err)
	case !ok:
		s.needsAvatar = true
	default:
		s.tutor = a
	}
}

func (c *Controller) ensureLoaded(ctx context.Context, s *session) error {
	if s.loaded {
		return nil
	}
	return c.load(ctx, s)
}

// Snapshot returns the current screen, loading the roadmap if needed.
func (c *Controller) Snapshot(ctx context.Context, id identity.Identity) (Snapshot, error) {
	s := c.enter(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.ensureLoaded(ctx, s); err != nil {
		return s.failed(), err
	}
	return s.snapshot(), nil
}

// History returns the learner's quiz attempts across all topics, oldest first.
func (c *Controller) History(ctx context.Context, id identity.Identity) ([]progress.Attempt, error) {
	attempts, err := c.progressStore(id).Attempts(ctx, id.UserID, "")
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	return attempts, nil
}

// SelectTopic opens the lesson for an unlocked topic. Selecting a locked
// topic returns ErrTopicLocked with the roadmap unchanged.
func (c *Controller) SelectTopic(ctx context.Context, id identity.Identity, topicID string, lang language.Tag) (Snapshot, error) {
	s := c.enter(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.ensureLoaded(ctx, s); err != nil {
		return s.failed(), err
	}
	if err := s.ready(StateRoadmap, "select topic"); err != nil {
		return s.snapshot(), err
	}
	t, _, err := curriculum.Find(s.topics, topicID)
	if err != nil {
		return s.snapshot(), err
	}
	if !s.rows[t.ID].Unlocked {
		slog.Info("locked topic selected", "user_id", id.UserID, "topic_id", t.ID)
		return s.snapshot(), fmt.Errorf("%s: %w", t.ID, ErrTopicLocked)
	}

	tutor := lesson.Tutor{Name: s.tutor.CharacterName, ImageURL: s.tutor.ImageURL}
	token := c.begin(s, PendingLesson)
	var l lesson.Lesson
	outside(s, func() {
		l = c.lessons.Prepare(ctx, lesson.Request{
			Topic:    t,
			Tutor:    tutor,
			Language: lang,
			UserID:   id.UserID,
		})
	})
	if !s.finish(token) {
		return s.snapshot(), fmt.Errorf("select topic %s: %w", t.ID, ErrSuperseded)
	}
	if l.NarrationFallback {
		c.metrics.Fallback("narration")
	}

	c.clearTopic(s)
	s.state = StateVideoLesson
	s.topic = t
	s.lesson = &l
	s.result = nil
	if l.VideoPending {
		c.startVideo(s, l, tutor)
	}

	slog.Info("topic selected", "user_id", id.UserID, "topic_id", t.ID, "state", string(s.state))
	c.logEvent(ctx, s, EventTopicSelected, map[string]any{
		"narration_fallback": l.NarrationFallback,
		"language":           l.Language,
	})
	return c.publish(s), nil
}

// startVideo renders the tutor video in the background and publishes the
// lesson once it is ready. A render is dropped if the learner has moved to
// another topic since it started.
func (c *Controller) startVideo(s *session, l lesson.Lesson, tutor lesson.Tutor) {
	ctx, cancel := context.WithCancel(c.baseCtx)
	s.cancelVideo = cancel
	epoch := s.epoch

	c.renders.Add(1)
	go func() {
		defer c.renders.Done()
		defer cancel()

		v := c.lessons.RenderVideo(ctx, l, tutor)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch || s.lesson == nil {
			return
		}
		s.lesson.VideoPending = false
		s.lesson.VideoURL = v.URL
		s.lesson.VideoFallback = v.Fallback
		if v.Fallback {
			c.metrics.Fallback("video")
		}
		c.publish(s)
	}()
}

// ReportProgress records how much of the lesson has been watched. Progress
// only moves forward and is clamped to 0..100.
func (c *Controller) ReportProgress(ctx context.Context, id identity.Identity, percent int) (Snapshot, error) {
	s := c.enter(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(StateVideoLesson, "report progress"); err != nil {
		return s.snapshot(), err
	}
	percent = min(max(percent, 0), 100)
	if percent > s.watched {
		s.watched = percent
	}
	return c.publish(s), nil
}

// ContinueToQuiz starts a fresh quiz once the watch threshold is reached.
func (c *Controller) ContinueToQuiz(ctx context.Context, id identity.Identity) (Snapshot, error) {
	s := c.enter(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(StateVideoLesson, "continue"); err != nil {
		return s.snapshot(), err
	}
	if s.watched < lesson.WatchThreshold {
		return s.snapshot(), fmt.Errorf("watched %d%%, need %d%%: %w", s.watched, lesson.WatchThreshold, ErrLessonIncomplete)
	}

	topic := s.topic
	token := c.begin(s, PendingQuiz)
	var (
		q   quizStart
		err error
	)
	outside(s, func() { q, err = c.prepareQuiz(ctx, id, topic) })
	if !s.finish(token) {
		return s.snapshot(), fmt.Errorf("continue to quiz: %w", ErrSuperseded)
	}
	if err != nil {
		return c.publish(s), err
	}
	c.commitQuiz(s, q)

	c.logEvent(ctx, s, EventLessonCompleted, map[string]any{"watched_percent": s.watched})
	return c.publish(s), nil
}

// quizStart is a generated quiz not yet applied to a session.
type quizStart struct {
	run           *quiz.Run
	attemptNumber int
	fallback      bool
}

// prepareQuiz does the fallible work of starting a quiz on topic without
// touching the session.
func (c *Controller) prepareQuiz(ctx context.Context, id identity.Identity, topic curriculum.Topic) (quizStart, error) {
	uid := id.UserID
	attempts, err := c.progressStore(id).Attempts(ctx, uid, topic.ID)
	if err != nil {
		slog.Error("listing attempts failed", "user_id", uid, "topic_id", topic.ID, "error", err)
		return quizStart{}, fmt.Errorf("listing attempts: %w", err)
	}

	set, err := c.quizzes.Generate(ctx, quiz.Request{Topic: topic, Count: c.questions, UserID: uid})
	if err != nil {
		return quizStart{}, fmt.Errorf("generating quiz: %w", err)
	}
	run, err := quiz.NewRun(set.Questions)
	if err != nil {
		return quizStart{}, fmt.Errorf("starting quiz: %w", err)
	}
	return quizStart{run: run, attemptNumber: len(attempts) + 1, fallback: set.Fallback}, nil
}

// commitQuiz moves s into the prepared quiz.
func (c *Controller) commitQuiz(s *session, q quizStart) {
	if q.fallback {
		c.metrics.Fallback("quiz")
	}
	s.state = StateQuiz
	s.run = q.run
	s.attemptNumber = q.attemptNumber
	s.quizFallback = q.fallback
	s.feedback = nil
	s.recorded = nil
	slog.Info("quiz started", "user_id", s.id.UserID, "topic_id", s.topic.ID, "attempt", s.attemptNumber)
}

// Answer records an answer to the current question and returns feedback.
func (c *Controller) Answer(ctx context.Context, id identity.Identity, option int) (Snapshot, quiz.Feedback, error) {
	s := c.enter(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(StateQuiz, "answer"); err != nil {
		return s.snapshot(), quiz.Feedback{}, err
	}
	fb, err := s.run.Answer(option)
	if err != nil {
		return s.snapshot(), quiz.Feedback{}, err
	}
	s.feedback = &fb
	return c.publish(s), fb, nil
}

// Submit scores the finished quiz. The attempt is stored before any progress
// change. A pass records completion, unlocks the next topic and returns to
// the roadmap; a fail moves to doubt clearance. If a write fails the session
// stays in the quiz and Submit may be retried without a second attempt row.
func (c *Controller) Submit(ctx context.Context, id identity.Identity) (Snapshot, error) {
	s := c.enter(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(StateQuiz, "submit"); err != nil {
		return s.snapshot(), err
	}
	res, err := s.run.Result()
	if err != nil {
		return s.snapshot(), err
	}

	uid := id.UserID
	store := c.progressStore(id)
	if s.recorded == nil {
		a, err := store.AppendAttempt(ctx, progress.Attempt{
			UserID:         uid,
			TopicID:        s.topic.ID,
			Score:          res.Score,
			TotalQuestions: res.Total,
			Passed:         res.Passed,
		})
		if err != nil {
			slog.Error("recording attempt failed", "user_id", uid, "topic_id", s.topic.ID, "error", err)
			return s.snapshot(), fmt.Errorf("recording attempt: %w", err)
		}
		s.recorded = &a
	}

	if res.Passed {
		var nextID string
		if next, ok := curriculum.Next(s.topics, s.topic.ID); ok {
			nextID = next.ID
		}
		err := store.RecordQuizPass(ctx, uid, s.topic.ID, res.Score, nextID)
		if errors.Is(err, progress.ErrNotInitialized) {
			slog.Warn("stored progress missing, restoring from session", "user_id", uid, "topic_id", s.topic.ID)
			if err = c.restore(ctx, s); err == nil {
				err = store.RecordQuizPass(ctx, uid, s.topic.ID, res.Score, nextID)
			}
		}
		if err != nil {
			slog.Error("recording pass failed", "user_id", uid, "topic_id", s.topic.ID, "error", err)
			return s.snapshot(), fmt.Errorf("recording pass: %w", err)
		}
		c.applyPass(s, res.Score, nextID)
	}

	c.metrics.QuizSubmitted(res.Score, res.Passed)
	slog.Info("quiz submitted",
		"user_id", uid,
		"topic_id", s.topic.ID,
		"score", res.Score,
		"passed", res.Passed,
		"attempt", s.recorded.AttemptNumber,
	)
	c.logEvent(ctx, s, EventQuizSubmitted, map[string]any{
		"score":          res.Score,
		"passed":         res.Passed,
		"attempt_number": s.recorded.AttemptNumber,
		"fallback":       s.quizFallback,
	})

	if res.Passed {
		c.clearTopic(s)
		s.state = StateRoadmap
	} else {
		s.run = nil
		s.feedback = nil
		s.recorded = nil
		s.open = nil
		s.reply = nil
		s.state = StateDoubtClearance
	}
	s.result = &res
	return c.publish(s), nil
}

// restore writes the session's view of progress back into a store that has
// lost it, as when a guest's entry expires during a visit.
func (c *Controller) restore(ctx context.Context, s *session) error {
	store := c.progressStore(s.id)
	uid := s.id.UserID
	if _, err := store.GetOrInit(ctx, uid, s.topics); err != nil {
		return fmt.Errorf("restoring progress: %w", err)
	}
	for _, t := range s.topics {
		row := s.rows[t.ID]
		if row.Unlocked {
			if err := store.Unlock(ctx, uid, t.ID); err != nil {
				return fmt.Errorf("restoring unlock of %s: %w", t.ID, err)
			}
		}
		if row.QuizCompleted {
			if err := store.RecordQuizPass(ctx, uid, t.ID, row.QuizScore, ""); err != nil {
				return fmt.Errorf("restoring pass of %s: %w", t.ID, err)
			}
		}
	}
	return nil
}

// applyPass mirrors a committed RecordQuizPass in the session's rows.
func (c *Controller) applyPass(s *session, score int, nextID string) {
	now := c.now()
	p := s.rows[s.topic.ID]
	p.VideoCompleted = true
	p.QuizCompleted = true
	p.QuizScore = score
	p.RevisionCompleted = true
	p.CompletedAt = &now
	s.rows[s.topic.ID] = p

	if nextID == "" {
		return
	}
	next := s.rows[nextID]
	if !next.Unlocked {
		c.metrics.TopicUnlocked()
		slog.Info("topic unlocked", "user_id", s.id.UserID, "topic_id", nextID)
	}
	next.Unlocked = true
	s.rows[nextID] = next
}

// SubmitDoubt stores a doubt about the failed topic and returns the tutor's
// reply. Earlier open doubts stay open.
func (c *Controller) SubmitDoubt(ctx context.Context, id identity.Identity, text string, mode remediation.Mode) (Snapshot, remediation.Reply, error) {
	s := c.enter(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(StateDoubtClearance, "submit doubt"); err != nil {
		return s.snapshot(), remediation.Reply{}, err
	}
	sess, reply, err := c.flow.Submit(ctx, c.doubtStore(id), id.UserID, s.topic, text, mode, remediation.Tutor{
		Name: s.tutor.CharacterName,
		Tone: s.tutor.Tone,
	})
	if err != nil {
		return s.snapshot(), remediation.Reply{}, err
	}

	s.open = append(s.open, sess)
	s.reply = &reply
	c.metrics.DoubtSubmitted(string(sess.Mode))
	if reply.Fallback {
		c.metrics.Fallback("doubt")
	}
	c.logEvent(ctx, s, EventDoubtSubmitted, map[string]any{
		"mode":     string(sess.Mode),
		"fallback": reply.Fallback,
	})
	return c.publish(s), reply, nil
}

// Resolve closes every open doubt for the topic and starts a fresh quiz.
// Resolving with no doubts submitted is allowed. The quiz is generated
// before any doubt is closed, so a failure leaves both untouched.
func (c *Controller) Resolve(ctx context.Context, id identity.Identity) (Snapshot, error) {
	s := c.enter(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(StateDoubtClearance, "resolve"); err != nil {
		return s.snapshot(), err
	}

	topic := s.topic
	token := c.begin(s, PendingQuiz)
	var (
		q   quizStart
		err error
	)
	outside(s, func() { q, err = c.prepareQuiz(ctx, id, topic) })
	if !s.finish(token) {
		return s.snapshot(), fmt.Errorf("resolve: %w", ErrSuperseded)
	}
	if err != nil {
		return c.publish(s), err
	}

	n, err := c.flow.Resolve(ctx, c.doubtStore(id), id.UserID, topic.ID)
	if err != nil {
		return c.publish(s), err
	}
	c.commitQuiz(s, q)
	s.open = nil
	s.reply = nil

	c.logEvent(ctx, s, EventDoubtsResolved, map[string]any{
		"resolved":       n,
		"attempt_number": s.attemptNumber,
	})
	return c.publish(s), nil
}

// Back leaves the current screen, discarding its unsaved state: the quiz
// returns to its lesson, the lesson and doubt clearance return to the roadmap.
// While a lesson or quiz is still loading, Back abandons it and stays on the
// screen it was started from.
func (c *Controller) Back(ctx context.Context, id identity.Identity) (Snapshot, error) {
	s := c.enter(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelPending() {
		slog.Info("loading abandoned", "user_id", id.UserID, "state", string(s.state))
		return c.publish(s), nil
	}
	switch s.state {
	case StateQuiz:
		s.run = nil
		s.feedback = nil
		s.recorded = nil
		s.state = StateVideoLesson
		if s.lesson == nil {
			c.clearTopic(s)
			s.state = StateRoadmap
		}
	case StateVideoLesson, StateDoubtClearance:
		c.clearTopic(s)
		s.state = StateRoadmap
	default:
		return s.snapshot(), fmt.Errorf("back from %s: %w", s.state, ErrInvalidTransition)
	}
	return c.publish(s), nil
}

// clearTopic drops everything tied to the current topic and invalidates any
// video render in flight.
func (c *Controller) clearTopic(s *session) {
	if s.cancelVideo != nil {
		s.cancelVideo()
		s.cancelVideo = nil
	}
	s.epoch++
	s.topic = curriculum.Topic{}
	s.lesson = nil
	s.watched = 0
	s.run = nil
	s.attemptNumber = 0
	s.quizFallback = false
	s.feedback = nil
	s.recorded = nil
	s.open = nil
	s.reply = nil
}

// Sweep ends sessions idle for longer than idle. Guest progress and doubts
// are discarded with them. It returns how many sessions ended.
func (c *Controller) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := c.now().Add(-idle)

	c.mu.Lock()
	var expired []*session
	for key, s := range c.sessions {
		if s.lastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(c.sessions, key)
		}
	}
	c.mu.Unlock()

	for _, s := range expired {
		s.mu.Lock()
		if s.cancelVideo != nil {
			s.cancelVideo()
		}
		id := s.id
		s.mu.Unlock()

		if !id.Guest {
			continue
		}
		for _, store := range []any{c.guestProgress, c.guestDoubts} {
			if f, ok := store.(Forgetter); ok {
				if err := f.Forget(ctx, id.UserID); err != nil {
					slog.Warn("discarding guest data failed", "user_id", id.UserID, "error", err)
				}
			}
		}
		slog.Debug("guest session ended", "user_id", id.UserID)
	}
	return len(expired)
}

// RunJanitor calls Sweep every interval until ctx is done.
func (c *Controller) RunJanitor(ctx context.Context, idle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(ctx, idle); n > 0 {
				slog.Info("idle sessions ended", "count", n)
			}
		}
	}
}

func (c *Controller) publish(s *session) Snapshot {
	snap := s.snapshot()
	if c.publisher != nil {
		c.publisher.Publish(s.id.Key(), snap)
	}
	return snap
}

// logEvent records analytics for signed-in learners. Guest sessions are
// local-only and leave no trace.
func (c *Controller) logEvent(ctx context.Context, s *session, eventType string, data map[string]any) {
	if s.id.Guest {
		return
	}
	if err := c.events.LogEvent(ctx, Event{
		UserID:  s.id.UserID,
		TopicID: s.topic.ID,
		Type:    eventType,
		Data:    data,
	}); err != nil {
		slog.Warn("event logging failed", "type", eventType, "user_id", s.id.UserID, "error", err)
	}
}

func (s *session) failed() Snapshot {
	return Snapshot{State: s.state, LoadFailed: true, Guest: s.id.Guest}
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		State:       s.state,
		Pending:     s.pending,
		Guest:       s.id.Guest,
		NeedsAvatar: s.needsAvatar,
		Topics:      topicViews(s.topics, s.rows),
		Summary:     Summarize(s.topics, s.rows),
	}

	switch s.state {
	case StateRoadmap:
		snap.LastResult = s.result
	case StateVideoLesson:
		snap.CurrentTopic = s.topic.ID
		if s.lesson != nil {
			l := *s.lesson
			snap.Lesson = &l
		}
		snap.WatchedPercent = s.watched
		snap.CanContinue = s.watched >= lesson.WatchThreshold
	case StateQuiz:
		snap.CurrentTopic = s.topic.ID
		qv := &QuizView{
			AttemptNumber: s.attemptNumber,
			Total:         s.run.Total(),
			Answered:      s.run.Answered(),
			LastFeedback:  s.feedback,
			Fallback:      s.quizFallback,
		}
		if i, q, ok := s.run.Current(); ok {
			qv.Question = &QuestionView{Index: i, Prompt: q.Prompt, Options: append([]string(nil), q.Options...)}
		}
		snap.Quiz = qv
	case StateDoubtClearance:
		snap.CurrentTopic = s.topic.ID
		dv := &DoubtView{Open: append([]remediation.Session{}, s.open...), LastReply: s.reply}
		if s.result != nil {
			dv.Result = *s.result
		}
		snap.Doubt = dv
	}
	return snap
}
