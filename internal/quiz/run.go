package quiz

import "fmt"

// Feedback is shown after each answer.
type Feedback struct {
	Index        int    `json:"index"`
	Selected     int    `json:"selected"`
	Correct      bool   `json:"correct"`
	CorrectIndex int    `json:"correct_index"`
	Explanation  string `json:"explanation"`
}

// Result is the final outcome of a completed run.
type Result struct {
	Correct int  `json:"correct"`
	Total   int  `json:"total"`
	Score   int  `json:"score"`
	Passed  bool `json:"passed"`
}

// Run walks a question set one answer at a time. Questions are presented in
// the order given. A Run is not safe for concurrent use.
type Run struct {
	questions []Question
	answers   []int
}

// NewRun validates questions and starts a run at the first one.
func NewRun(questions []Question) (*Run, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("quiz has no questions")
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
	}
	qs := make([]Question, len(questions))
	copy(qs, questions)
	return &Run{questions: qs, answers: make([]int, 0, len(qs))}, nil
}

// Total returns the number of questions.
func (r *Run) Total() int { return len(r.questions) }

// Answered returns how many questions have been answered.
func (r *Run) Answered() int { return len(r.answers) }

// Done reports whether every question has been answered.
func (r *Run) Done() bool { return len(r.answers) == len(r.questions) }

// Current returns the next unanswered question and its index.
func (r *Run) Current() (int, Question, bool) {
	if r.Done() {
		return len(r.questions), Question{}, false
	}
	i := len(r.answers)
	return i, r.questions[i], true
}

// Answer records option for the current question and returns feedback.
func (r *Run) Answer(option int) (Feedback, error) {
	i, q, ok := r.Current()
	if !ok {
		return Feedback{}, ErrFinished
	}
	if option < 0 || option >= len(q.Options) {
		return Feedback{}, fmt.Errorf("option %d: %w", option, ErrAnswerOutOfRange)
	}
	r.answers = append(r.answers, option)
	return Feedback{
		Index:        i,
		Selected:     option,
		Correct:      option == q.CorrectIndex,
		CorrectIndex: q.CorrectIndex,
		Explanation:  q.Explanation,
	}, nil
}

// Result scores the run. It fails with ErrIncomplete until every question is answered.
func (r *Run) Result() (Result, error) {
	if !r.Done() {
		return Result{}, fmt.Errorf("%d of %d answered: %w", len(r.answers), len(r.questions), ErrIncomplete)
	}
	correct := 0
	for i, a := range r.answers {
		if a == r.questions[i].CorrectIndex {
			correct++
		}
	}
	score := Score(correct, len(r.questions))
	return Result{
		Correct: correct,
		Total:   len(r.questions),
		Score:   score,
		Passed:  Passed(score),
	}, nil
}
