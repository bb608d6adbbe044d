package quiz

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
)

// StaticGenerator builds quizzes from a fixed concept bank plus randomised
// multiplication facts sized to the topic level. It never fails.
type StaticGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewStaticGenerator returns a generator seeded from seed. Equal seeds give equal sequences.
func NewStaticGenerator(seed uint64) *StaticGenerator {
	return &StaticGenerator{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func conceptQuestions(title string) []Question {
	return []Question{
		{
			Prompt:       fmt.Sprintf("What is the result of multiplying two numbers in %s called?", title),
			Options:      []string{"Sum", "Product", "Difference", "Quotient"},
			CorrectIndex: 1,
			Explanation:  "The result of multiplication is called the product.",
		},
		{
			Prompt:       "If you multiply any number by zero, what is the result?",
			Options:      []string{"The number itself", "Zero", "One", "Undefined"},
			CorrectIndex: 1,
			Explanation:  "Any number multiplied by zero equals zero.",
		},
		{
			Prompt:       "Which property states that a × b = b × a?",
			Options:      []string{"Associative", "Commutative", "Distributive", "Identity"},
			CorrectIndex: 1,
			Explanation:  "The commutative property allows us to swap the order of multiplication.",
		},
		{
			Prompt:       "If you multiply any number by one, what is the result?",
			Options:      []string{"Zero", "One", "The number itself", "Double the number"},
			CorrectIndex: 2,
			Explanation:  "One is the multiplicative identity: n × 1 = n.",
		},
		{
			Prompt:       "Which is the same as 4 × 3?",
			Options:      []string{"4 + 3", "3 + 3 + 3 + 3", "4 + 4", "3 × 3"},
			CorrectIndex: 1,
			Explanation:  "4 × 3 means four groups of three: 3 + 3 + 3 + 3 = 12.",
		},
	}
}

type operandRange struct{ aMin, aMax, bMin, bMax int }

func rangeFor(level curriculum.Level) operandRange {
	switch level {
	case curriculum.LevelIntermediate:
		return operandRange{2, 10, 2, 10}
	case curriculum.LevelAdvanced:
		return operandRange{2, 12, 11, 25}
	case curriculum.LevelExpert:
		return operandRange{3, 12, 12, 99}
	default:
		return operandRange{1, 5, 1, 10}
	}
}

func (g *StaticGenerator) Generate(_ context.Context, req Request) ([]Question, error) {
	n := req.Count
	if n <= 0 {
		n = DefaultQuestionCount
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	concepts := conceptQuestions(req.Topic.Title)
	nConcept := min(n/2, len(concepts))

	out := make([]Question, 0, n)
	for _, i := range g.rnd.Perm(len(concepts))[:nConcept] {
		out = append(out, concepts[i])
	}
	r := rangeFor(req.Topic.Level)
	for len(out) < n {
		a := r.aMin + g.rnd.IntN(r.aMax-r.aMin+1)
		b := r.bMin + g.rnd.IntN(r.bMax-r.bMin+1)
		out = append(out, g.factQuestion(a, b, req.Topic.Level == curriculum.LevelExpert))
	}
	return out, nil
}

func (g *StaticGenerator) factQuestion(a, b int, story bool) Question {
	product := a * b
	options, correct := g.optionsAround(product, a, b)

	prompt := fmt.Sprintf("What is %d × %d?", a, b)
	explanation := fmt.Sprintf("%d × %d = %d", a, b, product)
	if story {
		prompt = fmt.Sprintf("A farmer has %d rows of apple trees with %d trees in each row. How many trees in total?", a, b)
		explanation = fmt.Sprintf("%d × %d = %d trees in total.", a, b, product)
	}
	return Question{
		Prompt:       prompt,
		Options:      options,
		CorrectIndex: correct,
		Explanation:  explanation,
	}
}

// optionsAround returns the product and three plausible wrong answers in random order.
func (g *StaticGenerator) optionsAround(product, a, b int) ([]string, int) {
	seen := map[int]bool{product: true}
	values := []int{product}
	for _, c := range []int{a * (b + 1), (a + 1) * b, a + b, product + 10, product - a, product + b, product + 1} {
		if len(values) == OptionCount {
			break
		}
		if c > 0 && !seen[c] {
			seen[c] = true
			values = append(values, c)
		}
	}
	for d := 2; len(values) < OptionCount; d++ {
		if !seen[product+d] {
			seen[product+d] = true
			values = append(values, product+d)
		}
	}

	g.rnd.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })
	options := make([]string, len(values))
	correct := 0
	for i, v := range values {
		options[i] = strconv.Itoa(v)
		if v == product {
			correct = i
		}
	}
	return options, correct
}
