package interview

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
)

// QuestionGenerator produces an ordered question set for a skill level.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, level model.SkillLevel, count int) ([]model.QuestionRecord, error)
}

var fallbackQuestions = map[model.SkillLevel][]model.QuestionRecord{
	model.SkillBeginner: {
		{Text: "What is Microsoft Excel and what is its primary purpose?", Topic: "Excel Basics", Difficulty: 2, Weight: 5},
		{Text: "How would you create a simple SUM formula in Excel?", Topic: "Basic Formulas", Difficulty: 3, Weight: 6},
		{Text: "Explain how to format a cell to display currency in Excel.", Topic: "Cell Formatting", Difficulty: 3, Weight: 5},
		{Text: "How do you create a basic chart in Excel?", Topic: "Charts", Difficulty: 4, Weight: 7},
		{Text: "What's the difference between relative and absolute cell references?", Topic: "Cell References", Difficulty: 5, Weight: 8},
	},
	model.SkillIntermediate: {
		{Text: "Explain how VLOOKUP function works and give me an example of when you'd use it.", Topic: "VLOOKUP", Difficulty: 6, Weight: 10},
		{Text: "How would you create and customize a Pivot Table?", Topic: "Pivot Tables", Difficulty: 7, Weight: 12},
		{Text: "Explain conditional formatting and give me a practical use case.", Topic: "Conditional Formatting", Difficulty: 5, Weight: 7},
		{Text: "How do you use data validation to create dropdown lists?", Topic: "Data Validation", Difficulty: 6, Weight: 8},
		{Text: "What are some ways to handle errors in Excel formulas?", Topic: "Error Handling", Difficulty: 7, Weight: 9},
	},
	model.SkillAdvanced: {
		{Text: "How would you use INDEX and MATCH functions together, and why might this be better than VLOOKUP?", Topic: "INDEX/MATCH", Difficulty: 8, Weight: 15},
		{Text: "Explain how to create and use array formulas in Excel.", Topic: "Array Formulas", Difficulty: 9, Weight: 12},
		{Text: "How would you automate repetitive tasks in Excel using VBA?", Topic: "VBA", Difficulty: 9, Weight: 15},
		{Text: "Describe advanced data analysis techniques you can perform in Excel.", Topic: "Data Analysis", Difficulty: 8, Weight: 13},
		{Text: "How do you optimize Excel performance when working with large datasets?", Topic: "Performance Optimization", Difficulty: 8, Weight: 10},
	},
}

// FallbackQuestions returns a copy of the built-in question set for level.
// Unrecognized levels get the beginner set.
func FallbackQuestions(level model.SkillLevel) []model.QuestionRecord {
	qs, ok := fallbackQuestions[level]
	if !ok {
		qs = fallbackQuestions[model.SkillBeginner]
	}
	return slices.Clone(qs)
}

// QuestionSource acquires question sets, substituting the built-in set on any generator failure.
type QuestionSource struct {
	gen     QuestionGenerator
	count   int
	timeout time.Duration
}

// NewQuestionSource creates a QuestionSource. gen may be nil, in which case every acquisition
// uses the built-in set.
func NewQuestionSource(gen QuestionGenerator, count int, timeout time.Duration) *QuestionSource {
	if count <= 0 {
		count = 5
	}
	return &QuestionSource{gen: gen, count: count, timeout: timeout}
}

// Acquire returns a complete question set for level. It never fails.
func (s *QuestionSource) Acquire(ctx context.Context, level model.SkillLevel) []model.QuestionRecord {
	if s.gen == nil {
		metrics.Fallbacks.WithLabelValues("questions").Inc()
		return FallbackQuestions(level)
	}

	qs, err := s.generate(ctx, level)
	if err != nil {
		slog.Warn("question generation failed, using built-in set", "skill_level", level, "error", err)
		metrics.Fallbacks.WithLabelValues("questions").Inc()
		return FallbackQuestions(level)
	}
	return qs
}

func (s *QuestionSource) generate(ctx context.Context, level model.SkillLevel) ([]model.QuestionRecord, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	qs, err := s.gen.GenerateQuestions(ctx, level, s.count)
	metrics.LLMCallDuration.WithLabelValues("questions").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if len(qs) != s.count {
		return nil, fmt.Errorf("generator returned %d questions, want %d", len(qs), s.count)
	}
	for i, q := range qs {
		if !q.Valid() {
			return nil, fmt.Errorf("question %d is incomplete or out of range", i+1)
		}
	}
	return qs, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
