package interview

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
)

// ResponseScorer scores one answer. Implementations return the raw assessment only;
// weighting is always done by the Evaluator.
type ResponseScorer interface {
	ScoreResponse(ctx context.Context, q model.QuestionRecord, answer string) (model.Assessment, error)
}

// Evaluator turns answers into evaluations. It never fails: any scorer error or unusable
// assessment is replaced by FallbackEvaluation.
type Evaluator struct {
	scorer  ResponseScorer
	timeout time.Duration
}

// NewEvaluator creates an Evaluator. scorer may be nil.
func NewEvaluator(scorer ResponseScorer, timeout time.Duration) *Evaluator {
	return &Evaluator{scorer: scorer, timeout: timeout}
}

// Evaluate scores answer against q.
func (e *Evaluator) Evaluate(ctx context.Context, q model.QuestionRecord, answer string) model.Evaluation {
	defer metrics.AnswersEvaluated.Inc()

	if e.scorer == nil {
		metrics.Fallbacks.WithLabelValues("evaluation").Inc()
		return FallbackEvaluation(q, answer)
	}

	a, err := e.score(ctx, q, answer)
	if err != nil && ctx.Err() != nil {
		// The caller gave up on this answer; the result is discarded.
		slog.Debug("answer evaluation cancelled", "topic", q.Topic, "error", err)
		return FallbackEvaluation(q, answer)
	}
	if err != nil {
		slog.Warn("answer evaluation failed, using fallback", "topic", q.Topic, "error", err)
		metrics.Fallbacks.WithLabelValues("evaluation").Inc()
		return FallbackEvaluation(q, answer)
	}
	return newEvaluation(q, a, false)
}

func (e *Evaluator) score(ctx context.Context, q model.QuestionRecord, answer string) (model.Assessment, error) {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	a, err := e.scorer.ScoreResponse(ctx, q, answer)
	metrics.LLMCallDuration.WithLabelValues("evaluation").Observe(time.Since(start).Seconds())
	if err != nil {
		return model.Assessment{}, err
	}
	if err := validateAssessment(a); err != nil {
		return model.Assessment{}, err
	}
	return a, nil
}

func validateAssessment(a model.Assessment) error {
	scores := []struct {
		name string
		v    float64
	}{
		{"score", a.Score},
		{"technical_accuracy", a.TechnicalAccuracy},
		{"communication_clarity", a.CommunicationClarity},
		{"completeness", a.Completeness},
		{"practical_understanding", a.PracticalUnderstanding},
	}
	for _, s := range scores {
		if math.IsNaN(s.v) || s.v < 1 || s.v > 10 {
			return fmt.Errorf("%s %v out of range 1..10", s.name, s.v)
		}
	}
	return nil
}

// WeightedScore scales a raw 1..10 score to the question weight.
func WeightedScore(raw float64, weight int) float64 {
	return raw / 10 * float64(weight)
}

// FallbackEvaluation scores an answer by word count alone. It is capped at 6.
func FallbackEvaluation(q model.QuestionRecord, answer string) model.Evaluation {
	var score float64
	switch n := len(strings.Fields(answer)); {
	case n < 3:
		score = 1
	case n < 10:
		score = 3
	case n < 20:
		score = 5
	default:
		score = 6
	}

	return newEvaluation(q, model.Assessment{
		Score:                  score,
		TechnicalAccuracy:      score,
		CommunicationClarity:   math.Min(10, score+1),
		Completeness:           math.Max(1, score-1),
		PracticalUnderstanding: score,
		Feedback:               "Response evaluated using fallback method. AI evaluation temporarily unavailable.",
		Suggestions:            fmt.Sprintf("Try to provide more detailed explanations about %s.", q.Topic),
		Strengths:              "Response provided within time limit.",
		AreasForImprovement:    "Consider providing more technical details and practical examples.",
	}, true)
}

func newEvaluation(q model.QuestionRecord, a model.Assessment, fallback bool) model.Evaluation {
	return model.Evaluation{
		RawScore:               a.Score,
		TechnicalAccuracy:      a.TechnicalAccuracy,
		CommunicationClarity:   a.CommunicationClarity,
		Completeness:           a.Completeness,
		PracticalUnderstanding: a.PracticalUnderstanding,
		Feedback:               a.Feedback,
		Suggestions:            a.Suggestions,
		Strengths:              a.Strengths,
		AreasForImprovement:    a.AreasForImprovement,
		Topic:                  q.Topic,
		Difficulty:             q.Difficulty,
		WeightedScore:          WeightedScore(a.Score, q.Weight),
		MaxPossible:            q.Weight,
		UsedFallback:           fallback,
	}
}
