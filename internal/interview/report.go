package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
)

// NarrativeGenerator writes the overall feedback paragraph of a report.
type NarrativeGenerator interface {
	Narrate(ctx context.Context, evals []model.Evaluation, percentage float64, level model.SkillLevel) (string, error)
}

// RecommendationGenerator proposes learning recommendations for a report.
type RecommendationGenerator interface {
	Recommend(ctx context.Context, evals []model.Evaluation, percentage float64, level model.SkillLevel, weakTopics []string) ([]string, error)
}

const maxRecommendations = 5

// weakScore is the raw score below which an evaluation's topic counts as weak.
const weakScore = 6

// Totals holds the arithmetic summary of an evaluation list.
type Totals struct {
	Weighted        float64
	MaxPossible     int
	Percentage      float64
	AverageRawScore float64
}

// Tally sums evaluations. The percentage is clamped to [0, 100].
func Tally(evals []model.Evaluation) (Totals, error) {
	if len(evals) == 0 {
		return Totals{}, ErrNoEvaluations
	}

	var t Totals
	var rawSum float64
	for _, e := range evals {
		t.Weighted += e.WeightedScore
		t.MaxPossible += e.MaxPossible
		rawSum += e.RawScore
	}
	if t.MaxPossible > 0 {
		t.Percentage = t.Weighted / float64(t.MaxPossible) * 100
	}
	t.Percentage = math.Max(0, math.Min(100, t.Percentage))
	t.AverageRawScore = rawSum / float64(len(evals))
	return t, nil
}

// ProficiencyFor buckets an average raw score. Thresholds are inclusive lower bounds.
func ProficiencyFor(avg float64) model.Proficiency {
	switch {
	case avg >= 8.5:
		return model.ProficiencyAdvanced
	case avg >= 7.0:
		return model.ProficiencyIntermediate
	case avg >= 5.5:
		return model.ProficiencyBasic
	default:
		return model.ProficiencyBeginner
	}
}

// PerformanceFor labels the average raw score of one topic.
func PerformanceFor(avg float64) model.PerformanceLevel {
	switch {
	case avg >= 7:
		return model.PerformanceStrong
	case avg >= 5:
		return model.PerformanceModerate
	default:
		return model.PerformanceNeedsImprovement
	}
}

// BreakdownByTopic groups evaluations by topic.
func BreakdownByTopic(evals []model.Evaluation) map[string]model.TopicPerformance {
	type acc struct {
		sum   float64
		count int
	}
	byTopic := make(map[string]*acc)
	for _, e := range evals {
		a, ok := byTopic[e.Topic]
		if !ok {
			a = &acc{}
			byTopic[e.Topic] = a
		}
		a.sum += e.RawScore
		a.count++
	}

	out := make(map[string]model.TopicPerformance, len(byTopic))
	for topic, a := range byTopic {
		avg := a.sum / float64(a.count)
		out[topic] = model.TopicPerformance{
			AverageScore:     round1(avg),
			QuestionsCount:   a.count,
			PerformanceLevel: PerformanceFor(avg),
		}
	}
	return out
}

// WeakTopics returns the distinct topics of evaluations scoring below 6, in first-seen order.
func WeakTopics(evals []model.Evaluation) []string {
	var topics []string
	for _, e := range evals {
		if e.RawScore < weakScore && !slices.Contains(topics, e.Topic) {
			topics = append(topics, e.Topic)
		}
	}
	return topics
}

// FallbackFeedback returns the overall feedback used when no narrative generator is available.
func FallbackFeedback(percentage float64) string {
	switch {
	case percentage >= 85:
		return "Excellent performance! You demonstrate strong Excel proficiency across multiple areas."
	case percentage >= 70:
		return "Good performance with solid Excel knowledge. Some areas could benefit from additional practice."
	case percentage >= 55:
		return "Basic understanding demonstrated. Focus on expanding your Excel skills through targeted practice."
	default:
		return "Foundational Excel concepts need development. Consider structured learning to build core skills."
	}
}

// FallbackRecommendations returns at most five rule-based recommendations.
func FallbackRecommendations(percentage float64, level model.SkillLevel, weakTopics []string) []string {
	var recs []string
	if percentage < 70 {
		recs = append(recs,
			"Practice basic Excel formulas and functions daily",
			"Take an online Excel fundamentals course",
		)
	}
	if len(weakTopics) > 0 {
		recs = append(recs, "Focus on improving skills in: "+strings.Join(dedupe(weakTopics), ", "))
	}
	if (level == model.SkillIntermediate || level == model.SkillAdvanced) && percentage < 85 {
		recs = append(recs,
			"Master advanced lookup functions (VLOOKUP, INDEX/MATCH)",
			"Practice creating and analyzing Pivot Tables",
		)
	}
	if level == model.SkillAdvanced && percentage < 90 {
		recs = append(recs,
			"Learn VBA for automation",
			"Explore advanced data analysis techniques",
		)
	}
	recs = append(recs, "Consider pursuing Microsoft Excel certification")

	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

// ReportMeta is the session information copied into a report.
type ReportMeta struct {
	SessionID      string
	CandidateName  string
	SkillLevel     model.SkillLevel
	TotalQuestions int
	StartedAt      time.Time
	EndedEarly     bool
}

// Aggregator builds reports. Narrative and recommendation generators are optional.
type Aggregator struct {
	narrator    NarrativeGenerator
	recommender RecommendationGenerator
	timeout     time.Duration
	now         func() time.Time
}

// NewAggregator creates an Aggregator. Either generator may be nil.
func NewAggregator(n NarrativeGenerator, r RecommendationGenerator, timeout time.Duration) *Aggregator {
	return &Aggregator{narrator: n, recommender: r, timeout: timeout, now: time.Now}
}

// Build produces a report over evals. It returns ErrNoEvaluations for an empty list and
// never modifies evals.
func (a *Aggregator) Build(ctx context.Context, meta ReportMeta, evals []model.Evaluation) (*model.Report, error) {
	totals, err := Tally(evals)
	if err != nil {
		return nil, err
	}
	evals = slices.Clone(evals)
	finished := a.now()

	report := &model.Report{
		SessionID:         meta.SessionID,
		CandidateName:     meta.CandidateName,
		SkillLevel:        meta.SkillLevel,
		TotalScore:        round1(totals.Weighted),
		MaxPossibleScore:  totals.MaxPossible,
		Percentage:        round1(totals.Percentage),
		AverageRawScore:   round1(totals.AverageRawScore),
		ProficiencyLevel:  ProficiencyFor(totals.AverageRawScore),
		QuestionsAnswered: len(evals),
		TotalQuestions:    meta.TotalQuestions,
		EndedEarly:        meta.EndedEarly,
		StartedAt:         meta.StartedAt,
		FinishedAt:        finished,
		Duration:          finished.Sub(meta.StartedAt).Round(time.Second).String(),
		DetailedScores:    evals,
		TopicBreakdown:    BreakdownByTopic(evals),
	}
	report.OverallFeedback = a.feedback(ctx, evals, totals.Percentage, meta.SkillLevel)
	report.Recommendations = a.recommendations(ctx, evals, totals.Percentage, meta.SkillLevel)
	return report, nil
}

func (a *Aggregator) feedback(ctx context.Context, evals []model.Evaluation, pct float64, level model.SkillLevel) string {
	if a.narrator != nil {
		ctx, cancel := withTimeout(ctx, a.timeout)
		defer cancel()

		start := time.Now()
		text, err := a.narrator.Narrate(ctx, slices.Clone(evals), pct, level)
		metrics.LLMCallDuration.WithLabelValues("feedback").Observe(time.Since(start).Seconds())
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty narrative")
		}
		if err == nil {
			return strings.TrimSpace(text)
		}
		slog.Warn("narrative generation failed, using fallback", "error", err)
	}
	metrics.Fallbacks.WithLabelValues("feedback").Inc()
	return FallbackFeedback(pct)
}

func (a *Aggregator) recommendations(ctx context.Context, evals []model.Evaluation, pct float64, level model.SkillLevel) []string {
	weak := WeakTopics(evals)
	if a.recommender != nil {
		recs, err := a.callRecommender(ctx, evals, pct, level, weak)
		if err == nil {
			return recs
		}
		slog.Warn("recommendation generation failed, using fallback", "error", err)
	}
	metrics.Fallbacks.WithLabelValues("recommendations").Inc()
	return FallbackRecommendations(pct, level, weak)
}

func (a *Aggregator) callRecommender(ctx context.Context, evals []model.Evaluation, pct float64, level model.SkillLevel, weak []string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	recs, err := a.recommender.Recommend(ctx, slices.Clone(evals), pct, level, slices.Clone(weak))
	metrics.LLMCallDuration.WithLabelValues("recommendations").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	var out []string
	for _, r := range recs {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable recommendations in %d returned", len(recs))
	}
	if len(out) > maxRecommendations {
		out = out[:maxRecommendations]
	}
	return out, nil
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, s := range items {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

