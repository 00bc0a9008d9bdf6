package interview

import (
	"context"
	"errors"

	"github.com/pavelanni/interviewer/internal/model"
)

var errUnavailable = errors.New("service unavailable")

type fakeGenerator struct {
	questions []model.QuestionRecord
	err       error
	calls     int
}

func (f *fakeGenerator) GenerateQuestions(ctx context.Context, level model.SkillLevel, count int) ([]model.QuestionRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.questions, nil
}

type scorerFunc func(ctx context.Context, q model.QuestionRecord, answer string) (model.Assessment, error)

func (f scorerFunc) ScoreResponse(ctx context.Context, q model.QuestionRecord, answer string) (model.Assessment, error) {
	return f(ctx, q, answer)
}

// fixedScorer scores every answer with the same value on all dimensions.
func fixedScorer(score float64) scorerFunc {
	return func(ctx context.Context, q model.QuestionRecord, answer string) (model.Assessment, error) {
		return model.Assessment{
			Score:                  score,
			TechnicalAccuracy:      score,
			CommunicationClarity:   score,
			Completeness:           score,
			PracticalUnderstanding: score,
			Feedback:               "scored",
		}, nil
	}
}

// blockingScorer waits until its context is cancelled and signals entry on started.
func blockingScorer(started chan<- struct{}) scorerFunc {
	return func(ctx context.Context, q model.QuestionRecord, answer string) (model.Assessment, error) {
		close(started)
		<-ctx.Done()
		return model.Assessment{}, ctx.Err()
	}
}

type narratorFunc func(ctx context.Context, evals []model.Evaluation, pct float64, level model.SkillLevel) (string, error)

func (f narratorFunc) Narrate(ctx context.Context, evals []model.Evaluation, pct float64, level model.SkillLevel) (string, error) {
	return f(ctx, evals, pct, level)
}

type recommenderFunc func(ctx context.Context, evals []model.Evaluation, pct float64, level model.SkillLevel, weak []string) ([]string, error)

func (f recommenderFunc) Recommend(ctx context.Context, evals []model.Evaluation, pct float64, level model.SkillLevel, weak []string) ([]string, error) {
	return f(ctx, evals, pct, level, weak)
}

type memorySink struct {
	reports []*model.Report
}

func (m *memorySink) SaveReport(r *model.Report) error {
	m.reports = append(m.reports, r)
	return nil
}

func evalWith(topic string, raw float64, weight int) model.Evaluation {
	return model.Evaluation{
		RawScore:      raw,
		Topic:         topic,
		WeightedScore: WeightedScore(raw, weight),
		MaxPossible:   weight,
	}
}
