package interview

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
)

// Collaborators are the external generative capabilities. Any of them may be nil,
// in which case the matching fallback is always used.
type Collaborators struct {
	Generator   QuestionGenerator
	Scorer      ResponseScorer
	Narrator    NarrativeGenerator
	Recommender RecommendationGenerator
}

// ReportSink receives every report produced.
type ReportSink interface {
	SaveReport(r *model.Report) error
}

// Engine drives sessions keyed by connection id.
type Engine struct {
	registry   *Registry
	questions  *QuestionSource
	evaluator  *Evaluator
	aggregator *Aggregator
	sink       ReportSink
	newID      func() string
}

// NewEngine creates an Engine. sink may be nil.
func NewEngine(c Collaborators, cfg model.InterviewConfig, sink ReportSink) *Engine {
	return &Engine{
		registry:   NewRegistry(),
		questions:  NewQuestionSource(c.Generator, cfg.NumQuestions, cfg.CallTimeout),
		evaluator:  NewEvaluator(c.Scorer, cfg.CallTimeout),
		aggregator: NewAggregator(c.Narrator, c.Recommender, cfg.CallTimeout),
		sink:       sink,
		newID:      uuid.NewString,
	}
}

// Start begins a new interview on connID. A finished session on the same connection is replaced.
func (e *Engine) Start(ctx context.Context, connID, candidateName, skillLevel string) (Started, error) {
	if existing, ok := e.registry.Get(connID); ok && existing.State() == StateActive {
		return Started{}, ErrAlreadyStarted
	}

	s := NewSession(e.newID(), e.questions, e.evaluator, e.aggregator)
	started, err := s.Start(ctx, candidateName, skillLevel)
	if err != nil {
		return Started{}, err
	}
	if old := e.registry.Create(connID, s); old != nil {
		old.Close()
	}

	metrics.SessionsStarted.WithLabelValues(string(started.SkillLevel)).Inc()
	slog.Info("interview started",
		"session_id", started.SessionID,
		"candidate", started.CandidateName,
		"skill_level", started.SkillLevel,
		"questions", started.TotalQuestions,
	)
	return started, nil
}

// Submit evaluates an answer for the session on connID.
func (e *Engine) Submit(ctx context.Context, connID, answer string) (Outcome, error) {
	run, err := e.PrepareSubmit(ctx, connID, answer)
	if err != nil {
		return Outcome{}, err
	}
	return run()
}

// PrepareSubmit validates an answer for the session on connID and returns the function
// that evaluates it. See Session.Prepare.
func (e *Engine) PrepareSubmit(ctx context.Context, connID, answer string) (func() (Outcome, error), error) {
	s, ok := e.registry.Get(connID)
	if !ok {
		return nil, ErrNoActiveSession
	}
	run, err := s.Prepare(ctx, answer)
	if err != nil {
		return nil, err
	}
	return func() (Outcome, error) {
		out, err := run()
		if err != nil {
			return Outcome{}, err
		}
		e.finish(out, "complete")
		return out, nil
	}, nil
}

// End finishes the session on connID early.
func (e *Engine) End(ctx context.Context, connID string) (Outcome, error) {
	s, ok := e.registry.Get(connID)
	if !ok {
		return Outcome{}, ErrNoActiveSession
	}
	out, err := s.End(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if out.Kind == OutcomeEndedEmpty {
		slog.Info("interview ended with no responses", "session_id", s.ID())
	}
	e.finish(out, "ended_early")
	return out, nil
}

// Disconnect removes the session of a closed connection and cancels pending work.
func (e *Engine) Disconnect(connID string) {
	s, ok := e.registry.Remove(connID)
	if !ok {
		return
	}
	s.Close()
	slog.Debug("session removed", "session_id", s.ID(), "state", s.State())
}

// Session returns the session currently registered for connID.
func (e *Engine) Session(connID string) (*Session, bool) {
	return e.registry.Get(connID)
}

// ActiveSessions returns the number of registered sessions.
func (e *Engine) ActiveSessions() int {
	return e.registry.Len()
}

func (e *Engine) finish(out Outcome, kind string) {
	if out.Kind != OutcomeComplete || out.Report == nil {
		return
	}
	metrics.Reports.WithLabelValues(kind).Inc()
	slog.Info("report generated",
		"session_id", out.Report.SessionID,
		"percentage", out.Report.Percentage,
		"proficiency", out.Report.ProficiencyLevel,
		"ended_early", out.Report.EndedEarly,
	)
	if e.sink == nil {
		return
	}
	if err := e.sink.SaveReport(out.Report); err != nil {
		slog.Error("failed to archive report", "session_id", out.Report.SessionID, "error", err)
	}
}
