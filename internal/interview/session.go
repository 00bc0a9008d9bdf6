package interview

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

// State is the lifecycle position of a session.
type State int

const (
	StateCreated State = iota
	StateActive
	StateComplete
	StateEndedEarly
	// StateClosed marks a session whose connection went away before it finished.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateComplete:
		return "complete"
	case StateEndedEarly:
		return "ended_early"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateEndedEarly || s == StateClosed
}

const defaultCandidateName = "Candidate"

// OutcomeKind tells the caller which client event an operation produced.
type OutcomeKind int

const (
	// OutcomeNoop means the call had no effect (ending an already finished session).
	OutcomeNoop OutcomeKind = iota
	// OutcomeNextQuestion carries the evaluation of the answer and the next question.
	OutcomeNextQuestion
	// OutcomeComplete carries the final report.
	OutcomeComplete
	// OutcomeEndedEmpty means the session ended with nothing to evaluate.
	OutcomeEndedEmpty
)

// Outcome is the result of Submit or End.
type Outcome struct {
	Kind           OutcomeKind
	Evaluation     *model.Evaluation
	Next           *model.QuestionRecord
	QuestionNumber int // 1-based number of Next
	TotalQuestions int
	Report         *model.Report
}

// Started describes a session that has just become active.
type Started struct {
	SessionID      string
	CandidateName  string
	SkillLevel     model.SkillLevel
	First          model.QuestionRecord
	TotalQuestions int
}

// Snapshot is a copy of a session's state.
type Snapshot struct {
	ID            string
	CandidateName string
	SkillLevel    model.SkillLevel
	State         State
	CurrentIndex  int
	Questions     []model.QuestionRecord
	Responses     []model.Response
	Evaluations   []model.Evaluation
	StartTime     time.Time
}

// Session tracks one candidate's progress through a question set.
//
// Events for one session arrive serially from its connection, but an evaluation may still be
// in flight when End or Close is called, so the fields are guarded by mu.
type Session struct {
	questions  *QuestionSource
	evaluator  *Evaluator
	aggregator *Aggregator
	now        func() time.Time

	mu            sync.Mutex
	id            string
	candidateName string
	level         model.SkillLevel
	questionSet   []model.QuestionRecord
	currentIndex  int
	responses     []model.Response
	evaluations   []model.Evaluation
	startTime     time.Time
	state         State
	cancelPending context.CancelFunc
}

// NewSession creates a session in StateCreated.
func NewSession(id string, qs *QuestionSource, ev *Evaluator, agg *Aggregator) *Session {
	return &Session{
		id:         id,
		questions:  qs,
		evaluator:  ev,
		aggregator: agg,
		now:        time.Now,
		state:      StateCreated,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session's state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.id,
		CandidateName: s.candidateName,
		SkillLevel:    s.level,
		State:         s.state,
		CurrentIndex:  s.currentIndex,
		Questions:     slices.Clone(s.questionSet),
		Responses:     slices.Clone(s.responses),
		Evaluations:   slices.Clone(s.evaluations),
		StartTime:     s.startTime,
	}
}

// Start acquires the question set and activates the session.
func (s *Session) Start(ctx context.Context, candidateName, skillLevel string) (Started, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return Started{}, ErrAlreadyStarted
	}

	level, _ := model.ParseSkillLevel(skillLevel)
	name := strings.TrimSpace(candidateName)
	if name == "" {
		name = defaultCandidateName
	}

	qs := s.questions.Acquire(ctx, level)
	if len(qs) == 0 {
		return Started{}, ErrNoQuestions
	}

	s.candidateName = name
	s.level = level
	s.questionSet = qs
	s.startTime = s.now()
	s.state = StateActive

	return Started{
		SessionID:      s.id,
		CandidateName:  name,
		SkillLevel:     level,
		First:          qs[0],
		TotalQuestions: len(qs),
	}, nil
}

// Submit records and evaluates an answer to the current question. When it was the last
// question the session completes and the outcome carries the report.
func (s *Session) Submit(ctx context.Context, answer string) (Outcome, error) {
	run, err := s.Prepare(ctx, answer)
	if err != nil {
		return Outcome{}, err
	}
	return run()
}

// Prepare validates a submission and reserves the current question for it. The returned
// function runs the evaluation and applies the result; it may be called from another
// goroutine. Until it returns, further submissions fail with ErrEvaluationPending and End
// cancels the evaluation.
func (s *Session) Prepare(ctx context.Context, answer string) (func() (Outcome, error), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == StateCreated:
		return nil, ErrNoActiveSession
	case s.currentIndex >= len(s.questionSet):
		// Every question has been answered, whether or not the report is done.
		return nil, ErrNoMoreQuestions
	case s.state != StateActive:
		return nil, ErrInterviewNotActive
	case s.cancelPending != nil:
		return nil, ErrEvaluationPending
	}
	q := s.questionSet[s.currentIndex]
	evalCtx, cancel := context.WithCancel(ctx)
	s.cancelPending = cancel

	return func() (Outcome, error) {
		eval := s.evaluator.Evaluate(evalCtx, q, answer)
		cancel()
		return s.apply(ctx, q, answer, eval)
	}, nil
}

func (s *Session) apply(ctx context.Context, q model.QuestionRecord, answer string, eval model.Evaluation) (Outcome, error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return Outcome{}, ErrSessionClosed
	}
	s.cancelPending = nil
	s.responses = append(s.responses, model.Response{
		QuestionText: q.Text,
		AnswerText:   answer,
		Timestamp:    s.now(),
	})
	s.evaluations = append(s.evaluations, eval)
	s.currentIndex++

	total := len(s.questionSet)
	if s.currentIndex < total {
		next := s.questionSet[s.currentIndex]
		number := s.currentIndex + 1
		s.mu.Unlock()
		return Outcome{
			Kind:           OutcomeNextQuestion,
			Evaluation:     &eval,
			Next:           &next,
			QuestionNumber: number,
			TotalQuestions: total,
		}, nil
	}

	s.state = StateComplete
	meta, evals := s.reportInputLocked(false)
	s.mu.Unlock()

	report, err := s.aggregator.Build(ctx, meta, evals)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Kind:           OutcomeComplete,
		Evaluation:     &eval,
		TotalQuestions: total,
		Report:         report,
	}, nil
}

// End finishes the session early. A pending evaluation is cancelled and its result
// discarded. Calling End on a finished session is a no-op.
func (s *Session) End(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.state == StateCreated {
		s.mu.Unlock()
		return Outcome{}, ErrNoActiveSession
	}
	if s.state.Terminal() {
		s.mu.Unlock()
		return Outcome{Kind: OutcomeNoop}, nil
	}

	s.state = StateEndedEarly
	s.stopPendingLocked()
	if len(s.evaluations) == 0 {
		s.mu.Unlock()
		return Outcome{Kind: OutcomeEndedEmpty}, nil
	}
	meta, evals := s.reportInputLocked(true)
	s.mu.Unlock()

	report, err := s.aggregator.Build(ctx, meta, evals)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Kind:           OutcomeComplete,
		TotalQuestions: meta.TotalQuestions,
		Report:         report,
	}, nil
}

// Close abandons the session without a report.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopPendingLocked()
	if !s.state.Terminal() {
		s.state = StateClosed
	}
}

func (s *Session) stopPendingLocked() {
	if s.cancelPending != nil {
		s.cancelPending()
		s.cancelPending = nil
	}
}

func (s *Session) reportInputLocked(endedEarly bool) (ReportMeta, []model.Evaluation) {
	return ReportMeta{
		SessionID:      s.id,
		CandidateName:  s.candidateName,
		SkillLevel:     s.level,
		TotalQuestions: len(s.questionSet),
		StartedAt:      s.startTime,
		EndedEarly:     endedEarly,
	}, slices.Clone(s.evaluations)
}
