package interview

import "errors"

// Protocol errors. The session is left unchanged when one of these is returned.
var (
	ErrNoActiveSession    = errors.New("no active interview session")
	ErrInterviewNotActive = errors.New("interview is not active")
	ErrNoMoreQuestions    = errors.New("no more questions available")
	ErrAlreadyStarted     = errors.New("interview already in progress")
	ErrEvaluationPending  = errors.New("previous answer is still being evaluated")
	ErrNoQuestions        = errors.New("could not generate interview questions")
)

var (
	// ErrNoEvaluations is returned when a report is requested over zero evaluations.
	ErrNoEvaluations = errors.New("no responses to evaluate")
	// ErrSessionClosed is returned when an evaluation finishes after its session became terminal.
	// The evaluation is discarded.
	ErrSessionClosed = errors.New("session closed while evaluation was pending")
)

// ErrorCode returns the stable wire code for a protocol error, or "internal".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoActiveSession):
		return "no_active_session"
	case errors.Is(err, ErrInterviewNotActive):
		return "interview_not_active"
	case errors.Is(err, ErrNoMoreQuestions):
		return "no_more_questions"
	case errors.Is(err, ErrAlreadyStarted):
		return "already_started"
	case errors.Is(err, ErrEvaluationPending):
		return "evaluation_pending"
	case errors.Is(err, ErrNoQuestions):
		return "cannot_start"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	default:
		return "internal"
	}
}
