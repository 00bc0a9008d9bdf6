package handler

import (
	"encoding/json"

	"github.com/pavelanni/interviewer/internal/model"
)

// Client events.
const (
	eventStartInterview = "start_interview"
	eventSubmitResponse = "submit_response"
	eventSkipQuestion   = "skip_question"
	eventEndInterview   = "end_interview"
)

// Server events.
const (
	eventInterviewStarted  = "interview_started"
	eventNextQuestion      = "next_question"
	eventInterviewComplete = "interview_complete"
	eventInterviewEnded    = "interview_ended"
	eventError             = "error"
)

// Handler-level error codes. Session errors use interview.ErrorCode.
const (
	codeBadRequest   = "bad_request"
	codeRateLimited  = "rate_limited"
	codeUnknownEvent = "unknown_event"
)

// skippedAnswer is submitted in place of an answer when the candidate skips a question.
const skippedAnswer = "Question skipped by candidate"

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type startRequest struct {
	Name       string `json:"name"`
	SkillLevel string `json:"skill_level"`
}

type submitRequest struct {
	Response string `json:"response"`
}

type interviewStarted struct {
	Message        string `json:"message"`
	Question       string `json:"question"`
	QuestionNumber int    `json:"question_number"`
	TotalQuestions int    `json:"total_questions"`
	SessionID      string `json:"session_id"`
}

type nextQuestion struct {
	Question       string  `json:"question"`
	QuestionNumber int     `json:"question_number"`
	TotalQuestions int     `json:"total_questions"`
	Feedback       string  `json:"feedback"`
	Score          float64 `json:"score"`
}

type interviewComplete struct {
	Report  *model.Report `json:"report"`
	Message string        `json:"message"`
}

type messageOnly struct {
	Message string `json:"message"`
}

type errorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorMessageIDs maps error codes to locale message IDs.
var errorMessageIDs = map[string]string{
	"no_active_session":    "ErrorNoActiveSession",
	"interview_not_active": "ErrorInterviewNotActive",
	"no_more_questions":    "ErrorNoMoreQuestions",
	"already_started":      "ErrorAlreadyStarted",
	"evaluation_pending":   "ErrorEvaluationPending",
	"cannot_start":         "ErrorCannotStart",
	"session_closed":       "ErrorSessionClosed",
	"internal":             "ErrorInternal",
	codeBadRequest:         "ErrorBadRequest",
	codeRateLimited:        "ErrorRateLimited",
	codeUnknownEvent:       "ErrorUnknownEvent",
}

// decodeData unmarshals an event payload. A missing payload leaves v at its zero value.
func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
