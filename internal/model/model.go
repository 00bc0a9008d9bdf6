package model

import (
	"strings"
	"time"
)

// SkillLevel is the level a candidate chooses when starting an interview.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
)

// ParseSkillLevel normalizes s. Unrecognized values map to SkillBeginner and ok=false.
func ParseSkillLevel(s string) (level SkillLevel, ok bool) {
	switch SkillLevel(strings.ToLower(strings.TrimSpace(s))) {
	case SkillBeginner:
		return SkillBeginner, true
	case SkillIntermediate:
		return SkillIntermediate, true
	case SkillAdvanced:
		return SkillAdvanced, true
	default:
		return SkillBeginner, false
	}
}

// Proficiency is the coarse tier derived from the mean raw score of a session.
type Proficiency string

const (
	ProficiencyAdvanced     Proficiency = "Advanced"
	ProficiencyIntermediate Proficiency = "Intermediate"
	ProficiencyBasic        Proficiency = "Basic"
	ProficiencyBeginner     Proficiency = "Beginner"
)

// PerformanceLevel labels the average score of one topic.
type PerformanceLevel string

const (
	PerformanceStrong           PerformanceLevel = "Strong"
	PerformanceModerate         PerformanceLevel = "Moderate"
	PerformanceNeedsImprovement PerformanceLevel = "Needs Improvement"
)

// QuestionRecord is a single interview question. Immutable once generated.
type QuestionRecord struct {
	Text       string `json:"question"`
	Topic      string `json:"topic"`
	Difficulty int    `json:"difficulty"`
	Weight     int    `json:"weight"`
}

// Valid reports whether every required field is present and in range.
func (q QuestionRecord) Valid() bool {
	return strings.TrimSpace(q.Text) != "" &&
		strings.TrimSpace(q.Topic) != "" &&
		q.Difficulty >= 1 && q.Difficulty <= 10 &&
		q.Weight >= 5 && q.Weight <= 15
}

// Assessment holds the raw fields a response evaluator returns for one answer.
type Assessment struct {
	Score                  float64 `json:"score"`
	TechnicalAccuracy      float64 `json:"technical_accuracy"`
	CommunicationClarity   float64 `json:"communication_clarity"`
	Completeness           float64 `json:"completeness"`
	PracticalUnderstanding float64 `json:"practical_understanding"`
	Feedback               string  `json:"feedback"`
	Suggestions            string  `json:"suggestions"`
	Strengths              string  `json:"strengths"`
	AreasForImprovement    string  `json:"areas_for_improvement"`
}

// Evaluation is the scored outcome of one submitted answer.
type Evaluation struct {
	RawScore               float64 `json:"raw_score"`
	TechnicalAccuracy      float64 `json:"technical_accuracy"`
	CommunicationClarity   float64 `json:"communication_clarity"`
	Completeness           float64 `json:"completeness"`
	PracticalUnderstanding float64 `json:"practical_understanding"`
	Feedback               string  `json:"feedback"`
	Suggestions            string  `json:"suggestions"`
	Strengths              string  `json:"strengths"`
	AreasForImprovement    string  `json:"areas_for_improvement"`
	Topic                  string  `json:"topic"`
	Difficulty             int     `json:"difficulty"`
	WeightedScore          float64 `json:"weighted_score"`
	MaxPossible            int     `json:"max_possible"`
	UsedFallback           bool    `json:"used_fallback"`
}

// Response is one answer as submitted by the candidate.
type Response struct {
	QuestionText string    `json:"question"`
	AnswerText   string    `json:"response"`
	Timestamp    time.Time `json:"timestamp"`
}

// TopicPerformance summarizes all evaluations sharing a topic.
type TopicPerformance struct {
	AverageScore     float64          `json:"average_score"`
	QuestionsCount   int              `json:"questions_count"`
	PerformanceLevel PerformanceLevel `json:"performance_level"`
}

// Report is the final aggregated result of a session.
type Report struct {
	SessionID         string                      `json:"session_id"`
	CandidateName     string                      `json:"candidate_name"`
	SkillLevel        SkillLevel                  `json:"skill_level"`
	TotalScore        float64                     `json:"total_score"`
	MaxPossibleScore  int                         `json:"max_possible_score"`
	Percentage        float64                     `json:"percentage"`
	AverageRawScore   float64                     `json:"average_raw_score"`
	ProficiencyLevel  Proficiency                 `json:"proficiency_level"`
	QuestionsAnswered int                         `json:"questions_answered"`
	TotalQuestions    int                         `json:"total_questions"`
	EndedEarly        bool                        `json:"ended_early"`
	StartedAt         time.Time                   `json:"started_at"`
	FinishedAt        time.Time                   `json:"finished_at"`
	Duration          string                      `json:"interview_duration"`
	DetailedScores    []Evaluation                `json:"detailed_scores"`
	OverallFeedback   string                      `json:"overall_feedback"`
	Recommendations   []string                    `json:"recommendations"`
	TopicBreakdown    map[string]TopicPerformance `json:"topic_breakdown"`
}

// ReportSummary is the archive listing view of a report.
type ReportSummary struct {
	SessionID        string      `json:"session_id"`
	CandidateName    string      `json:"candidate_name"`
	SkillLevel       SkillLevel  `json:"skill_level"`
	Percentage       float64     `json:"percentage"`
	ProficiencyLevel Proficiency `json:"proficiency_level"`
	EndedEarly       bool        `json:"ended_early"`
	CreatedAt        time.Time   `json:"created_at"`
}

// InterviewConfig holds runtime interview parameters set via CLI flags.
type InterviewConfig struct {
	NumQuestions   int           // questions requested from the generator
	CallTimeout    time.Duration // bound on each external generator/evaluator call
	PromptVariant  string        // grading prompt variant (strict, standard, lenient)
	Lang           string        // default UI language
	RateLimit      float64       // inbound events per second per connection, 0 disables
	RateBurst      int
	AllowedOrigins []string // empty allows any origin
}
