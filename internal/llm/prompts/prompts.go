package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/interviewer/internal/model"
)

// Templates holds the built-in prompt files.
//
//go:embed templates/*.txt
var Templates embed.FS

var (
	candidateAnswerRegex    = regexp.MustCompile(`(?i)</?\s*candidate-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

// PromptVariant represents an evaluation prompt variant.
type PromptVariant string

const (
	// PromptStrict penalizes partial answers.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default evaluation variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient gives credit for partial understanding.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var funcs = template.FuncMap{"join": strings.Join}

var (
	loadOnce      sync.Once
	loadErr       error
	systemPrompt  string
	questionsTmpl *template.Template
	feedbackTmpl  *template.Template
	recsTmpl      *template.Template
	evalTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// QuestionsData holds template data for question generation prompts.
type QuestionsData struct {
	Level model.SkillLevel
	Count int
}

// EvalData holds template data for evaluation prompts.
type EvalData struct {
	QuestionText string
	Topic        string
	Difficulty   int
	Answer       string
}

// SummaryData holds template data for feedback and recommendation prompts.
type SummaryData struct {
	Level      model.SkillLevel
	Percentage float64
	Count      int
	WeakTopics []string
	Summary    string
}

// Load loads prompt templates from fsys. Files are expected under templates/.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		loadErr = load(fsys)
	})
	return loadErr
}

func load(fsys fs.FS) error {
	sys, err := fs.ReadFile(fsys, "templates/system.txt")
	if err != nil {
		return fmt.Errorf("read system prompt: %w", err)
	}
	systemPrompt = strings.TrimSpace(string(sys))

	if questionsTmpl, err = parse(fsys, "questions"); err != nil {
		return err
	}
	if feedbackTmpl, err = parse(fsys, "feedback"); err != nil {
		return err
	}
	if recsTmpl, err = parse(fsys, "recommendations"); err != nil {
		return err
	}

	evalTemplates = make(map[PromptVariant]*template.Template)
	for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
		tmpl, err := parse(fsys, "eval_"+string(v))
		if err != nil {
			return err
		}
		evalTemplates[v] = tmpl
	}
	return nil
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	file := "templates/" + name + ".txt"
	content, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", file, err)
	}
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %s: %w", file, err)
	}
	return tmpl, nil
}

func ready() error {
	if evalTemplates == nil {
		if loadErr != nil {
			return fmt.Errorf("templates load failed: %w", loadErr)
		}
		return errors.New("templates not initialized: call Load first")
	}
	return nil
}

// System returns the interviewer persona sent as the system message of every call.
func System() (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	return systemPrompt, nil
}

// BuildQuestionsPrompt builds the question generation prompt.
func BuildQuestionsPrompt(level model.SkillLevel, count int) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	return execute(questionsTmpl, QuestionsData{Level: level, Count: count})
}

// BuildEvalPrompt builds an evaluation prompt using the specified variant.
func BuildEvalPrompt(variant PromptVariant, q model.QuestionRecord, answer string) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	tmpl, ok := evalTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}
	return execute(tmpl, EvalData{
		QuestionText: q.Text,
		Topic:        q.Topic,
		Difficulty:   q.Difficulty,
		Answer:       sanitizeAnswer(answer),
	})
}

// BuildFeedbackPrompt builds the overall feedback prompt.
func BuildFeedbackPrompt(evals []model.Evaluation, percentage float64, level model.SkillLevel) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	summary, err := feedbackSummary(evals)
	if err != nil {
		return "", err
	}
	return execute(feedbackTmpl, SummaryData{
		Level:      level,
		Percentage: percentage,
		Count:      len(evals),
		Summary:    summary,
	})
}

// BuildRecommendationsPrompt builds the learning recommendations prompt.
func BuildRecommendationsPrompt(evals []model.Evaluation, percentage float64, level model.SkillLevel, weakTopics []string) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}

	type row struct {
		Topic string  `json:"topic"`
		Score float64 `json:"score"`
	}
	rows := make([]row, 0, len(evals))
	for _, e := range evals {
		rows = append(rows, row{Topic: e.Topic, Score: e.RawScore})
	}
	summary, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", err
	}

	return execute(recsTmpl, SummaryData{
		Level:      level,
		Percentage: percentage,
		Count:      len(evals),
		WeakTopics: weakTopics,
		Summary:    string(summary),
	})
}

func feedbackSummary(evals []model.Evaluation) (string, error) {
	type row struct {
		QuestionNum         int     `json:"question_num"`
		Topic               string  `json:"topic"`
		Score               float64 `json:"score"`
		TechnicalAccuracy   float64 `json:"technical_accuracy"`
		Strengths           string  `json:"strengths"`
		AreasForImprovement string  `json:"areas_for_improvement"`
	}
	rows := make([]row, 0, len(evals))
	for i, e := range evals {
		rows = append(rows, row{
			QuestionNum:         i + 1,
			Topic:               e.Topic,
			Score:               e.RawScore,
			TechnicalAccuracy:   e.TechnicalAccuracy,
			Strengths:           e.Strengths,
			AreasForImprovement: e.AreasForImprovement,
		})
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = candidateAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
