package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// DecodeError reports a model response that could not be decoded into the expected shape.
// It is the trigger for the caller's fallback path.
type DecodeError struct {
	Op  string
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v (raw: %s)", e.Op, e.Err, e.Raw)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Client wraps an OpenAI-compatible API client. It implements the question generator,
// response scorer, narrative and recommendation capabilities of an interview.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client. An empty variant selects the standard evaluation prompt.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	if variant == "" {
		variant = string(prompts.PromptStandard)
	}
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q (valid: strict, standard, lenient)", variant)
	}
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.PromptVariant(variant),
	}, nil
}

// Ping checks that the API is reachable by listing models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM API unreachable: %w", err)
	}
	return nil
}

// GenerateQuestions asks the model for count questions at level.
func (c *Client) GenerateQuestions(ctx context.Context, level model.SkillLevel, count int) ([]model.QuestionRecord, error) {
	prompt, err := prompts.BuildQuestionsPrompt(level, count)
	if err != nil {
		return nil, err
	}
	raw, err := c.complete(ctx, prompt, true, 0.7)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Questions []model.QuestionRecord `json:"questions"`
	}
	if err := decodeStrict(raw, &payload); err != nil {
		return nil, &DecodeError{Op: "questions", Raw: raw, Err: err}
	}
	if len(payload.Questions) != count {
		return nil, &DecodeError{Op: "questions", Raw: raw, Err: fmt.Errorf("got %d questions, want %d", len(payload.Questions), count)}
	}
	return payload.Questions, nil
}

type assessmentPayload struct {
	Score                  *float64 `json:"score"`
	TechnicalAccuracy      *float64 `json:"technical_accuracy"`
	CommunicationClarity   *float64 `json:"communication_clarity"`
	Completeness           *float64 `json:"completeness"`
	PracticalUnderstanding *float64 `json:"practical_understanding"`
	Feedback               *string  `json:"feedback"`
	Suggestions            *string  `json:"suggestions"`
	Strengths              *string  `json:"strengths"`
	AreasForImprovement    *string  `json:"areas_for_improvement"`
}

func (p assessmentPayload) assessment() (model.Assessment, error) {
	var missing []string
	num := func(name string, v *float64) float64 {
		if v == nil {
			missing = append(missing, name)
			return 0
		}
		return *v
	}
	str := func(name string, v *string) string {
		if v == nil {
			missing = append(missing, name)
			return ""
		}
		return *v
	}

	a := model.Assessment{
		Score:                  num("score", p.Score),
		TechnicalAccuracy:      num("technical_accuracy", p.TechnicalAccuracy),
		CommunicationClarity:   num("communication_clarity", p.CommunicationClarity),
		Completeness:           num("completeness", p.Completeness),
		PracticalUnderstanding: num("practical_understanding", p.PracticalUnderstanding),
		Feedback:               str("feedback", p.Feedback),
		Suggestions:            str("suggestions", p.Suggestions),
		Strengths:              str("strengths", p.Strengths),
		AreasForImprovement:    str("areas_for_improvement", p.AreasForImprovement),
	}
	if len(missing) > 0 {
		return model.Assessment{}, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	return a, nil
}

// ScoreResponse evaluates answer against q. The response must carry every assessment field
// and nothing else.
func (c *Client) ScoreResponse(ctx context.Context, q model.QuestionRecord, answer string) (model.Assessment, error) {
	prompt, err := prompts.BuildEvalPrompt(c.variant, q, answer)
	if err != nil {
		return model.Assessment{}, err
	}
	raw, err := c.complete(ctx, prompt, true, 0.3)
	if err != nil {
		return model.Assessment{}, err
	}

	var payload assessmentPayload
	if err := decodeStrict(raw, &payload); err != nil {
		return model.Assessment{}, &DecodeError{Op: "evaluation", Raw: raw, Err: err}
	}
	a, err := payload.assessment()
	if err != nil {
		return model.Assessment{}, &DecodeError{Op: "evaluation", Raw: raw, Err: err}
	}
	return a, nil
}

// Narrate writes the overall feedback paragraph of a report.
func (c *Client) Narrate(ctx context.Context, evals []model.Evaluation, percentage float64, level model.SkillLevel) (string, error) {
	prompt, err := prompts.BuildFeedbackPrompt(evals, percentage, level)
	if err != nil {
		return "", err
	}
	raw, err := c.complete(ctx, prompt, false, 0.5)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", &DecodeError{Op: "feedback", Raw: raw, Err: errors.New("empty text")}
	}
	return text, nil
}

// Recommend proposes learning recommendations.
func (c *Client) Recommend(ctx context.Context, evals []model.Evaluation, percentage float64, level model.SkillLevel, weakTopics []string) ([]string, error) {
	prompt, err := prompts.BuildRecommendationsPrompt(evals, percentage, level, weakTopics)
	if err != nil {
		return nil, err
	}
	raw, err := c.complete(ctx, prompt, true, 0.5)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Recommendations []string `json:"recommendations"`
	}
	if err := decodeStrict(raw, &payload); err != nil {
		return nil, &DecodeError{Op: "recommendations", Raw: raw, Err: err}
	}
	if len(payload.Recommendations) == 0 {
		return nil, &DecodeError{Op: "recommendations", Raw: raw, Err: errors.New("no recommendations")}
	}
	return payload.Recommendations, nil
}

func (c *Client) complete(ctx context.Context, prompt string, jsonMode bool, temperature float32) (string, error) {
	system, err := prompts.System()
	if err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

func decodeStrict(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON object")
	}
	return nil
}
