// Package generator asks a chat-completion model to write multiple-choice questions.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/domain"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama-3.1-8b-instant"
	DefaultTimeout     = 30 * time.Second
	defaultTemperature = 0.7
)

// Config holds the Groq connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries uint64
}

// Groq generates questions through Groq's OpenAI-compatible chat completions API.
type Groq struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	retries uint64
	log     logrus.FieldLogger
}

func NewGroq(cfg Config, log logrus.FieldLogger) (*Groq, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("generator api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = DefaultBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Groq{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		log:     log.WithField("component", "generator"),
	}, nil
}

// Generate returns the questions the model wrote. Transient upstream failures are retried; output
// that is not the requested JSON is not.
func (g *Groq) Generate(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	prompt := buildPrompt(topic, difficulty, count)

	var questions []domain.Question
	op := func() error {
		content, err := g.complete(ctx, prompt)
		if err != nil {
			if transient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		parsed, err := ParseQuestions(content)
		if err != nil {
			return backoff.Permanent(err)
		}
		questions = parsed
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), g.retries), ctx)
	notify := func(err error, wait time.Duration) {
		g.log.WithError(err).WithField("wait", wait).Warn("quiz generation failed, retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, domain.WrapError(domain.KindGenerationFailed, "quiz generation failed", err)
	}
	return questions, nil
}

func (g *Groq) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: defaultTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewError(domain.KindGenerationFailed, "quiz generation returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// transient reports whether another attempt could succeed: timeouts, network errors, 429 and 5xx.
func transient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var de *domain.Error
	return !errors.As(err, &de)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func buildPrompt(topic string, difficulty domain.Difficulty, count int) string {
	return fmt.Sprintf(`Generate exactly %d multiple-choice quiz questions on the topic %q.
Difficulty: %s

Return ONLY valid JSON in this exact format:

[
  {
    "question": "Question text",
    "options": ["Option A", "Option B", "Option C", "Option D"],
    "correctIndex": 0,
    "explanation": "Short explanation",
    "difficulty": "%s"
  }
]`, count, topic, difficulty, difficulty)
}

// ParseQuestions decodes model output into questions. It accepts a bare JSON array, the array inside
// a markdown code fence, or an object with a "questions" array. Questions are not validated here.
func ParseQuestions(content string) ([]domain.Question, error) {
	raw := stripFence(strings.TrimSpace(content))
	if raw == "" {
		return nil, domain.NewError(domain.KindGenerationFailed, "quiz generation returned an empty answer")
	}

	var questions []domain.Question
	if err := json.Unmarshal([]byte(raw), &questions); err == nil {
		return questions, nil
	}
	var wrapped struct {
		Questions []domain.Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.Questions != nil {
		return wrapped.Questions, nil
	}
	// Last resort: the outermost array inside surrounding prose.
	start, end := strings.Index(raw, "["), strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(raw[start:end+1]), &questions); err == nil {
			return questions, nil
		}
	}
	return nil, domain.NewError(domain.KindGenerationFailed, "quiz generation returned malformed JSON")
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

var _ app.Generator = (*Groq)(nil)
