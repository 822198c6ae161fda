package app

import (
	"context"
	"strings"
	"time"

	"samarpan/internal/domain"

	"github.com/google/uuid"
)

const (
	DefaultQuestionCount = 5
	MaxQuestionCount     = 20
	defaultAITitle       = "AI Quiz"
	defaultListLimit     = 20
	maxListLimit         = 100
)

// Generator synthesizes questions with an external language model.
type Generator interface {
	Generate(ctx context.Context, topic string, difficulty domain.Difficulty, count int) ([]domain.Question, error)
}

// QuizDraft is a manually authored quiz. AuthorID is an already resolved user id or empty.
type QuizDraft struct {
	Title     string
	Topic     string
	AuthorID  string
	Questions []domain.Question
	Tags      []string
}

// GenerationDraft describes a quiz to be generated by the language model.
type GenerationDraft struct {
	Title      string
	Topic      string
	Difficulty domain.Difficulty
	Count      int
	AuthorID   string
	Tags       []string
}

// QuizService contains the quiz authoring use cases.
type QuizService struct {
	quizzes   QuizRepository
	generator Generator
	now       func() time.Time
	newID     func() string
}

// NewQuizService wires the quiz use cases; generator may be nil when generation is not configured.
func NewQuizService(quizzes QuizRepository, generator Generator) *QuizService {
	return &QuizService{
		quizzes:   quizzes,
		generator: generator,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// CreateQuiz validates and stores a manually authored quiz.
func (s *QuizService) CreateQuiz(ctx context.Context, draft QuizDraft) (domain.Quiz, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return domain.Quiz{}, domain.NewError(domain.KindValidation, "quiz title is required")
	}
	if len(draft.Questions) == 0 {
		return domain.Quiz{}, domain.NewError(domain.KindValidation, "a quiz needs at least one question")
	}
	questions := make([]domain.Question, len(draft.Questions))
	for i, q := range draft.Questions {
		q.Options = append([]string(nil), q.Options...)
		if err := q.Validate(); err != nil {
			return domain.Quiz{}, err
		}
		questions[i] = q
	}
	topic := strings.TrimSpace(draft.Topic)
	quiz := domain.Quiz{
		ID:          s.newID(),
		Title:       title,
		Topic:       topic,
		AuthorID:    draft.AuthorID,
		Questions:   questions,
		AIGenerated: false,
		Tags:        normalizeTags(draft.Tags, topic),
		CreatedAt:   s.now(),
	}
	if err := s.quizzes.InsertQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// GenerateQuiz asks the generator for questions and stores them as an AI-generated quiz.
// Output that fails validation is a generation failure; nothing is persisted.
func (s *QuizService) GenerateQuiz(ctx context.Context, draft GenerationDraft) (domain.Quiz, error) {
	topic := strings.TrimSpace(draft.Topic)
	if topic == "" {
		return domain.Quiz{}, domain.NewError(domain.KindValidation, "topic is required")
	}
	difficulty := draft.Difficulty
	if difficulty == "" {
		difficulty = domain.DifficultyMedium
	}
	if !difficulty.Valid() {
		return domain.Quiz{}, domain.NewError(domain.KindValidation, "difficulty must be easy, medium or hard")
	}
	count := draft.Count
	if count == 0 {
		count = DefaultQuestionCount
	}
	if count < 1 || count > MaxQuestionCount {
		return domain.Quiz{}, domain.NewError(domain.KindValidation, "count must be between 1 and 20")
	}
	if s.generator == nil {
		return domain.Quiz{}, domain.NewError(domain.KindGenerationFailed, "quiz generation is not configured")
	}

	generated, err := s.generator.Generate(ctx, topic, difficulty, count)
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			return domain.Quiz{}, domain.WrapError(domain.KindGenerationFailed, "quiz generation failed", err)
		}
		return domain.Quiz{}, err
	}
	if len(generated) == 0 {
		return domain.Quiz{}, domain.NewError(domain.KindGenerationFailed, "quiz generation returned no questions")
	}
	if len(generated) > count {
		generated = generated[:count]
	}
	for i := range generated {
		if generated[i].Difficulty == "" {
			generated[i].Difficulty = difficulty
		}
		if err := generated[i].Validate(); err != nil {
			return domain.Quiz{}, domain.WrapError(domain.KindGenerationFailed, "quiz generation returned a malformed question", err)
		}
	}

	title := strings.TrimSpace(draft.Title)
	if title == "" {
		title = defaultAITitle
	}
	quiz := domain.Quiz{
		ID:          s.newID(),
		Title:       title,
		Topic:       topic,
		AuthorID:    draft.AuthorID,
		Questions:   generated,
		AIGenerated: true,
		Tags:        normalizeTags(draft.Tags, topic),
		CreatedAt:   s.now(),
	}
	if err := s.quizzes.InsertQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// GetQuiz returns a quiz by id.
func (s *QuizService) GetQuiz(ctx context.Context, id string) (domain.Quiz, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Quiz{}, domain.NewError(domain.KindValidation, "quiz id is required")
	}
	return s.quizzes.GetQuiz(ctx, id)
}

// ListPublic returns the most recent quizzes, newest first.
func (s *QuizService) ListPublic(ctx context.Context, limit int) ([]domain.Quiz, error) {
	return s.quizzes.ListQuizzes(ctx, clampLimit(limit))
}

// normalizeTags lower-cases and de-duplicates tags; an empty set falls back to the topic.
func normalizeTags(tags []string, topic string) []string {
	if len(tags) == 0 && topic != "" {
		tags = []string{topic}
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
