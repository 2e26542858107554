package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hybridrag/internal/ai"
	"hybridrag/internal/cache"
	"hybridrag/internal/engine"
	"hybridrag/internal/metrics"
	"hybridrag/internal/model"
	"hybridrag/internal/retrieval"
)

const (
	RouteEmpty    = "empty"
	RouteKG       = "kg"
	RouteFallback = "fallback"
	RouteHybrid   = "hybrid"
)

const EmptyCorpusAnswer = "No documents indexed. Upload and process PDF documents first."

var (
	ErrGeneration    = errors.New("answer generation failed")
	ErrRetryNotFound = errors.New("retry id not found or expired")
)

// GenerationError reports a failed generation together with the id under
// which the prepared prompt was parked for Retry. It matches ErrGeneration.
type GenerationError struct {
	RetryID string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrGeneration, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// PromptStore parks prepared prompts between a failed generation and its
// retry.
type PromptStore interface {
	Put(ctx context.Context, v any) (string, error)
	Get(ctx context.Context, id string, v any) error
	Delete(ctx context.Context, id string) error
}

// Source is a citation: the page a context chunk came from.
type Source struct {
	DocumentID   uint   `json:"document_id"`
	DocumentName string `json:"document_name"`
	Page         int    `json:"page"`
}

type AskInput struct {
	UserID    uint
	SessionID uint
	Question  string
}

type AskResult struct {
	Route     string          `json:"route"`
	Answer    string          `json:"answer"`
	Sources   []Source        `json:"sources"`
	Ambiguous bool            `json:"ambiguous"`
	History   []model.Message `json:"history"`
}

// pendingAnswer is what a retry needs to finish an answer without
// re-running retrieval.
type pendingAnswer struct {
	UserID    uint            `json:"user_id"`
	SessionID uint            `json:"session_id"`
	Question  string          `json:"question"`
	Route     string          `json:"route"`
	Prompt    ai.Prompt       `json:"prompt"`
	Sources   []Source        `json:"sources"`
	History   []model.Message `json:"history"`
}

// AnswerService routes each question to exactly one answer path: the empty
// corpus notice, a knowledge-graph lookup, literal formula matching or hybrid
// retrieval with generation.
type AnswerService struct {
	engine    *engine.Engine
	chat      *ChatService
	generator ai.Generator
	prompts   PromptStore
	metrics   *metrics.Collector
	logger    *zap.Logger
}

func NewAnswerService(
	eng *engine.Engine,
	chat *ChatService,
	generator ai.Generator,
	prompts PromptStore,
	collector *metrics.Collector,
	logger *zap.Logger,
) *AnswerService {
	if prompts == nil {
		prompts = cache.NewMemoryPromptCache(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerService{
		engine:    eng,
		chat:      chat,
		generator: generator,
		prompts:   prompts,
		metrics:   collector,
		logger:    logger.With(zap.String("component", "answer_service")),
	}
}

func (s *AnswerService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrInvalidInput
	}

	var history []model.Message
	if input.SessionID != 0 {
		if err := s.chat.CheckSession(input.UserID, input.SessionID); err != nil {
			return nil, err
		}
		recent, err := s.chat.RecentTurns(ctx, input.SessionID)
		if err != nil {
			return nil, err
		}
		history = recent
	}

	snap := s.engine.Snapshot()
	fallback := s.engine.Fallback()

	if snap.Empty() {
		return s.finish(ctx, input, question, RouteEmpty, EmptyCorpusAnswer, []Source{}, false, history)
	}

	if answer, ok := snap.LookupEntity(question); ok {
		ambiguous := fallback.Matches(question)
		if ambiguous {
			s.metrics.RecordAmbiguousRoute()
			s.logger.Warn("query matches both kg and fallback routes, answering from kg",
				zap.String("question", question),
				zap.String("entity", answer.Entity),
				zap.Strings("expressions", fallback.Expressions(question)),
			)
		}
		return s.finish(ctx, input, question, RouteKG, answer.Text(), []Source{}, ambiguous, history)
	}

	route := RouteFallback
	chunks := snap.FindLiteral(fallback, question)
	if len(chunks) == 0 {
		route = RouteHybrid
		hits := snap.Retrieve(question)
		chunks = make([]retrieval.Chunk, len(hits))
		for i, h := range hits {
			chunks[i] = h.Chunk
		}
	}

	pending := pendingAnswer{
		UserID:    input.UserID,
		SessionID: input.SessionID,
		Question:  question,
		Route:     route,
		Prompt: ai.Prompt{
			Context: BuildContext(chunks),
			History: toChatMessages(history),
			Query:   question,
		},
		Sources: citations(chunks),
		History: history,
	}
	return s.generate(ctx, pending, "")
}

// Retry re-runs generation for a prompt parked by a failed Ask.
func (s *AnswerService) Retry(ctx context.Context, userID uint, retryID string) (*AskResult, error) {
	retryID = strings.TrimSpace(retryID)
	if retryID == "" {
		return nil, ErrInvalidInput
	}
	var pending pendingAnswer
	if err := s.prompts.Get(ctx, retryID, &pending); err != nil {
		if errors.Is(err, cache.ErrPromptNotFound) {
			return nil, ErrRetryNotFound
		}
		return nil, err
	}
	if pending.UserID != userID {
		return nil, ErrRetryNotFound
	}
	return s.generate(ctx, pending, retryID)
}

func (s *AnswerService) generate(ctx context.Context, pending pendingAnswer, retryID string) (*AskResult, error) {
	start := time.Now()
	text, err := s.generator.Generate(ctx, pending.Prompt)
	s.metrics.RecordGeneration(s.generator.Name(), time.Since(start), err)
	if err != nil {
		if retryID == "" {
			id, putErr := s.prompts.Put(ctx, pending)
			if putErr != nil {
				s.logger.Error("park prompt for retry failed", zap.Error(putErr))
			}
			retryID = id
		}
		s.logger.Warn("generation failed",
			zap.String("route", pending.Route),
			zap.String("provider", s.generator.Name()),
			zap.String("retry_id", retryID),
			zap.Error(err),
		)
		return nil, &GenerationError{RetryID: retryID, Err: err}
	}
	if retryID != "" {
		_ = s.prompts.Delete(ctx, retryID)
	}

	input := AskInput{UserID: pending.UserID, SessionID: pending.SessionID, Question: pending.Question}
	return s.finish(ctx, input, pending.Question, pending.Route, text, pending.Sources, false, pending.History)
}

func (s *AnswerService) finish(
	ctx context.Context,
	input AskInput,
	question, route, answer string,
	sources []Source,
	ambiguous bool,
	history []model.Message,
) (*AskResult, error) {
	s.metrics.RecordRoute(route)
	s.logger.Info("question answered",
		zap.String("route", route),
		zap.Int("sources", len(sources)),
		zap.Bool("ambiguous", ambiguous),
	)

	result := &AskResult{
		Route:     route,
		Answer:    answer,
		Sources:   sources,
		Ambiguous: ambiguous,
		History:   []model.Message{},
	}
	if input.SessionID == 0 {
		return result, nil
	}
	turns, err := s.chat.Record(ctx, input.UserID, input.SessionID, question, answer, route)
	if err != nil {
		return nil, err
	}
	result.History = trimMessages(append(append([]model.Message{}, history...), turns...), s.chat.Window())
	return result, nil
}

// BuildContext lays chunks out as reference blocks for the prompt.
func BuildContext(chunks []retrieval.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "---\nContent: %s\nSource: %s p.%d\n", c.Text, c.DocumentName, c.Page)
	}
	return b.String()
}

// citations lists the distinct pages behind chunks, in context order.
func citations(chunks []retrieval.Chunk) []Source {
	type key struct {
		doc  uint
		page int
	}
	seen := make(map[key]struct{}, len(chunks))
	sources := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		k := key{c.DocumentID, c.Page}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sources = append(sources, Source{DocumentID: c.DocumentID, DocumentName: c.DocumentName, Page: c.Page})
	}
	return sources
}
