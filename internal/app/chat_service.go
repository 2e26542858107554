package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"hybridrag/internal/ai"
	"hybridrag/internal/model"
	"hybridrag/internal/repository"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageEnqueue  = errors.New("message enqueue failed")
)

// ChatService manages sessions and the recorded turns the answer service
// reads its generation history from.
type ChatService struct {
	sessionRepo  *repository.SessionRepository
	messageRepo  *repository.MessageRepository
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
	window       int
	logger       *zap.Logger

	clockMu   sync.Mutex
	lastStamp time.Time
	now       func() time.Time
}

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.Message) error
	AppendHistory(ctx context.Context, sessionID uint, messages ...model.Message) error
	DeleteHistory(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

type CreateSessionInput struct {
	UserID uint
	Title  string
}

// NewChatService keeps historyExchanges question/answer pairs as generation
// history. historyCache may be nil.
func NewChatService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	historyExchanges int,
	logger *zap.Logger,
) *ChatService {
	if historyExchanges <= 0 {
		historyExchanges = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		publisher:    publisher,
		historyCache: historyCache,
		window:       historyExchanges * 2,
		logger:       logger.With(zap.String("component", "chat_service")),
		now:          time.Now,
	}
}

// Window is the number of turns kept as generation history.
func (s *ChatService) Window() int {
	return s.window
}

func (s *ChatService) CreateSession(input CreateSessionInput) (*model.Session, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}
	if len([]rune(title)) > 128 {
		title = string([]rune(title)[:128])
	}

	session := &model.Session{
		UserID: input.UserID,
		Title:  title,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(userID uint) ([]model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(userID)
}

func (s *ChatService) DeleteSession(userID, sessionID uint) error {
	if err := s.CheckSession(userID, sessionID); err != nil {
		return err
	}
	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(context.Background(), sessionID)
	}
	return nil
}

// CheckSession fails with ErrSessionNotFound unless userID owns sessionID.
func (s *ChatService) CheckSession(userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	return nil
}

// GetHistory lists the full stored conversation, oldest first.
func (s *ChatService) GetHistory(userID, sessionID uint, limit int) ([]model.Message, error) {
	if err := s.CheckSession(userID, sessionID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListBySessionID(sessionID, limit)
}

// RecentTurns returns the generation window of a session, oldest first.
func (s *ChatService) RecentTurns(ctx context.Context, sessionID uint) ([]model.Message, error) {
	if sessionID == 0 {
		return []model.Message{}, nil
	}

	dirty := true
	if s.historyCache != nil {
		var err error
		dirty, err = s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return trimMessages(cached, s.window), nil
			}
		}
	}

	messages, err := s.messageRepo.ListRecentBySessionID(sessionID, s.window)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil && !dirty {
		if err := s.historyCache.SetHistory(ctx, sessionID, messages); err != nil {
			s.logger.Debug("cache history failed", zap.Uint("session_id", sessionID), zap.Error(err))
		}
	}
	return messages, nil
}

// Record persists one question/answer exchange and bumps the session.
func (s *ChatService) Record(ctx context.Context, userID, sessionID uint, question, answer, route string) ([]model.Message, error) {
	if s.publisher == nil {
		return nil, ErrMessageEnqueue
	}
	turns := []model.Message{
		{SessionID: sessionID, UserID: userID, Role: model.RoleUser, Content: question, CreatedAt: s.stamp()},
		{SessionID: sessionID, UserID: userID, Role: model.RoleAssistant, Content: answer, Route: route, CreatedAt: s.stamp()},
	}
	for _, turn := range turns {
		if err := s.publisher.Publish(ctx, turn); err != nil {
			s.logger.Error("enqueue chat turn failed", zap.Uint("session_id", sessionID), zap.Error(err))
			return nil, ErrMessageEnqueue
		}
	}
	if s.historyCache != nil {
		_ = s.historyCache.AppendHistory(ctx, sessionID, turns...)
	}
	if err := s.sessionRepo.Touch(sessionID); err != nil {
		s.logger.Warn("touch session failed", zap.Uint("session_id", sessionID), zap.Error(err))
	}
	return turns, nil
}

// stamp returns a timestamp strictly after every earlier one, at
// millisecond precision so it survives DATETIME(3) columns.
func (s *ChatService) stamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	t := s.now().Truncate(time.Millisecond)
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Millisecond)
	}
	s.lastStamp = t
	return t
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

// toChatMessages maps stored turns onto generator history.
func toChatMessages(messages []model.Message) []ai.ChatMessage {
	out := make([]ai.ChatMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = model.RoleUser
		}
		out = append(out, ai.ChatMessage{Role: role, Content: m.Content})
	}
	return out
}
