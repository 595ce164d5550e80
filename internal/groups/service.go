package groups

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/irizigit/whatsapbootirizi/internal/wweb"
	"log/slog"

	gocache "github.com/patrickmn/go-cache"
)

var (
	// ErrNoDefaultGroup — бот ещё не видел ни одной группы.
	ErrNoDefaultGroup = errors.New("no default group known")
	// ErrBotNotAdmin — переключение режима группы требует прав администратора.
	ErrBotNotAdmin = errors.New("bot is not an admin of the group")
)

type ServiceConfig struct {
	Client        wweb.Client
	OwnerID       string
	AdminCacheTTL time.Duration
	Logger        *slog.Logger
}

// Service отслеживает известные группы, проверяет права администраторов и
// выполняет открытие/закрытие группы по умолчанию.
//
// Группа по умолчанию — первая группа, увиденная при старте; обновляется,
// когда бота добавляют в новую группу.
type Service struct {
	client  wweb.Client
	ownerID string
	logger  *slog.Logger

	// participants кэшируется с TTL: проверки прав идут на каждое сообщение.
	participants *gocache.Cache

	mu           sync.RWMutex
	selfID       string
	defaultGroup string
	names        map[string]string
}

func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.AdminCacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Service{
		client:       cfg.Client,
		ownerID:      cfg.OwnerID,
		logger:       cfg.Logger,
		participants: gocache.New(ttl, 2*ttl),
		names:        make(map[string]string),
	}
}

// Bootstrap запрашивает у моста собственный идентификатор бота и список
// групп, выбирая первую группу как группу по умолчанию.
func (s *Service) Bootstrap(ctx context.Context) error {
	selfID, err := s.client.GetSelfID(ctx)
	if err != nil {
		return fmt.Errorf("get self id: %w", err)
	}

	chats, err := s.client.GetGroups(ctx)
	if err != nil {
		return fmt.Errorf("get groups: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = selfID
	for _, chat := range chats {
		s.names[chat.ID] = chat.Name
		if s.defaultGroup == "" {
			s.defaultGroup = chat.ID
		}
	}
	return nil
}

// Remember фиксирует группу (например, при добавлении бота) и делает её
// группой по умолчанию.
func (s *Service) Remember(groupID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultGroup = groupID
	if name != "" {
		s.names[groupID] = name
	}
}

func (s *Service) DefaultGroup() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultGroup, s.defaultGroup != ""
}

func (s *Service) OwnerID() string {
	return s.ownerID
}

// IsAdmin сообщает, является ли пользователь администратором группы.
// При ошибке моста отвечает false: сомнение трактуется как отсутствие прав.
func (s *Service) IsAdmin(ctx context.Context, userID, groupID string) bool {
	parts, err := s.groupParticipants(ctx, groupID)
	if err != nil {
		s.logger.Error("participants lookup failed", slog.String("group", groupID), slog.String("error", err.Error()))
		return false
	}
	for _, p := range parts {
		if p.ID == userID && (p.IsAdmin || p.IsSuperAdmin) {
			return true
		}
	}
	return false
}

// IsBotAdmin проверяет права самого бота в группе.
func (s *Service) IsBotAdmin(ctx context.Context, groupID string) bool {
	s.mu.RLock()
	selfID := s.selfID
	s.mu.RUnlock()
	if selfID == "" {
		return false
	}
	return s.IsAdmin(ctx, selfID, groupID)
}

// SetLocked переключает режим "только администраторы" у группы.
func (s *Service) SetLocked(ctx context.Context, groupID string, locked bool) error {
	if !s.IsBotAdmin(ctx, groupID) {
		return fmt.Errorf("group %s: %w", groupID, ErrBotNotAdmin)
	}
	if err := s.client.SetGroupLocked(ctx, groupID, locked); err != nil {
		return fmt.Errorf("set group locked: %w", err)
	}
	return nil
}

// SetDefaultLocked — вариант SetLocked для группы по умолчанию; используется
// планировщиком. Отсутствие группы — штатная ситуация, не ошибка.
func (s *Service) SetDefaultLocked(ctx context.Context, locked bool) error {
	groupID, ok := s.DefaultGroup()
	if !ok {
		return ErrNoDefaultGroup
	}
	return s.SetLocked(ctx, groupID, locked)
}

// IsLocked сообщает, закрыта ли группа (режим "только администраторы").
func (s *Service) IsLocked(ctx context.Context, groupID string) (bool, error) {
	chat, err := s.client.GetChat(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("get chat: %w", err)
	}
	return chat.IsReadOnly, nil
}

// NotifyAdmins доставляет текст каждому администратору группы по умолчанию;
// если группы нет, пишет владельцу.
func (s *Service) NotifyAdmins(ctx context.Context, text string) {
	groupID, ok := s.DefaultGroup()
	if !ok {
		if s.ownerID != "" {
			s.send(ctx, s.ownerID, text)
		}
		return
	}

	parts, err := s.groupParticipants(ctx, groupID)
	if err != nil {
		s.logger.Error("notify admins failed", slog.String("group", groupID), slog.String("error", err.Error()))
		return
	}
	for _, p := range parts {
		if p.IsAdmin || p.IsSuperAdmin {
			s.send(ctx, p.ID, text)
		}
	}
}

// Broadcast отправляет текст во все известные группы, где бот администратор.
func (s *Service) Broadcast(ctx context.Context, text string) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.names))
	for id := range s.names {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if !s.IsBotAdmin(ctx, id) {
			continue
		}
		s.send(ctx, id, text)
	}
}

func (s *Service) send(ctx context.Context, chatID, text string) {
	if err := s.client.SendMessage(ctx, chatID, text); err != nil {
		s.logger.Error("send message failed", slog.String("chat", chatID), slog.String("error", err.Error()))
	}
}

func (s *Service) groupParticipants(ctx context.Context, groupID string) ([]wweb.Participant, error) {
	if cached, ok := s.participants.Get(groupID); ok {
		return cached.([]wweb.Participant), nil
	}
	parts, err := s.client.GetParticipants(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.participants.SetDefault(groupID, parts)
	return parts, nil
}
