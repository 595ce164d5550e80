package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/irizigit/whatsapbootirizi/internal/groups"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Gate — операции над группой по умолчанию, которые дергает расписание.
type Gate interface {
	SetDefaultLocked(ctx context.Context, locked bool) error
	DefaultGroup() (string, bool)
}

// Sender отправляет текст в чат; используется для объявлений в группе.
type Sender interface {
	SendMessage(ctx context.Context, chatID string, text string) error
}

type Config struct {
	Gate      Gate
	Sender    Sender
	CloseCron string
	OpenCron  string
	Logger    *slog.Logger
}

// Scheduler закрывает группу вечером и открывает утром по cron-расписанию.
type Scheduler struct {
	gate   Gate
	sender Sender
	cron   *cron.Cron
	logger *slog.Logger

	closeSpec string
	openSpec  string
}

func New(cfg Config) *Scheduler {
	return &Scheduler{
		gate:      cfg.Gate,
		sender:    cfg.Sender,
		cron:      cron.New(),
		logger:    cfg.Logger,
		closeSpec: cfg.CloseCron,
		openSpec:  cfg.OpenCron,
	}
}

// Start регистрирует оба триггера и запускает планировщик.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.closeSpec, func() { s.toggle(true) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.openSpec, func() { s.toggle(false) }); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) toggle(locked bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.gate.SetDefaultLocked(ctx, locked); err != nil {
		switch {
		case errors.Is(err, groups.ErrNoDefaultGroup):
			// Бот ещё не видел группу: пропускаем срабатывание.
			s.logger.Warn("schedule skipped: no default group", slog.Bool("locked", locked))
		default:
			s.logger.Error("schedule toggle failed", slog.Bool("locked", locked), slog.String("error", err.Error()))
		}
		return
	}

	groupID, _ := s.gate.DefaultGroup()
	text := "☀️ Группа открыта: писать могут все."
	if locked {
		text = "🌙 Группа закрыта на ночь: писать могут только администраторы."
	}
	if err := s.sender.SendMessage(ctx, groupID, text); err != nil {
		s.logger.Error("schedule announcement failed", slog.String("group", groupID), slog.String("error", err.Error()))
	}

	s.logger.Info("group gate toggled by schedule", slog.String("group", groupID), slog.Bool("locked", locked))
}
