package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"slack-steward/internal/domain"
	"slack-steward/internal/infra/metrics"
)

// Config — параметры политики архивации.
type Config struct {
	MinAge        time.Duration
	MaxInactivity time.Duration
	MaxMembers    int
	Whitelist     []string
	AdminChannel  string
}

// Service обходит каналы рабочего пространства и архивирует неактивные.
type Service struct {
	directory domain.ChannelDirectory
	notifier  domain.Notifier
	templates Templates
	cfg       Config
	wl        Whitelist
	log       zerolog.Logger
	now       func() time.Time
}

// NewService создаёт сервис архивации.
func NewService(directory domain.ChannelDirectory, notifier domain.Notifier, templates Templates, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		directory: directory,
		notifier:  notifier,
		templates: templates,
		cfg:       cfg,
		wl:        NewWhitelist(cfg.Whitelist),
		log:       logger,
		now:       time.Now,
	}
}

// Sweep обходит все каналы и архивирует подходящие. Ошибка архивации
// одного канала не прерывает обход: о ней узнают администраторы.
func (s *Service) Sweep(ctx context.Context, dryRun bool) error {
	channels, err := s.directory.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("список каналов: %w", err)
	}

	now := s.now()
	for _, ch := range channels {
		eligible, err := s.shouldArchive(ctx, ch, now)
		if err != nil {
			s.log.Warn().Err(err).Str("channel", ch.Name).Msg("archive: не удалось получить активность")
			continue
		}
		if !eligible {
			continue
		}
		metrics.IncArchiveDecision(dryRun)
		s.archiveChannel(ctx, ch, dryRun)
	}
	return nil
}

func (s *Service) shouldArchive(ctx context.Context, ch domain.Channel, now time.Time) (bool, error) {
	// Сентинел — самое "архивируемое" значение активности. Если канал не
	// проходит даже с ним, за историей можно не ходить.
	if !ShouldArchive(ch, s.wl, s.cfg.MinAge, s.cfg.MaxInactivity, s.cfg.MaxMembers, now, noActivity) {
		return false, nil
	}
	activity, err := s.directory.Activity(ctx, ch.ID)
	if err != nil {
		return false, fmt.Errorf("активность %s: %w", ch.Name, err)
	}
	return ShouldArchive(ch, s.wl, s.cfg.MinAge, s.cfg.MaxInactivity, s.cfg.MaxMembers, now, LastActivity(activity)), nil
}

// archiveChannel шлёт уведомление в канал до вызова API и архивирует
// канал, если это не dry run. Ошибка API — не фатальная: о ней
// сообщается администраторам, обход продолжается.
func (s *Service) archiveChannel(ctx context.Context, ch domain.Channel, dryRun bool) {
	if err := s.notifier.Send(ctx, ch.ID, s.templates.Text(dryRun)); err != nil {
		s.log.Warn().Err(err).Str("channel", ch.Name).Msg("archive: не удалось отправить уведомление")
	}
	if dryRun {
		return
	}
	if err := s.directory.Archive(ctx, ch.ID); err != nil {
		s.warnAdmins(ctx, fmt.Sprintf("Tried to archive channel %s and hit an error: %v", ch.Name, err))
	}
}

func (s *Service) warnAdmins(ctx context.Context, text string) {
	if s.cfg.AdminChannel == "" {
		return
	}
	if err := s.notifier.Send(ctx, s.cfg.AdminChannel, text); err != nil {
		s.log.Error().Err(err).Msg("archive: не удалось предупредить администраторов")
	}
}
