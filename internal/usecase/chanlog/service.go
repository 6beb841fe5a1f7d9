package chanlog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"slack-steward/internal/domain"
	"slack-steward/internal/infra/metrics"
)

const dateLayout = "2006-01-02"

// Service ведёт журнал действий с каналами: пополнение, печать и чистку.
// Все изменения журнала идут через один замок: взять замок, прочитать
// журнал целиком, изменить, записать целиком, отпустить. Мьютекс
// сериализует горутины процесса, замок репозитория — остальные бинарники
// над той же базой. Внешние вызовы под замком не выполняются.
type Service struct {
	repo           domain.ChannelLogRepo
	notifier       domain.Notifier
	monitorChannel string
	adminChannel   string
	log            zerolog.Logger
	now            func() time.Time

	mu sync.Mutex
}

// NewService создаёт сервис журнала. monitorChannel и adminChannel могут
// быть пустыми, тогда пересылки и предупреждения не отправляются.
func NewService(repo domain.ChannelLogRepo, notifier domain.Notifier, monitorChannel, adminChannel string, logger zerolog.Logger) *Service {
	return &Service{
		repo:           repo,
		notifier:       notifier,
		monitorChannel: monitorChannel,
		adminChannel:   adminChannel,
		log:            logger,
		now:            time.Now,
	}
}

// lock берёт оба замка: мьютекс процесса, затем замок репозитория.
func (s *Service) lock(ctx context.Context) (func(), error) {
	s.mu.Lock()
	release, err := s.repo.Lock(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("замок журнала: %w", err)
	}
	return func() {
		release()
		s.mu.Unlock()
	}, nil
}

// EnsureToday создаёт пустую корзину на сегодня, если журнал ещё пуст.
func (s *Service) EnsureToday(ctx context.Context) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	chanLog, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("чтение журнала: %w", err)
	}
	if len(chanLog) > 0 {
		return nil
	}
	chanLog = domain.ChannelLog{s.today(): {}}
	if err := s.repo.Save(ctx, chanLog); err != nil {
		return fmt.Errorf("сохранение журнала: %w", err)
	}
	return nil
}

// Record добавляет событие в сегодняшнюю корзину и best-effort пересылает
// его строковое представление в канал мониторинга. Ошибка пересылки
// никогда не роняет вызывающего.
func (s *Service) Record(ctx context.Context, channel string, user *string, action domain.ChannelAction, ts int64) error {
	ev := domain.NewChannelEvent(channel, user, action, ts)
	metrics.IncChannelEvent(string(action))

	if s.monitorChannel != "" {
		if err := s.notifier.Send(ctx, s.monitorChannel, ev.Rendered); err != nil {
			s.log.Warn().Err(err).Str("channel", channel).Msg("chanlog: не удалось переслать событие")
		}
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	chanLog, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("чтение журнала: %w", err)
	}
	if chanLog == nil {
		chanLog = domain.ChannelLog{}
	}
	today := s.today()
	chanLog[today] = append(chanLog[today], ev)
	if err := s.repo.Save(ctx, chanLog); err != nil {
		return fmt.Errorf("сохранение журнала: %w", err)
	}
	return nil
}

// Render возвращает по одному отформатированному блоку на корзину,
// от старых дат к новым. Пустой журнал — пустой срез.
func (s *Service) Render(ctx context.Context) ([]string, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	chanLog, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("чтение журнала: %w", err)
	}

	days := make([]string, 0, len(chanLog))
	for day := range chanLog {
		days = append(days, day)
	}
	sort.Strings(days)

	blocks := make([]string, 0, len(days))
	for _, day := range days {
		lines := make([]string, 0, len(chanLog[day]))
		for _, ev := range chanLog[day] {
			lines = append(lines, ev.Rendered)
		}
		blocks = append(blocks, fmt.Sprintf("*%s*\n%s", day, strings.Join(lines, "\n")))
	}
	return blocks, nil
}

// Prune чистит журнал в два независимых шага. Сначала, если самая старая
// корзина старше retentionDays суток, удаляется только она одна. Затем
// удаляются все пустые корзины, кроме сегодняшней.
func (s *Service) Prune(ctx context.Context, retentionDays int) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	chanLog, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("чтение журнала: %w", err)
	}
	if len(chanLog) == 0 {
		return nil
	}

	earliest := ""
	for day := range chanLog {
		if earliest == "" || day < earliest {
			earliest = day
		}
	}
	if bucketStart, err := time.Parse(dateLayout, earliest); err == nil {
		if s.now().UTC().Sub(bucketStart) > time.Duration(retentionDays)*24*time.Hour {
			delete(chanLog, earliest)
		}
	}

	today := s.today()
	for day, events := range chanLog {
		if len(events) == 0 && day != today {
			delete(chanLog, day)
		}
	}

	if err := s.repo.Save(ctx, chanLog); err != nil {
		return fmt.Errorf("сохранение журнала: %w", err)
	}
	return nil
}

// Clean предупреждает администраторов о ручной чистке и затем запускает
// Prune. Ошибка предупреждения чистку не отменяет.
func (s *Service) Clean(ctx context.Context, actor string, retentionDays int) error {
	if s.adminChannel != "" {
		msg := fmt.Sprintf("<@%s> is clearing Channel Monitor logs for %d", actor, retentionDays)
		if err := s.notifier.Send(ctx, s.adminChannel, msg); err != nil {
			s.log.Warn().Err(err).Str("actor", actor).Msg("chanlog: не удалось предупредить администраторов")
		}
	}
	return s.Prune(ctx, retentionDays)
}

func (s *Service) today() string {
	return s.now().UTC().Format(dateLayout)
}
