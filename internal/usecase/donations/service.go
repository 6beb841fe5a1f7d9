package donations

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"slack-steward/internal/domain"
	"slack-steward/internal/infra/metrics"
)

var (
	// ErrAmountFormat возвращается, если сумма не похожа на $##.##.
	ErrAmountFormat = errors.New("сумма должна быть в формате $##.##, например $20.99")
	// ErrAmountNotPositive возвращается на нулевую или отрицательную сумму.
	ErrAmountNotPositive = errors.New("сумма пожертвования должна быть положительной")
	// ErrDuplicateDonation возвращается при повторной регистрации того же пожертвования.
	ErrDuplicateDonation = errors.New("пожертвование уже зарегистрировано")
	// ErrNotFound возвращается, когда отпечаток не найден ни в одной корзине.
	ErrNotFound = errors.New("пожертвование не найдено")
)

// fingerprintLen — длина короткого идентификатора пожертвования.
const fingerprintLen = 8

// Service — конвейер пожертвований: ожидание подтверждения, ожидание
// публикации, опубликованные. Все три корзины охраняются одним замком:
// локальный мьютекс сериализует горутины процесса, замок репозитория —
// остальные бинарники над той же базой. Отпечаток в каждый момент
// существует максимум в одной корзине. Внешние вызовы (Slack, git)
// никогда не выполняются под замком.
type Service struct {
	repo          domain.DonationRepo
	notifier      domain.Notifier
	users         domain.UserDirectory
	publisher     domain.SitePublisher
	directory     domain.ChannelDirectory
	reviewChannel string
	reportChannel string
	adminChannel  string
	command       string
	log           zerolog.Logger

	mu sync.Mutex
}

// Channels — идентификаторы каналов, в которые сервис пишет.
type Channels struct {
	Review string
	Report string
	Admin  string
}

// NewService создаёт сервис пожертвований. command — имя slash-команды,
// подставляемое в инструкции для администраторов.
func NewService(repo domain.DonationRepo, notifier domain.Notifier, users domain.UserDirectory, publisher domain.SitePublisher, directory domain.ChannelDirectory, channels Channels, command string, logger zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		notifier:      notifier,
		users:         users,
		publisher:     publisher,
		directory:     directory,
		reviewChannel: channels.Review,
		reportChannel: channels.Report,
		adminChannel:  channels.Admin,
		command:       command,
		log:           logger,
	}
}

// ParseAmount разбирает сумму вида "$20.99". Форматирование валидируется
// здесь, до любых изменений состояния.
func ParseAmount(raw string) (float64, error) {
	if !strings.Contains(raw, "$") {
		return 0, ErrAmountFormat
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(raw, "$", "")), 64)
	if err != nil {
		return 0, ErrAmountFormat
	}
	if amount <= 0 {
		return 0, ErrAmountNotPositive
	}
	return amount, nil
}

// Fingerprint строит стабильный короткий идентификатор пожертвования из
// донора, суммы в исходной записи и ссылки на чек.
func Fingerprint(submitter, rawAmount, fileURL string) string {
	sum := sha512.Sum512([]byte(fmt.Sprintf("%s-%s-%s", submitter, rawAmount, fileURL)))
	hexSum := hex.EncodeToString(sum[:])
	return hexSum[len(hexSum)-fingerprintLen:]
}

// Submit регистрирует пожертвование и ставит его в очередь на
// подтверждение. Имя донора резолвится только если он согласился на
// публикацию; иначе запись анонимная.
func (s *Service) Submit(ctx context.Context, submitter, rawAmount, fileURL string, makePublic bool) (string, error) {
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return "", err
	}

	fp := Fingerprint(submitter, rawAmount, fileURL)
	var user *string
	if makePublic {
		name, err := s.users.DisplayName(ctx, submitter)
		if err != nil {
			return "", fmt.Errorf("резолв имени донора: %w", err)
		}
		user = &name
	}

	record := domain.DonationRecord{Amount: amount, FileURL: fileURL, User: user}
	if err := s.insertForConfirmation(ctx, fp, record); err != nil {
		return "", err
	}
	metrics.IncDonationSubmitted()
	s.notifyNewDonation(ctx, fp, record)
	return fp, nil
}

// lock берёт оба замка: мьютекс процесса, затем замок репозитория.
func (s *Service) lock(ctx context.Context) (func(), error) {
	s.mu.Lock()
	release, err := s.repo.Lock(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("замок корзин: %w", err)
	}
	return func() {
		release()
		s.mu.Unlock()
	}, nil
}

// Confirm переводит пожертвование из ожидания подтверждения в очередь
// на публикацию.
func (s *Service) Confirm(ctx context.Context, fp string) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	pending, err := s.repo.LoadBucket(ctx, domain.StatusPendingConfirmation)
	if err != nil {
		return fmt.Errorf("чтение корзины подтверждения: %w", err)
	}
	record, ok := pending[fp]
	if !ok {
		return ErrNotFound
	}
	delete(pending, fp)
	if err := s.repo.SaveBucket(ctx, domain.StatusPendingConfirmation, pending); err != nil {
		return fmt.Errorf("сохранение корзины подтверждения: %w", err)
	}

	toPublish, err := s.repo.LoadBucket(ctx, domain.StatusPendingPublish)
	if err != nil {
		return fmt.Errorf("чтение корзины публикации: %w", err)
	}
	toPublish[fp] = record
	if err := s.repo.SaveBucket(ctx, domain.StatusPendingPublish, toPublish); err != nil {
		return fmt.Errorf("сохранение корзины публикации: %w", err)
	}
	return nil
}

// Amend меняет сумму неподтверждённого пожертвования. Запись остаётся под
// тем же отпечатком, видимость пересчитывается по наличию донора, и
// пожертвование снова требует подтверждения.
func (s *Service) Amend(ctx context.Context, fp, newRawAmount string) error {
	amount, err := ParseAmount(newRawAmount)
	if err != nil {
		return err
	}

	record, err := s.amendLocked(ctx, fp, amount)
	if err != nil {
		return err
	}

	s.notifyNewDonation(ctx, fp, record)
	return nil
}

func (s *Service) amendLocked(ctx context.Context, fp string, amount float64) (domain.DonationRecord, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return domain.DonationRecord{}, err
	}
	defer unlock()

	pending, err := s.repo.LoadBucket(ctx, domain.StatusPendingConfirmation)
	if err != nil {
		return domain.DonationRecord{}, fmt.Errorf("чтение корзины подтверждения: %w", err)
	}
	record, ok := pending[fp]
	if !ok {
		return domain.DonationRecord{}, ErrNotFound
	}
	record.Amount = amount
	pending[fp] = record
	if err := s.repo.SaveBucket(ctx, domain.StatusPendingConfirmation, pending); err != nil {
		return domain.DonationRecord{}, fmt.Errorf("сохранение корзины подтверждения: %w", err)
	}
	return record, nil
}

// Delete убирает пожертвование из той корзины, где оно лежит, и сообщает
// из какой. Корзины проверяются в порядке конвейера. Удаление из
// опубликованных не отзывает уже созданный PR: для этого есть команда
// перепубликации.
func (s *Service) Delete(ctx context.Context, fp string) (domain.DonationStatus, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	for _, status := range []domain.DonationStatus{
		domain.StatusPendingConfirmation,
		domain.StatusPendingPublish,
		domain.StatusPublished,
	} {
		bucket, err := s.repo.LoadBucket(ctx, status)
		if err != nil {
			return "", fmt.Errorf("чтение корзины %s: %w", status, err)
		}
		if _, ok := bucket[fp]; !ok {
			continue
		}
		delete(bucket, fp)
		if err := s.repo.SaveBucket(ctx, status, bucket); err != nil {
			return "", fmt.Errorf("сохранение корзины %s: %w", status, err)
		}
		if status == domain.StatusPublished {
			if err := s.repo.SaveTotal(ctx, sumAmounts(bucket)); err != nil {
				return "", fmt.Errorf("сохранение суммы: %w", err)
			}
		}
		return status, nil
	}
	return "", ErrNotFound
}

// PublishBatch переносит всю очередь на публикацию в опубликованные,
// пересчитывает сумму и запускает ровно одно внешнее действие публикации
// на весь пакет. Пустая очередь без force — ноль внешних вызовов.
// Если внешняя публикация падает, локальный перенос НЕ откатывается:
// состояние чинит команда перепубликации.
func (s *Service) PublishBatch(ctx context.Context, force bool) error {
	published, total, ok, err := s.drainPendingPublish(ctx, force)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	start := time.Now()
	prURL, err := s.publisher.Publish(ctx, published, total)
	metrics.ObservePublish(start, err)
	if err != nil {
		s.warnAdmins(ctx, fmt.Sprintf("Публикация пожертвований не удалась: %v", err))
		return fmt.Errorf("публикация пожертвований: %w", err)
	}

	if err := s.notifier.Send(ctx, s.reviewChannel, "New donation PR:\n"+prURL); err != nil {
		s.log.Warn().Err(err).Msg("donations: не удалось отправить ссылку на PR")
	}
	topic := fmt.Sprintf("Total donations in the Season of Giving: $%.2f", total)
	if err := s.directory.SetTopic(ctx, s.reportChannel, topic); err != nil {
		s.log.Warn().Err(err).Msg("donations: не удалось обновить топик")
	}
	return nil
}

// drainPendingPublish атомарно (для этого сервиса) переносит очередь в
// опубликованные и возвращает снапшот для внешней публикации. Замок
// отпускается до любых внешних вызовов.
func (s *Service) drainPendingPublish(ctx context.Context, force bool) (map[string]domain.DonationRecord, float64, bool, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, 0, false, err
	}
	defer unlock()

	toPublish, err := s.repo.LoadBucket(ctx, domain.StatusPendingPublish)
	if err != nil {
		return nil, 0, false, fmt.Errorf("чтение корзины публикации: %w", err)
	}
	if len(toPublish) == 0 && !force {
		return nil, 0, false, nil
	}

	published, err := s.repo.LoadBucket(ctx, domain.StatusPublished)
	if err != nil {
		return nil, 0, false, fmt.Errorf("чтение опубликованных: %w", err)
	}
	for fp, record := range toPublish {
		published[fp] = record
	}

	if err := s.repo.SaveBucket(ctx, domain.StatusPendingPublish, map[string]domain.DonationRecord{}); err != nil {
		return nil, 0, false, fmt.Errorf("очистка корзины публикации: %w", err)
	}
	if err := s.repo.SaveBucket(ctx, domain.StatusPublished, published); err != nil {
		return nil, 0, false, fmt.Errorf("сохранение опубликованных: %w", err)
	}
	total := sumAmounts(published)
	if err := s.repo.SaveTotal(ctx, total); err != nil {
		return nil, 0, false, fmt.Errorf("сохранение суммы: %w", err)
	}

	snapshot := make(map[string]domain.DonationRecord, len(published))
	for fp, record := range published {
		snapshot[fp] = record
	}
	return snapshot, total, true, nil
}

// Total возвращает сумму опубликованных пожертвований.
func (s *Service) Total(ctx context.Context) (float64, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	published, err := s.repo.LoadBucket(ctx, domain.StatusPublished)
	if err != nil {
		return 0, fmt.Errorf("чтение опубликованных: %w", err)
	}
	return sumAmounts(published), nil
}

// List возвращает три секции: ожидающие подтверждения, ожидающие
// публикации и опубликованные.
func (s *Service) List(ctx context.Context) ([]string, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sections := make([]string, 0, 3)
	for _, part := range []struct {
		title   string
		status  domain.DonationStatus
		withURL bool
	}{
		{"*Donations still needing confirmation:*", domain.StatusPendingConfirmation, true},
		{"*Donations waiting to be recorded:*", domain.StatusPendingPublish, false},
		{"*Published donations:*", domain.StatusPublished, false},
	} {
		bucket, err := s.repo.LoadBucket(ctx, part.status)
		if err != nil {
			return nil, fmt.Errorf("чтение корзины %s: %w", part.status, err)
		}
		sections = append(sections, part.title+"\n"+formatBucket(bucket, part.withURL))
	}
	return sections, nil
}

func (s *Service) insertForConfirmation(ctx context.Context, fp string, record domain.DonationRecord) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	pending, err := s.repo.LoadBucket(ctx, domain.StatusPendingConfirmation)
	if err != nil {
		return fmt.Errorf("чтение корзины подтверждения: %w", err)
	}
	if _, ok := pending[fp]; ok {
		return ErrDuplicateDonation
	}
	pending[fp] = record
	if err := s.repo.SaveBucket(ctx, domain.StatusPendingConfirmation, pending); err != nil {
		return fmt.Errorf("сохранение корзины подтверждения: %w", err)
	}
	return nil
}

func (s *Service) notifyNewDonation(ctx context.Context, fp string, record domain.DonationRecord) {
	text := fmt.Sprintf(
		"New donation:\nAmount: $%.2f\nFile URL: %s\nUser: %s\n\n"+
			"To approve this donation run `%s donation confirm %s`\n"+
			"To change this donation run `%s donation change %s [new amount]`",
		record.Amount, record.FileURL, displayUser(record.User), s.command, fp, s.command, fp,
	)
	if err := s.notifier.Send(ctx, s.reviewChannel, text); err != nil {
		s.log.Warn().Err(err).Str("fingerprint", fp).Msg("donations: не удалось уведомить ревьюеров")
	}
}

func (s *Service) warnAdmins(ctx context.Context, text string) {
	if s.adminChannel == "" {
		return
	}
	if err := s.notifier.Send(ctx, s.adminChannel, text); err != nil {
		s.log.Error().Err(err).Msg("donations: не удалось предупредить администраторов")
	}
}

func sumAmounts(bucket map[string]domain.DonationRecord) float64 {
	total := 0.0
	for _, record := range bucket {
		total += record.Amount
	}
	return total
}

func displayUser(user *string) string {
	if user == nil {
		return "private"
	}
	return *user
}

func formatBucket(bucket map[string]domain.DonationRecord, withURL bool) string {
	fps := make([]string, 0, len(bucket))
	for fp := range bucket {
		fps = append(fps, fp)
	}
	sort.Strings(fps)

	lines := make([]string, 0, len(fps))
	for _, fp := range fps {
		record := bucket[fp]
		line := fmt.Sprintf("%s: %s - $%.2f", fp, displayUser(record.User), record.Amount)
		if withURL && record.FileURL != "" {
			line += " - " + record.FileURL
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
