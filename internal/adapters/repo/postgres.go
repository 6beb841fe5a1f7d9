package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"slack-steward/internal/domain"
	"slack-steward/internal/infra/metrics"
)

// Ключи состояния плагинов в таблице plugin_state.
const (
	keyChannelLog          = "channel_action_log"
	keyPendingConfirmation = "donations_pending_confirmation"
	keyPendingPublish      = "donations_pending_publish"
	keyPublished           = "donations_published"
	keyDonationTotal       = "donation_total"
)

// stateLockID — advisory-замок состояния плагинов. Несколько бинарников
// работают над одними и теми же строками plugin_state, цикл
// "прочитать-изменить-записать" сериализуется через него.
const stateLockID int64 = 7308552401

// Postgres хранит состояние плагинов в jsonb-таблице plugin_state.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ChannelLogRepo = (*Postgres)(nil)
	_ domain.DonationRepo   = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Init создаёт таблицу состояния, если её ещё нет.
func (p *Postgres) Init(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS plugin_state (
    key        text PRIMARY KEY,
    value      jsonb NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now()
)
`)
	metrics.ObserveNetworkRequest("postgres", "init_schema", "plugin_state", start, err)
	if err != nil {
		return fmt.Errorf("создаём таблицу plugin_state: %w", err)
	}
	return nil
}

// Lock берёт сессионный advisory-замок на выделенном соединении пула.
// Возвращённая функция отпускает замок и соединение; сам замок ничего
// не знает о ключах — он один на всё состояние плагинов.
func (p *Postgres) Lock(ctx context.Context) (func(), error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("соединение для замка: %w", err)
	}

	start := time.Now()
	_, err = conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, stateLockID)
	metrics.ObserveNetworkRequest("postgres", "advisory_lock", "plugin_state", start, err)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("берём advisory-замок: %w", err)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Сессионный замок умирает вместе с сессией, поэтому ошибка
		// разблокировки не критична для корректности.
		_, _ = conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, stateLockID)
		conn.Release()
	}
	return release, nil
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func (p *Postgres) loadValue(ctx context.Context, key string, dest any) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM plugin_state WHERE key=$1`, key).Scan(&raw)
	metrics.ObserveNetworkRequest("postgres", "load_state", key, start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("читаем состояние %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("декодируем состояние %s: %w", key, err)
	}
	return true, nil
}

func (p *Postgres) saveValue(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("кодируем состояние %s: %w", key, err)
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO plugin_state(key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
`, key, raw)
	metrics.ObserveNetworkRequest("postgres", "save_state", key, start, err)
	if err != nil {
		return fmt.Errorf("сохраняем состояние %s: %w", key, err)
	}
	return nil
}

// Load возвращает журнал действий с каналами.
func (p *Postgres) Load(ctx context.Context) (domain.ChannelLog, error) {
	log := domain.ChannelLog{}
	if _, err := p.loadValue(ctx, keyChannelLog, &log); err != nil {
		return nil, err
	}
	return log, nil
}

// Save записывает журнал действий с каналами.
func (p *Postgres) Save(ctx context.Context, log domain.ChannelLog) error {
	return p.saveValue(ctx, keyChannelLog, log)
}

// LoadBucket возвращает корзину пожертвований для статуса.
func (p *Postgres) LoadBucket(ctx context.Context, status domain.DonationStatus) (map[string]domain.DonationRecord, error) {
	key, err := bucketKey(status)
	if err != nil {
		return nil, err
	}
	bucket := map[string]domain.DonationRecord{}
	if _, err := p.loadValue(ctx, key, &bucket); err != nil {
		return nil, err
	}
	return bucket, nil
}

// SaveBucket записывает корзину пожертвований для статуса.
func (p *Postgres) SaveBucket(ctx context.Context, status domain.DonationStatus, bucket map[string]domain.DonationRecord) error {
	key, err := bucketKey(status)
	if err != nil {
		return err
	}
	return p.saveValue(ctx, key, bucket)
}

// SaveTotal записывает накопленную сумму опубликованных пожертвований.
func (p *Postgres) SaveTotal(ctx context.Context, total float64) error {
	return p.saveValue(ctx, keyDonationTotal, total)
}

func bucketKey(status domain.DonationStatus) (string, error) {
	switch status {
	case domain.StatusPendingConfirmation:
		return keyPendingConfirmation, nil
	case domain.StatusPendingPublish:
		return keyPendingPublish, nil
	case domain.StatusPublished:
		return keyPublished, nil
	default:
		return "", fmt.Errorf("неизвестный статус пожертвования: %q", status)
	}
}
