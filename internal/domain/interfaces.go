package domain

import (
	"context"
	"time"
)

// Notifier отправляет сообщение в канал. Доставка best-effort:
// вызывающий код сам решает, говорить ли об ошибке пользователю.
type Notifier interface {
	Send(ctx context.Context, channelID, text string) error
}

// UserDirectory резолвит отображаемые имена пользователей.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
	Username(ctx context.Context, userID string) (string, error)
}

// ChannelDirectory — операции с каналами рабочего пространства.
type ChannelDirectory interface {
	ListChannels(ctx context.Context) ([]Channel, error)
	ChannelName(ctx context.Context, channelID string) (string, error)
	Activity(ctx context.Context, channelID string) (ChannelActivity, error)
	Archive(ctx context.Context, channelID string) error
	SetTopic(ctx context.Context, channelID, topic string) error
}

// ChannelLogRepo хранит журнал действий с каналами целиком под одним ключом.
// Lock берёт межпроцессный замок состояния: сервисы запускаются в
// нескольких бинарниках над одной базой, и локальный мьютекс цикл
// "прочитать-изменить-записать" между процессами не сериализует.
type ChannelLogRepo interface {
	Load(ctx context.Context) (ChannelLog, error)
	Save(ctx context.Context, log ChannelLog) error
	Lock(ctx context.Context) (func(), error)
}

// DonationRepo хранит три корзины пожертвований. Каждая корзина
// читается и пишется целиком: транзакций между ключами нет,
// порядок записи ключей фиксирует вызывающий сервис. Lock — тот же
// межпроцессный замок, что и у ChannelLogRepo.
type DonationRepo interface {
	LoadBucket(ctx context.Context, status DonationStatus) (map[string]DonationRecord, error)
	SaveBucket(ctx context.Context, status DonationStatus, bucket map[string]DonationRecord) error
	SaveTotal(ctx context.Context, total float64) error
	Lock(ctx context.Context) (func(), error)
}

// SitePublisher публикует набор пожертвований на сайт и возвращает URL PR.
type SitePublisher interface {
	Publish(ctx context.Context, donations map[string]DonationRecord, total float64) (string, error)
}

// Cache обеспечивает идемпотентность обработки: Once выполняет функцию
// только если ключ ещё не был задан в пределах ttl.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
}
