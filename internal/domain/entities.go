package domain

import "fmt"

// ChannelAction описывает событие жизненного цикла канала.
type ChannelAction string

const (
	ActionCreate    ChannelAction = "create"
	ActionArchive   ChannelAction = "archive"
	ActionDelete    ChannelAction = "delete"
	ActionUnarchive ChannelAction = "unarchive"
)

// ChannelEvent — одна запись в журнале действий с каналами.
// Rendered строится один раз при создании и дальше не меняется.
type ChannelEvent struct {
	Channel   string        `json:"channel"`
	User      *string       `json:"user"`
	Action    ChannelAction `json:"action"`
	Timestamp int64         `json:"timestamp"`
	Rendered  string        `json:"string_repr"`
}

// NewChannelEvent создаёт событие и его строковое представление.
// Формат намеренно механический: к глаголу просто добавляется "d"
// ("archive" -> "archived", "delete" -> "deleted").
func NewChannelEvent(channel string, user *string, action ChannelAction, ts int64) ChannelEvent {
	actor := "someone"
	if user != nil {
		actor = *user
	}
	return ChannelEvent{
		Channel:   channel,
		User:      user,
		Action:    action,
		Timestamp: ts,
		Rendered:  fmt.Sprintf("%d: %s %sd %s.", ts, actor, action, channel),
	}
}

// ChannelLog — журнал событий, сгруппированный по календарным дням.
// Ключ — дата в формате ISO (2006-01-02), значения упорядочены по времени вставки.
type ChannelLog map[string][]ChannelEvent

// DonationStatus — стадия пожертвования в конвейере публикации.
type DonationStatus string

const (
	StatusPendingConfirmation DonationStatus = "pending_confirmation"
	StatusPendingPublish      DonationStatus = "pending_publish"
	StatusPublished           DonationStatus = "published"
)

// DonationRecord хранит одно пожертвование. User == nil означает,
// что донор попросил не публиковать его имя.
type DonationRecord struct {
	Amount  float64 `json:"amount"`
	FileURL string  `json:"file_url"`
	User    *string `json:"user"`
}

// Channel — метаданные канала Slack, достаточные для решения об архивации.
type Channel struct {
	ID         string
	Name       string
	Creator    string
	Created    int64
	IsArchived bool
	IsChannel  bool
	IsGeneral  bool
	NumMembers int
}

// ChannelActivity — сырые данные об активности канала от внешнего API.
// Latest — маркер последней активности (0, если API его не вернул),
// MessageTimestamps — метки последних сообщений, самые новые первыми.
type ChannelActivity struct {
	Latest            int64
	MessageTimestamps []int64
}
