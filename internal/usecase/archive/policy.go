package archive

import (
	"time"

	"slack-steward/internal/domain"
)

// noActivity — сентинел "активности не было никогда": меньше любой
// реальной метки времени, поэтому канал без единого сообщения всегда
// проходит проверку неактивности.
const noActivity int64 = 0

// Whitelist — множество имён и идентификаторов каналов, которые
// никогда не архивируются.
type Whitelist map[string]struct{}

// NewWhitelist строит множество из списка имён/идентификаторов.
func NewWhitelist(entries []string) Whitelist {
	wl := make(Whitelist, len(entries))
	for _, e := range entries {
		wl[e] = struct{}{}
	}
	return wl
}

// Contains сообщает, есть ли запись в белом списке.
func (w Whitelist) Contains(entry string) bool {
	_, ok := w[entry]
	return ok
}

// ShouldArchive решает, подлежит ли канал архивации. Проверки идут
// строго по порядку, первая сработавшая даёт false:
// уже в архиве, не обычный канал, общий канал, имя или id в белом
// списке, канал моложе minAge, участников больше maxMembers (если
// задан ненулевой потолок). Иначе канал архивируется, если с последней
// активности прошло больше maxInactivity.
func ShouldArchive(ch domain.Channel, wl Whitelist, minAge, maxInactivity time.Duration, maxMembers int, now time.Time, lastActivity int64) bool {
	switch {
	case ch.IsArchived:
		return false
	case !ch.IsChannel:
		return false
	case ch.IsGeneral:
		return false
	case wl.Contains(ch.Name):
		return false
	case wl.Contains(ch.ID):
		return false
	case now.Sub(time.Unix(ch.Created, 0)) < minAge:
		return false
	case maxMembers > 0 && ch.NumMembers > maxMembers:
		return false
	}
	return now.Sub(time.Unix(lastActivity, 0)) > maxInactivity
}

// LastActivity приводит сырые данные внешнего API к одной метке времени.
// Предпочитаем явный маркер последней активности, затем самое свежее
// сообщение; если истории нет вовсе — считаем канал бесконечно
// неактивным.
func LastActivity(activity domain.ChannelActivity) int64 {
	if activity.Latest > 0 {
		return activity.Latest
	}
	if len(activity.MessageTimestamps) > 0 {
		return activity.MessageTimestamps[0]
	}
	return noActivity
}
