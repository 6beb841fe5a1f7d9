package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"slack-steward/internal/domain"
)

// Recorder принимает события жизненного цикла каналов в журнал.
type Recorder interface {
	Record(ctx context.Context, channel string, user *string, action domain.ChannelAction, ts int64) error
}

// Dispatcher раскладывает события рабочего пространства по обработчикам.
// Соответствие тип события -> обработчик задаётся один раз при создании,
// никакой диспетчеризации по именам методов.
type Dispatcher struct {
	recorder Recorder
	users    domain.UserDirectory
	channels domain.ChannelDirectory
	log      zerolog.Logger
	now      func() time.Time

	handlers map[domain.EventKind]domain.EventHandler
}

// NewDispatcher создаёт диспетчер и регистрирует обработчики.
func NewDispatcher(recorder Recorder, users domain.UserDirectory, channels domain.ChannelDirectory, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		recorder: recorder,
		users:    users,
		channels: channels,
		log:      logger,
		now:      time.Now,
	}
	d.handlers = map[domain.EventKind]domain.EventHandler{
		domain.EventChannelCreated:   d.handleCreated,
		domain.EventChannelArchive:   d.handleArchive,
		domain.EventChannelDeleted:   d.handleDeleted,
		domain.EventChannelUnarchive: d.handleUnarchive,
	}
	return d
}

// Dispatch передаёт событие его обработчику. Неизвестные типы событий
// молча игнорируются: подписки в Slack шире, чем наши интересы.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.WorkspaceEvent) error {
	handler, ok := d.handlers[ev.Kind]
	if !ok {
		d.log.Debug().Str("kind", string(ev.Kind)).Msg("events: нет обработчика, пропускаем")
		return nil
	}
	return handler(ctx, ev)
}

func (d *Dispatcher) handleCreated(ctx context.Context, ev domain.WorkspaceEvent) error {
	user := d.userRef(ctx, ev.Creator)
	return d.recorder.Record(ctx, "#"+ev.ChannelName, &user, domain.ActionCreate, ev.Created)
}

func (d *Dispatcher) handleArchive(ctx context.Context, ev domain.WorkspaceEvent) error {
	user := d.userRef(ctx, ev.User)
	return d.recorder.Record(ctx, d.channelRef(ctx, ev.ChannelID), &user, domain.ActionArchive, d.now().Unix())
}

func (d *Dispatcher) handleDeleted(ctx context.Context, ev domain.WorkspaceEvent) error {
	// Slack не сообщает, кто удалил канал.
	return d.recorder.Record(ctx, d.channelRef(ctx, ev.ChannelID), nil, domain.ActionDelete, d.now().Unix())
}

func (d *Dispatcher) handleUnarchive(ctx context.Context, ev domain.WorkspaceEvent) error {
	user := d.userRef(ctx, ev.User)
	return d.recorder.Record(ctx, d.channelRef(ctx, ev.ChannelID), &user, domain.ActionUnarchive, d.now().Unix())
}

// userRef возвращает "@username", а при недоступном справочнике — сырой ID.
func (d *Dispatcher) userRef(ctx context.Context, userID string) string {
	name, err := d.users.Username(ctx, userID)
	if err != nil {
		d.log.Warn().Err(err).Str("user", userID).Msg("events: не удалось получить имя пользователя")
		return "@" + userID
	}
	return "@" + name
}

// channelRef возвращает "#name". Для только что удалённого канала имя
// может быть уже недоступно, тогда остаётся ID.
func (d *Dispatcher) channelRef(ctx context.Context, channelID string) string {
	name, err := d.channels.ChannelName(ctx, channelID)
	if err != nil {
		d.log.Warn().Err(err).Str("channel", channelID).Msg("events: не удалось получить имя канала")
		return "#" + channelID
	}
	return "#" + name
}
