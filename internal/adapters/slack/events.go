package slack

import (
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack/slackevents"

	"slack-steward/internal/domain"
)

// MapCallbackEvent переводит callback-событие Events API во внутреннее
// событие очереди. Возвращает false для типов, которые бот не обрабатывает.
func MapCallbackEvent(event slackevents.EventsAPIEvent, receivedAt time.Time) (domain.WorkspaceEvent, bool) {
	out := domain.WorkspaceEvent{
		ID:         uuid.NewString(),
		ReceivedAt: receivedAt,
	}
	if cb, ok := event.Data.(*slackevents.EventsAPICallbackEvent); ok && cb.EventID != "" {
		out.ID = cb.EventID
	}

	switch inner := event.InnerEvent.Data.(type) {
	case *slackevents.ChannelCreatedEvent:
		out.Kind = domain.EventChannelCreated
		out.ChannelID = inner.Channel.ID
		out.ChannelName = inner.Channel.Name
		out.Creator = inner.Channel.Creator
		out.Created = int64(inner.Channel.Created)
	case *slackevents.ChannelArchiveEvent:
		out.Kind = domain.EventChannelArchive
		out.ChannelID = inner.Channel
		out.User = inner.User
	case *slackevents.ChannelDeletedEvent:
		out.Kind = domain.EventChannelDeleted
		out.ChannelID = inner.Channel
	case *slackevents.ChannelUnarchiveEvent:
		out.Kind = domain.EventChannelUnarchive
		out.ChannelID = inner.Channel
		out.User = inner.User
	default:
		return domain.WorkspaceEvent{}, false
	}

	return out, true
}
