package slack

import (
	"testing"
	"time"

	"github.com/slack-go/slack/slackevents"

	"slack-steward/internal/domain"
)

func TestMapCallbackEventChannelCreated(t *testing.T) {
	event := slackevents.EventsAPIEvent{
		Data: &slackevents.EventsAPICallbackEvent{EventID: "Ev123"},
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Data: &slackevents.ChannelCreatedEvent{
				Channel: slackevents.ChannelCreatedInfo{
					ID:      "C42",
					Name:    "random",
					Creator: "U1",
					Created: 1700000000,
				},
			},
		},
	}

	got, ok := MapCallbackEvent(event, time.Unix(1700000100, 0))
	if !ok {
		t.Fatalf("expected event to be mapped")
	}
	if got.ID != "Ev123" {
		t.Fatalf("unexpected event id: %q", got.ID)
	}
	if got.Kind != domain.EventChannelCreated {
		t.Fatalf("unexpected kind: %q", got.Kind)
	}
	if got.ChannelID != "C42" || got.ChannelName != "random" || got.Creator != "U1" {
		t.Fatalf("unexpected channel fields: %+v", got)
	}
	if got.Created != 1700000000 {
		t.Fatalf("unexpected created ts: %d", got.Created)
	}
	if !got.ReceivedAt.Equal(time.Unix(1700000100, 0)) {
		t.Fatalf("unexpected received ts: %v", got.ReceivedAt)
	}
}

func TestMapCallbackEventChannelDeleted(t *testing.T) {
	event := slackevents.EventsAPIEvent{
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Data: &slackevents.ChannelDeletedEvent{Channel: "C42"},
		},
	}

	got, ok := MapCallbackEvent(event, time.Now())
	if !ok {
		t.Fatalf("expected event to be mapped")
	}
	if got.Kind != domain.EventChannelDeleted {
		t.Fatalf("unexpected kind: %q", got.Kind)
	}
	if got.ID == "" {
		t.Fatalf("expected generated event id when callback id is missing")
	}
}

func TestMapCallbackEventIgnoresUnknown(t *testing.T) {
	event := slackevents.EventsAPIEvent{
		InnerEvent: slackevents.EventsAPIInnerEvent{
			Data: &slackevents.MessageEvent{Channel: "C42"},
		},
	}

	if _, ok := MapCallbackEvent(event, time.Now()); ok {
		t.Fatalf("expected unsupported event to be skipped")
	}
}

func TestParseSlackTS(t *testing.T) {
	if got := parseSlackTS("1610000000.000200"); got != 1610000000 {
		t.Fatalf("unexpected ts: %d", got)
	}
	if got := parseSlackTS(""); got != 0 {
		t.Fatalf("expected zero for empty ts, got %d", got)
	}
	if got := parseSlackTS("garbage"); got != 0 {
		t.Fatalf("expected zero for malformed ts, got %d", got)
	}
}
