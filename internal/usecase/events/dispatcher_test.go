package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"slack-steward/internal/domain"
)

type recordedEvent struct {
	channel string
	user    *string
	action  domain.ChannelAction
	ts      int64
}

type fakeRecorder struct {
	events []recordedEvent
}

func (r *fakeRecorder) Record(_ context.Context, channel string, user *string, action domain.ChannelAction, ts int64) error {
	r.events = append(r.events, recordedEvent{channel: channel, user: user, action: action, ts: ts})
	return nil
}

type fakeDirectory struct {
	nameErr error
}

func (d *fakeDirectory) ListChannels(context.Context) ([]domain.Channel, error) { return nil, nil }
func (d *fakeDirectory) ChannelName(_ context.Context, id string) (string, error) {
	if d.nameErr != nil {
		return "", d.nameErr
	}
	return "general-talk", nil
}
func (d *fakeDirectory) Activity(context.Context, string) (domain.ChannelActivity, error) {
	return domain.ChannelActivity{}, nil
}
func (d *fakeDirectory) Archive(context.Context, string) error          { return nil }
func (d *fakeDirectory) SetTopic(context.Context, string, string) error { return nil }

type fakeUsers struct{}

func (fakeUsers) DisplayName(_ context.Context, id string) (string, error) { return "Test User", nil }
func (fakeUsers) Username(_ context.Context, id string) (string, error)    { return "tester", nil }

func newTestDispatcher(rec *fakeRecorder, dir *fakeDirectory) *Dispatcher {
	d := NewDispatcher(rec, fakeUsers{}, dir, zerolog.Nop())
	d.now = func() time.Time { return time.Unix(1767225600, 0) }
	return d
}

func TestDispatchChannelCreated(t *testing.T) {
	rec := &fakeRecorder{}
	d := newTestDispatcher(rec, &fakeDirectory{})

	ev := domain.WorkspaceEvent{
		Kind:        domain.EventChannelCreated,
		ChannelID:   "C1",
		ChannelName: "new-project",
		Creator:     "U1",
		Created:     12345,
	}
	if err := d.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(rec.events) != 1 {
		t.Fatalf("ожидали одну запись, получили %d", len(rec.events))
	}
	got := rec.events[0]
	if got.channel != "#new-project" || got.action != domain.ActionCreate || got.ts != 12345 {
		t.Fatalf("неожиданная запись: %+v", got)
	}
	if got.user == nil || *got.user != "@tester" {
		t.Fatalf("ожидали @tester, получили %v", got.user)
	}
}

func TestDispatchChannelDeletedHasNoUser(t *testing.T) {
	rec := &fakeRecorder{}
	d := newTestDispatcher(rec, &fakeDirectory{})

	ev := domain.WorkspaceEvent{Kind: domain.EventChannelDeleted, ChannelID: "C1"}
	if err := d.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got := rec.events[0]
	if got.user != nil {
		t.Fatalf("у удаления канала нет автора, получили %v", *got.user)
	}
	if got.channel != "#general-talk" {
		t.Fatalf("имя канала должно резолвиться, получили %q", got.channel)
	}
	if got.ts != 1767225600 {
		t.Fatalf("для удаления берётся текущее время, получили %d", got.ts)
	}
}

func TestDispatchFallsBackToChannelID(t *testing.T) {
	rec := &fakeRecorder{}
	d := newTestDispatcher(rec, &fakeDirectory{nameErr: errors.New("channel_not_found")})

	ev := domain.WorkspaceEvent{Kind: domain.EventChannelArchive, ChannelID: "C1", User: "U1"}
	if err := d.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if rec.events[0].channel != "#C1" {
		t.Fatalf("при недоступном имени остаётся ID, получили %q", rec.events[0].channel)
	}
}

func TestDispatchUnknownKindIgnored(t *testing.T) {
	rec := &fakeRecorder{}
	d := newTestDispatcher(rec, &fakeDirectory{})

	ev := domain.WorkspaceEvent{Kind: domain.EventKind("pin_added")}
	if err := d.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("неизвестные события игнорируются без ошибки: %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("неизвестные события не попадают в журнал")
	}
}
