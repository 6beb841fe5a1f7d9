package domain

import (
	"context"
	"time"
)

// EventKind — тип события рабочего пространства, которое мы обрабатываем.
type EventKind string

const (
	EventChannelCreated   EventKind = "channel_created"
	EventChannelArchive   EventKind = "channel_archive"
	EventChannelDeleted   EventKind = "channel_deleted"
	EventChannelUnarchive EventKind = "channel_unarchive"
)

// WorkspaceEvent — задача в очереди событий. ID берётся из event_id Slack
// и используется для дедупликации повторных доставок.
type WorkspaceEvent struct {
	ID          string    `json:"event_id"`
	Kind        EventKind `json:"kind"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	Creator     string    `json:"creator,omitempty"`
	Created     int64     `json:"created,omitempty"`
	User        string    `json:"user,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// EventHandler обрабатывает одно событие рабочего пространства.
type EventHandler func(ctx context.Context, ev WorkspaceEvent) error

// EventQueue — очередь событий между шлюзом и воркером.
type EventQueue interface {
	Enqueue(ctx context.Context, ev WorkspaceEvent) error
	Pop(ctx context.Context) (WorkspaceEvent, error)
}
