// Package storage defines the message/room persistence interface consumed
// by the chat server. Calls are fire-and-forget from the protocol path:
// failures are logged by the caller and never surface to clients.
package storage

import (
	"context"
	"time"
)

// Message is one persisted chat line.
type Message struct {
	Room   string
	Sender string
	Body   string
	SentAt time.Time
}

// RoomRecord is the persisted form of a room.
type RoomRecord struct {
	Name     string
	Capacity int
	Locked   bool
	Password string
	Owner    string
}

// Store persists message history and the room catalogue.
type Store interface {
	SaveMessage(ctx context.Context, msg Message) error
	RecentMessages(ctx context.Context, room string, limit int) ([]Message, error)
	LoadAllRooms(ctx context.Context) ([]RoomRecord, error)
	UpsertRoom(ctx context.Context, rec RoomRecord) error
	DeleteRoom(ctx context.Context, name string) error
}

// NoopStore satisfies Store without persisting anything. Used when no
// database is configured or the pool cannot be established at startup.
type NoopStore struct{}

// SaveMessage discards the message.
func (NoopStore) SaveMessage(context.Context, Message) error { return nil }

// RecentMessages returns no history.
func (NoopStore) RecentMessages(context.Context, string, int) ([]Message, error) {
	return nil, nil
}

// LoadAllRooms returns no rooms.
func (NoopStore) LoadAllRooms(context.Context) ([]RoomRecord, error) { return nil, nil }

// UpsertRoom discards the record.
func (NoopStore) UpsertRoom(context.Context, RoomRecord) error { return nil }

// DeleteRoom does nothing.
func (NoopStore) DeleteRoom(context.Context, string) error { return nil }
