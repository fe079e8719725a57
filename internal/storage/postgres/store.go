package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlorchat/parlor/internal/storage"
)

// Store implements storage.Store on top of a pgx connection pool.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// SaveMessage inserts one chat line into the history table.
//
// Precondition: msg.Room and msg.Sender must be non-empty.
// Postcondition: The message is persisted, or a non-nil error is returned.
func (s *Store) SaveMessage(ctx context.Context, msg storage.Message) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO messages (room, sender, body, sent_at)
		 VALUES ($1, $2, $3, $4)`,
		msg.Room, msg.Sender, msg.Body, msg.SentAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages for the room, oldest first.
//
// Precondition: room must be non-empty; limit must be >= 0.
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (s *Store) RecentMessages(ctx context.Context, room string, limit int) ([]storage.Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT room, sender, body, sent_at FROM (
			SELECT room, sender, body, sent_at
			FROM messages
			WHERE room = $1
			ORDER BY sent_at DESC
			LIMIT $2
		 ) recent
		 ORDER BY sent_at ASC`,
		room, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []storage.Message
	for rows.Next() {
		var m storage.Message
		if err := rows.Scan(&m.Room, &m.Sender, &m.Body, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

// LoadAllRooms returns every persisted room record.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (s *Store) LoadAllRooms(ctx context.Context) ([]storage.RoomRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT name, capacity, locked, password, owner
		 FROM rooms
		 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var recs []storage.RoomRecord
	for rows.Next() {
		var r storage.RoomRecord
		if err := rows.Scan(&r.Name, &r.Capacity, &r.Locked, &r.Password, &r.Owner); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}
	return recs, nil
}

// UpsertRoom inserts or updates the room record keyed by name.
//
// Precondition: rec.Name must be non-empty; rec.Capacity must be > 0.
// Postcondition: The record is persisted, or a non-nil error is returned.
func (s *Store) UpsertRoom(ctx context.Context, rec storage.RoomRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO rooms (name, capacity, locked, password, owner)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO UPDATE
		 SET capacity = EXCLUDED.capacity,
		     locked = EXCLUDED.locked,
		     password = EXCLUDED.password,
		     owner = EXCLUDED.owner`,
		rec.Name, rec.Capacity, rec.Locked, rec.Password, rec.Owner,
	)
	if err != nil {
		return fmt.Errorf("upserting room %q: %w", rec.Name, err)
	}
	return nil
}

// DeleteRoom removes the room record and its message history.
//
// Precondition: name must be non-empty.
// Postcondition: The room and its messages are gone; deleting an unknown
// room is not an error.
func (s *Store) DeleteRoom(ctx context.Context, name string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM messages WHERE room = $1`, name); err != nil {
		return fmt.Errorf("deleting messages for room %q: %w", name, err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM rooms WHERE name = $1`, name); err != nil {
		return fmt.Errorf("deleting room %q: %w", name, err)
	}
	return nil
}
