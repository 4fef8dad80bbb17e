package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// inboundClaimTTL is how long a recorded but unprocessed message stays claimed.
// After it, a redelivery is treated as new, so a message lost to a crash
// between RecordInbound and MarkProcessed is handled on the next delivery.
var inboundClaimTTL = 2 * time.Minute

// InboundDeduper remembers inbound chat message IDs so transport redeliveries
// are not applied to an interview twice.
type InboundDeduper interface {
	// RecordInbound stores messageID and reports whether it should be handled:
	// true for a new ID or for a stale claim that was never marked processed.
	RecordInbound(ctx context.Context, messageID, userID string) (bool, error)
	// MarkProcessed stamps a message as handled. Processed IDs stay duplicates until purged.
	MarkProcessed(ctx context.Context, messageID string) error
	// PurgeInbound forgets messages received before cutoff and returns how many were removed.
	PurgeInbound(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is a record store that also deduplicates inbound messages.
type Store interface {
	RecordStore
	InboundDeduper
}

var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

type inboundEntry struct {
	userID      string
	receivedAt  time.Time
	processedAt *time.Time
}

// RecordInbound stores messageID and reports whether it should be handled.
func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	if messageID == "" {
		return false, fmt.Errorf("message ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inbound == nil {
		s.inbound = make(map[string]inboundEntry)
	}
	now := time.Now()
	if e, seen := s.inbound[messageID]; seen {
		if e.processedAt != nil || !e.receivedAt.Before(now.Add(-inboundClaimTTL)) {
			return false, nil
		}
		slog.Info("InMemoryStore.RecordInbound: reclaiming unprocessed message", "messageID", messageID, "userID", userID)
	}
	s.inbound[messageID] = inboundEntry{userID: userID, receivedAt: now}
	return true, nil
}

// MarkProcessed stamps a message as handled. Unknown IDs are ignored.
func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.inbound[messageID]; ok {
		now := time.Now()
		e.processedAt = &now
		s.inbound[messageID] = e
	}
	return nil
}

// PurgeInbound forgets messages received before cutoff.
func (s *InMemoryStore) PurgeInbound(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.inbound {
		if e.receivedAt.Before(cutoff) {
			delete(s.inbound, id)
			n++
		}
	}
	return n, nil
}

// recordInbound inserts messageID, or re-claims an unprocessed row received
// before the claim cutoff. upsertSQL takes (message_id, user_id, received_at, cutoff).
func recordInbound(ctx context.Context, db *sql.DB, upsertSQL, messageID, userID string) (bool, error) {
	if messageID == "" {
		return false, fmt.Errorf("message ID cannot be empty")
	}
	now := time.Now().UTC().Truncate(time.Second)
	res, err := db.ExecContext(ctx, upsertSQL, messageID, userID, now, now.Add(-inboundClaimTTL))
	if err != nil {
		return false, fmt.Errorf("record inbound %s failed: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound %s: rows affected: %w", messageID, err)
	}
	if n == 0 {
		slog.Debug("store.recordInbound: duplicate message", "messageID", messageID, "userID", userID)
	}
	return n > 0, nil
}

func execCount(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordInbound stores messageID and reports whether it should be handled.
func (s *SQLiteStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	return recordInbound(ctx, s.db,
		`INSERT INTO inbound_messages (message_id, user_id, received_at) VALUES (?, ?, ?)
		 ON CONFLICT(message_id) DO UPDATE SET user_id = excluded.user_id, received_at = excluded.received_at
		 WHERE inbound_messages.processed_at IS NULL AND inbound_messages.received_at < ?`,
		messageID, userID)
}

// MarkProcessed stamps a message as handled.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, messageID string) error {
	if _, err := execCount(ctx, s.db, `UPDATE inbound_messages SET processed_at = ? WHERE message_id = ?`, time.Now().UTC().Truncate(time.Second), messageID); err != nil {
		return fmt.Errorf("mark processed %s failed: %w", messageID, err)
	}
	return nil
}

// PurgeInbound forgets messages received before cutoff.
func (s *SQLiteStore) PurgeInbound(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := execCount(ctx, s.db, `DELETE FROM inbound_messages WHERE received_at < ?`, cutoff.UTC().Truncate(time.Second))
	if err != nil {
		return 0, fmt.Errorf("purge inbound messages failed: %w", err)
	}
	return n, nil
}

// RecordInbound stores messageID and reports whether it should be handled.
func (s *PostgresStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	return recordInbound(ctx, s.db,
		`INSERT INTO inbound_messages (message_id, user_id, received_at) VALUES ($1, $2, $3)
		 ON CONFLICT (message_id) DO UPDATE SET user_id = EXCLUDED.user_id, received_at = EXCLUDED.received_at
		 WHERE inbound_messages.processed_at IS NULL AND inbound_messages.received_at < $4`,
		messageID, userID)
}

// MarkProcessed stamps a message as handled.
func (s *PostgresStore) MarkProcessed(ctx context.Context, messageID string) error {
	if _, err := execCount(ctx, s.db, `UPDATE inbound_messages SET processed_at = $1 WHERE message_id = $2`, time.Now().UTC(), messageID); err != nil {
		return fmt.Errorf("mark processed %s failed: %w", messageID, err)
	}
	return nil
}

// PurgeInbound forgets messages received before cutoff.
func (s *PostgresStore) PurgeInbound(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := execCount(ctx, s.db, `DELETE FROM inbound_messages WHERE received_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge inbound messages failed: %w", err)
	}
	return n, nil
}
