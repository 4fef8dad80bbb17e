// Package store provides the append-only health record backends for HealthMate.
//
// Records are written once per finalized checkup and read back by the API and dashboard.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/HealthMate/internal/models"
)

// Driver names understood by DetectDSNType.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// RecordStore is an append-only sink of finalized checkups.
type RecordStore interface {
	AppendRecord(ctx context.Context, rec models.Record) error
	ListRecords(ctx context.Context, userID string) ([]models.Record, error)
	Close() error
}

// Opts holds configuration for the SQL backends.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns DriverPostgres for Postgres URLs or keyword DSNs and DriverSQLite otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DriverPostgres
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "user=") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open picks the backend for dsn. An empty dsn yields an InMemoryStore.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		slog.Warn("store.Open: no DSN configured, records will not survive a restart")
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(dsn) {
	case DriverPostgres:
		s, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	}
}

// InMemoryStore keeps records in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []models.Record
	inbound map[string]inboundEntry
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{inbound: make(map[string]inboundEntry)}
}

// AppendRecord stores a copy of rec.
func (s *InMemoryStore) AppendRecord(ctx context.Context, rec models.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.ID == rec.ID {
			return fmt.Errorf("record %s already exists", rec.ID)
		}
	}
	s.records = append(s.records, copyRecord(rec))
	slog.Debug("InMemoryStore AppendRecord succeeded", "userID", rec.UserID, "id", rec.ID)
	return nil
}

// ListRecords returns userID's records, oldest first. An empty userID lists everything.
func (s *InMemoryStore) ListRecords(ctx context.Context, userID string) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Record
	for _, rec := range s.records {
		if userID == "" || rec.UserID == userID {
			out = append(out, copyRecord(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}

func validateRecord(rec models.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID cannot be empty")
	}
	if rec.UserID == "" {
		return models.ErrEmptyUserID
	}
	return nil
}

func copyRecord(rec models.Record) models.Record {
	c := rec
	c.Predictions = make(map[string]float64, len(rec.Predictions))
	for k, v := range rec.Predictions {
		c.Predictions[k] = v
	}
	return c
}
