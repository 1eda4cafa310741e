package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"pixcashier/core/events"
)

var bucketEvents = []byte("events")

// Entry is a single archived event. Sequence is assigned by the store and
// strictly increases in emission order.
type Entry struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Store persists every emitted settlement event in an append-only bbolt
// bucket, giving operators a durable log they can page through long after the
// in-memory log has been restarted away.
type Store struct {
	db    *bolt.DB
	clock func() time.Time
}

// Open creates or opens the archive at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create bucket: %w", err)
	}
	return &Store{db: db, clock: time.Now}, nil
}

// SetClock overrides the time source (primarily for deterministic testing).
func (s *Store) SetClock(clock func() time.Time) {
	if s == nil || clock == nil {
		return
	}
	s.clock = clock
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Emit implements events.Emitter. Archive failures are logged rather than
// propagated; the archive must never fail a settlement operation that already
// committed.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		entry := Entry{
			ID:         uuid.NewString(),
			Sequence:   seq,
			Type:       payload.Type,
			Attributes: payload.Attributes,
			RecordedAt: s.clock().UTC(),
		}
		encoded, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return bucket.Put(key[:], encoded)
	})
	if err != nil {
		slog.Error("audit: archive event", slog.String("type", payload.Type), slog.Any("error", err))
	}
}

// List returns up to limit entries with sequence numbers strictly greater
// than afterSeq, in sequence order. A limit of zero or less defaults to 100.
func (s *Store) List(afterSeq uint64, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit: store not open")
	}
	if limit <= 0 {
		limit = 100
	}
	entries := make([]Entry, 0, limit)
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketEvents).Cursor()
		var start [8]byte
		binary.BigEndian.PutUint64(start[:], afterSeq+1)
		for key, value := cursor.Seek(start[:]); key != nil && len(entries) < limit; key, value = cursor.Next() {
			var entry Entry
			if err := json.Unmarshal(value, &entry); err != nil {
				return fmt.Errorf("audit: decode entry %x: %w", key, err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
