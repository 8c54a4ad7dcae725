// Package history persists query history and recently used databases in
// BadgerDB.
//
// Every query run through pkg/commands becomes an Entry: what ran, against
// which database, whether it worked, how long it took, and how much came
// back. Successful opens and connects become recent Connections so a shell or
// UI can offer them again.
//
// Key Structure:
//   - Entries: 0x01 + seq (8 bytes, big endian) -> JSON(Entry)
//   - Recent: 0x02 + path -> JSON(Connection)
//   - Sequence: 0x03 "entry-seq" (badger.Sequence lease)
//
// Entry keys come from a badger.Sequence, so key order is insertion order and
// the newest entry is found by iterating in reverse.
//
// Example:
//
//	store, err := history.Open(history.Options{DataDir: "./data/history"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	store.Record(history.Entry{Query: "MATCH (n) RETURN n", Status: history.StatusSuccess})
//	recent, _ := store.List(20)
//
// ELI12:
//
// This is the app's diary. Every time you ask the database something, a line
// goes in the diary. The diary has a fixed number of pages, so when it fills
// up the oldest lines get torn out to make room.
package history

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	prefixEntry  = byte(0x01)
	prefixRecent = byte(0x02)
	prefixMeta   = byte(0x03)
)

var seqKey = []byte{prefixMeta, 'e', 'n', 't', 'r', 'y', '-', 's', 'e', 'q'}

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("history store closed")

// Status is the outcome of a recorded query.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is one recorded query run.
type Entry struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	Fingerprint string    `json:"fingerprint"`
	Path        string    `json:"path,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Status      Status    `json:"status"`
	DurationMS  int64     `json:"duration_ms"`
	// ResultCount is the number of graph nodes returned.
	ResultCount int    `json:"result_count"`
	RowCount    int    `json:"row_count"`
	Error       string `json:"error,omitempty"`
}

// Mode records how a database was reached.
type Mode string

const (
	ModeOpen    Mode = "open"
	ModeConnect Mode = "connect"
)

// Connection is a recently used database.
type Connection struct {
	Path     string    `json:"path"`
	Mode     Mode      `json:"mode"`
	LastUsed time.Time `json:"last_used"`
}

// Options configures the store.
type Options struct {
	// DataDir holds the Badger files. Ignored when InMemory is set.
	DataDir string

	// InMemory keeps everything in RAM; nothing survives Close.
	InMemory bool

	// SyncWrites fsyncs after each write.
	SyncWrites bool

	// MaxEntries bounds the history; oldest entries are dropped first.
	// Zero or less means unbounded.
	MaxEntries int

	// MaxRecent bounds the recent-connections list. Zero or less means
	// unbounded.
	MaxRecent int
}

// DefaultOptions returns options for a persistent store under dataDir.
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:    dataDir,
		MaxEntries: 1000,
		MaxRecent:  10,
	}
}

// Store is a Badger-backed history store. Safe for concurrent use.
type Store struct {
	db   *badger.DB
	seq  *badger.Sequence
	opts Options
	now  func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) a store.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	// History is small; keep Badger's footprint small too.
	badgerOpts = badgerOpts.
		WithLogger(nil).
		WithMemTableSize(8 << 20).
		WithValueLogFileSize(16 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithBlockCacheSize(8 << 20).
		WithIndexCacheSize(4 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	seq, err := db.GetSequence(seqKey, 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to lease history sequence: %w", err)
	}
	return &Store{db: db, seq: seq, opts: opts, now: time.Now}, nil
}

// OpenInMemory opens a throwaway store with default bounds. Useful for tests
// and for running without a data directory.
func OpenInMemory() (*Store, error) {
	opts := DefaultOptions("")
	opts.InMemory = true
	return Open(opts)
}

// Fingerprint returns the hex BLAKE2b-256 digest of the trimmed query, so the
// same statement typed with different surrounding whitespace groups together.
func Fingerprint(query string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(query)))
	return hex.EncodeToString(sum[:])
}

func entryKey(seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefixEntry
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

func recentKey(path string) []byte {
	return append([]byte{prefixRecent}, []byte(path)...)
}

// Record stores e, filling ID, Fingerprint and Timestamp when unset, and
// returns the stored entry.
func (s *Store) Record(e Entry) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Entry{}, ErrClosed
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Fingerprint == "" {
		e.Fingerprint = Fingerprint(e.Query)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}

	n, err := s.seq.Next()
	if err != nil {
		return Entry{}, fmt.Errorf("history sequence: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding history entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(entryKey(n), data); err != nil {
			return err
		}
		return s.trimEntries(txn)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("recording history entry: %w", err)
	}
	return e, nil
}

// trimEntries drops the oldest entries beyond MaxEntries.
func (s *Store) trimEntries(txn *badger.Txn) error {
	if s.opts.MaxEntries <= 0 {
		return nil
	}
	for _, key := range staleEntryKeys(txn, s.opts.MaxEntries) {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// staleEntryKeys returns the keys of every entry past the newest keep.
// The iterator is closed before the caller writes.
func staleEntryKeys(txn *badger.Txn, keep int) [][]byte {
	prefix := []byte{prefixEntry}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	var stale [][]byte
	count := 0
	for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
		count++
		if count > keep {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
	}
	return stale
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	entries := make([]Entry, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixEntry}
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return entries, nil
}

// Clear removes every history entry. Recent connections are kept.
func (s *Store) Clear() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.db.DropPrefix([]byte{prefixEntry}); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Touch marks path as used now, moving it to the front of the recent list.
func (s *Store) Touch(path string, mode Mode) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	data, err := json.Marshal(Connection{Path: path, Mode: mode, LastUsed: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding recent connection: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recentKey(path), data); err != nil {
			return err
		}
		if s.opts.MaxRecent <= 0 {
			return nil
		}
		conns, err := readRecent(txn)
		if err != nil {
			return err
		}
		for _, c := range conns[min(len(conns), s.opts.MaxRecent):] {
			if err := txn.Delete(recentKey(c.Path)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording recent connection: %w", err)
	}
	return nil
}

// Forget removes path from the recent list. Unknown paths are ignored.
func (s *Store) Forget(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recentKey(path))
	})
	if err != nil {
		return fmt.Errorf("forgetting recent connection: %w", err)
	}
	return nil
}

// Recent returns recently used databases, most recent first.
func (s *Store) Recent() ([]Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var conns []Connection
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		conns, err = readRecent(txn)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing recent connections: %w", err)
	}
	return conns, nil
}

func readRecent(txn *badger.Txn) ([]Connection, error) {
	prefix := []byte{prefixRecent}
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	conns := make([]Connection, 0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var c Connection
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		}); err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	sort.SliceStable(conns, func(i, j int) bool {
		if conns[i].LastUsed.Equal(conns[j].LastUsed) {
			return conns[i].Path < conns[j].Path
		}
		return conns[i].LastUsed.After(conns[j].LastUsed)
	})
	return conns, nil
}

// Close releases the sequence lease and closes Badger. Calling it again is a
// no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("releasing history sequence: %w", err)
	}
	return s.db.Close()
}
