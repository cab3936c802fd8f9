// Package recent keeps the most-recent-first list of identifiers that were
// successfully looked up, persisted in a kvstore.Store.
package recent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/persistence/kvstore"
)

const (
	// StorageKey is the fixed key the log is persisted under.
	StorageKey = "recentSearches"
	// DefaultCapacity is the number of identifiers kept.
	DefaultCapacity = 5
)

type Options struct {
	Key      string
	Capacity int
	Logger   *zerolog.Logger
}

// Log is a deduplicated, capped, most-recent-first list of identifiers.
// It is read from the store once in Load and written back after every change.
type Log struct {
	mu       sync.Mutex
	store    kvstore.Store
	key      string
	capacity int
	entries  []string
	logger   zerolog.Logger
}

// Load reads the persisted log. A missing key, an unreadable store or a value
// that is not a JSON string array all yield an empty log; only a nil store is
// an error.
func Load(ctx context.Context, store kvstore.Store, opts Options) (*Log, error) {
	if store == nil {
		return nil, errors.New("recent log: store is nil")
	}
	l := &Log{
		store:    store,
		key:      strings.TrimSpace(opts.Key),
		capacity: opts.Capacity,
		logger:   log.Logger.With().Str("component", "recent").Logger(),
	}
	if opts.Logger != nil {
		l.logger = *opts.Logger
	}
	if l.key == "" {
		l.key = StorageKey
	}
	if l.capacity <= 0 {
		l.capacity = DefaultCapacity
	}

	raw, ok, err := store.Get(ctx, l.key)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", l.key).Msg("failed to read recent searches, starting empty")
		return l, nil
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return l, nil
	}
	var stored []string
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		l.logger.Warn().Err(err).Str("key", l.key).Msg("corrupt recent searches, starting empty")
		return l, nil
	}
	l.entries = normalize(stored, l.capacity)
	return l, nil
}

// Entries returns a copy of the log, most recent first.
func (l *Log) Entries() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Push moves identifier to the front (inserting it if absent), trims the log
// to capacity and persists it. The in-memory log is updated even when the
// write fails; the error is returned for logging only.
func (l *Log) Push(ctx context.Context, identifier string) error {
	if l == nil {
		return errors.New("recent log: nil log")
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}

	l.mu.Lock()
	next := make([]string, 0, l.capacity)
	next = append(next, identifier)
	for _, e := range l.entries {
		if e != identifier {
			next = append(next, e)
		}
	}
	if len(next) > l.capacity {
		next = next[:l.capacity]
	}
	l.entries = next
	snapshot := append([]string(nil), next...)
	l.mu.Unlock()

	return l.persist(ctx, snapshot)
}

// Clear empties the log and removes it from the store.
func (l *Log) Clear(ctx context.Context) error {
	if l == nil {
		return errors.New("recent log: nil log")
	}
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
	if err := l.store.Delete(ctx, l.key); err != nil {
		return errors.Wrap(err, "recent log: clear")
	}
	return nil
}

func (l *Log) persist(ctx context.Context, entries []string) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "recent log: marshal")
	}
	if err := l.store.Set(ctx, l.key, string(b)); err != nil {
		return errors.Wrap(err, "recent log: persist")
	}
	return nil
}

// normalize trims, dedupes and caps data read back from storage, which
// another writer may have left with blanks or duplicates.
func normalize(in []string, capacity int) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
		if len(out) == capacity {
			break
		}
	}
	return out
}
