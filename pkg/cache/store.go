// Package cache implements the time-bounded response cache shared by all
// chat sessions. The in-memory map is authoritative; every mutation writes a
// full snapshot to a Backend so the cache survives restarts.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/leadchat/pkg/fingerprint"
	"github.com/pario-ai/leadchat/pkg/logging"
	"github.com/pario-ai/leadchat/pkg/models"
)

// DefaultDuration is how long an entry stays valid unless configured.
const DefaultDuration = time.Hour

// Entry is a cached response and the moment it was written.
type Entry struct {
	Response json.RawMessage `json:"response"`
	// Timestamp is seconds since the Unix epoch.
	Timestamp float64 `json:"timestamp"`
}

// Outcome is the result of a lookup.
type Outcome int

const (
	Miss Outcome = iota
	Hit
	Expired
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Expired:
		return "expired"
	default:
		return "miss"
	}
}

// Store is a process-wide, mutex-guarded response cache.
type Store struct {
	mu       sync.Mutex
	entries  map[string]Entry
	backend  Backend
	duration time.Duration
	now      func() time.Time
	log      zerolog.Logger

	startupPruned int
}

// Option configures a Store.
type Option func(*Store)

// WithDuration sets the validity window for entries.
func WithDuration(d time.Duration) Option {
	return func(s *Store) { s.duration = d }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New builds a Store over backend, loads the persisted snapshot and prunes
// anything that expired while the process was down.
func New(ctx context.Context, backend Backend, opts ...Option) *Store {
	s := &Store{
		entries:  make(map[string]Entry),
		backend:  backend,
		duration: DefaultDuration,
		now:      time.Now,
		log:      logging.NewLogger("cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Load(ctx)
	s.startupPruned = s.Prune(ctx)
	return s
}

// StartupPruned is how many expired entries New removed after loading.
func (s *Store) StartupPruned() int { return s.startupPruned }

// Load replaces the in-memory map with the persisted snapshot. A missing or
// undecodable snapshot leaves the store empty; neither is reported to the
// caller.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry)
	defer func() { Entries.Set(float64(len(s.entries))) }()

	data, err := s.backend.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		s.log.Info().Str("location", s.backend.Location()).Msg("no cache snapshot, starting empty")
		return
	}
	if err != nil {
		Errors.WithLabelValues("load").Inc()
		s.log.Error().Err(err).Str("location", s.backend.Location()).Msg("load cache snapshot")
		return
	}

	var loaded map[string]Entry
	if err := json.Unmarshal(data, &loaded); err != nil {
		Errors.WithLabelValues("load").Inc()
		s.log.Error().Err(err).Str("location", s.backend.Location()).Msg("corrupt cache snapshot, starting empty")
		return
	}
	if loaded != nil {
		s.entries = loaded
	}
	s.log.Info().Int("entries", len(s.entries)).Str("location", s.backend.Location()).Msg("cache loaded")
}

// Get returns the cached response for key. An expired entry is removed and
// the snapshot rewritten before Expired is returned.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		Lookups.WithLabelValues(Miss.String()).Inc()
		s.log.Debug().Str("key", fingerprint.Short(key)).Msg("cache MISS")
		return nil, Miss
	}

	if !s.valid(e, s.now()) {
		delete(s.entries, key)
		s.persistLocked(ctx)
		Lookups.WithLabelValues(Expired.String()).Inc()
		s.log.Debug().Str("key", fingerprint.Short(key)).Msg("cache EXPIRED")
		return nil, Expired
	}

	Lookups.WithLabelValues(Hit.String()).Inc()
	s.log.Debug().Str("key", fingerprint.Short(key)).Msg("cache HIT")
	return e.Response, Hit
}

// Set stores response under key with the current time, replacing any
// existing entry, and persists before returning.
func (s *Store) Set(ctx context.Context, key string, response json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry{
		Response:  append(json.RawMessage(nil), response...),
		Timestamp: epochSeconds(s.now()),
	}
	s.persistLocked(ctx)
	s.log.Debug().Str("key", fingerprint.Short(key)).Msg("cache SET")
}

// Prune removes every expired entry and returns how many were removed. The
// snapshot is only rewritten when something was removed.
func (s *Store) Prune(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !s.valid(e, now) {
			delete(s.entries, k)
			removed++
		}
	}
	if removed > 0 {
		s.persistLocked(ctx)
		s.log.Info().Int("removed", removed).Msg("pruned expired cache entries")
	}
	return removed
}

// Clear drops every entry and removes the persisted snapshot. Memory is
// cleared even when the backend fails; the backend error is returned.
func (s *Store) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	s.entries = make(map[string]Entry)
	Entries.Set(0)

	if err := s.backend.Remove(ctx); err != nil {
		Errors.WithLabelValues("remove").Inc()
		s.log.Error().Err(err).Msg("remove cache snapshot")
		return n, err
	}
	s.log.Info().Int("removed", n).Msg("cache cleared")
	return n, nil
}

// Stats reports entry counts and the persisted size. It never mutates.
func (s *Store) Stats(ctx context.Context) models.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := models.CacheStats{
		Total:    len(s.entries),
		Duration: s.duration,
		Location: s.backend.Location(),
	}
	for _, e := range s.entries {
		if s.valid(e, now) {
			st.Active++
		}
	}
	st.Expired = st.Total - st.Active

	size, err := s.backend.Size(ctx)
	if err != nil {
		Errors.WithLabelValues("size").Inc()
		s.log.Warn().Err(err).Msg("cache snapshot size")
	}
	st.ByteSize = size
	return st
}

// Len returns the number of entries in memory, valid or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Duration returns the validity window.
func (s *Store) Duration() time.Duration { return s.duration }

// Close releases the backend if it holds resources.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) valid(e Entry, now time.Time) bool {
	return epochSeconds(now)-e.Timestamp < s.duration.Seconds()
}

// persistLocked writes the whole map. Failures are logged and counted; the
// in-memory state stays authoritative. Caller holds s.mu.
func (s *Store) persistLocked(ctx context.Context) {
	Entries.Set(float64(len(s.entries)))

	data, err := json.Marshal(s.entries)
	if err == nil {
		err = s.backend.Save(ctx, data)
	}
	if err != nil {
		Errors.WithLabelValues("save").Inc()
		s.log.Error().Err(err).Str("location", s.backend.Location()).Msg("persist cache snapshot")
	}
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
