// Package session holds per-user state between interactions: the uploaded
// dataset and the last chart suggestion. Nothing here is process-global.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/KaramelBytes/insightcopilot/internal/chart"
	"github.com/KaramelBytes/insightcopilot/internal/dataset"
)

const (
	DefaultTTL    = 1 * time.Hour
	cleanupPeriod = 10 * time.Minute
)

// Session is one user's working context.
type Session struct {
	ID        string
	CreatedAt time.Time

	op         sync.Mutex
	mu         sync.RWMutex
	ds         *dataset.Dataset
	suggestion string
	figure     *chart.Figure
	code       string
}

// New returns an empty session with a fresh ID.
func New() *Session {
	return &Session{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
}

// Begin serializes actions within the session. Call the returned func when
// the action is done.
func (s *Session) Begin() (end func()) {
	s.op.Lock()
	return s.op.Unlock
}

// Dataset returns the loaded dataset or nil.
func (s *Session) Dataset() *dataset.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds
}

// SetDataset replaces the dataset and clears state derived from the old one.
func (s *Session) SetDataset(ds *dataset.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ds = ds
	s.suggestion = ""
	s.figure = nil
	s.code = ""
}

// LastSuggestion is the most recent chart suggestion text.
func (s *Session) LastSuggestion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suggestion
}

func (s *Session) SetSuggestion(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestion = text
}

// LastChart returns the most recent figure and the artifact it came from.
func (s *Session) LastChart() (*chart.Figure, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.figure, s.code
}

func (s *Session) SetChart(fig *chart.Figure, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.figure = fig
	s.code = code
}

// Store keeps sessions in memory and expires idle ones.
type Store struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewStore creates a store whose sessions expire after ttl without access.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cleanup := cleanupPeriod
	if ttl < cleanup {
		cleanup = ttl
	}
	return &Store{cache: cache.New(ttl, cleanup), ttl: ttl}
}

// Create registers and returns a new session.
func (st *Store) Create() *Session {
	s := New()
	st.cache.Set(s.ID, s, cache.DefaultExpiration)
	return s
}

// Get returns the session and extends its lifetime.
func (st *Store) Get(id string) (*Session, bool) {
	x, found := st.cache.Get(id)
	if !found {
		return nil, false
	}
	s := x.(*Session)
	// re-key with the session's own ID; id may alias caller memory
	st.cache.Set(s.ID, s, cache.DefaultExpiration)
	return s, true
}

// GetOrCreate returns the session for id, or a new one when id is unknown.
func (st *Store) GetOrCreate(id string) *Session {
	if id != "" {
		if s, ok := st.Get(id); ok {
			return s
		}
	}
	return st.Create()
}

func (st *Store) Delete(id string) {
	st.cache.Delete(id)
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	return st.cache.ItemCount()
}
