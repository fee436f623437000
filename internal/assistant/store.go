package assistant

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/portfoliobuddy/internal/metrics"
)

// ErrSessionNotFound is returned by SessionStore.Get for unknown users.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists sessions keyed by user ID.
type SessionStore interface {
	Create(ctx context.Context, userID string) (*Session, error)
	Get(ctx context.Context, userID string) (*Session, error)
	Put(ctx context.Context, s *Session) error
}

// GetOrCreate returns the user's session, creating it on first contact.
func GetOrCreate(ctx context.Context, store SessionStore, userID string) (*Session, error) {
	s, err := store.Get(ctx, userID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	return store.Create(ctx, userID)
}

// SessionInfo is what an EvictionPolicy sees of a session.
type SessionInfo struct {
	UserID    string
	UpdatedAt time.Time
}

// EvictionPolicy picks sessions to drop.
type EvictionPolicy interface {
	Evict(now time.Time, sessions []SessionInfo) []string
}

// NoEviction keeps every session forever.
type NoEviction struct{}

func (NoEviction) Evict(time.Time, []SessionInfo) []string { return nil }

// IdleTTL evicts sessions not updated within TTL.
type IdleTTL struct {
	TTL time.Duration
}

func (p IdleTTL) Evict(now time.Time, sessions []SessionInfo) []string {
	if p.TTL <= 0 {
		return nil
	}
	var out []string
	for _, s := range sessions {
		if now.Sub(s.UpdatedAt) > p.TTL {
			out = append(out, s.UserID)
		}
	}
	return out
}

// MaxSessions evicts the least recently updated sessions above Max.
type MaxSessions struct {
	Max int
}

func (p MaxSessions) Evict(_ time.Time, sessions []SessionInfo) []string {
	if p.Max <= 0 || len(sessions) <= p.Max {
		return nil
	}
	sorted := append([]SessionInfo(nil), sessions...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt)
	})
	out := make([]string, 0, len(sorted)-p.Max)
	for _, s := range sorted[:len(sorted)-p.Max] {
		out = append(out, s.UserID)
	}
	return out
}

// Policies combines policies; a session is evicted if any policy picks it.
type Policies []EvictionPolicy

func (ps Policies) Evict(now time.Time, sessions []SessionInfo) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range ps {
		for _, id := range p.Evict(now, sessions) {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	policy   EvictionPolicy
}

var _ SessionStore = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store. A nil policy never evicts.
func NewMemoryStore(policy EvictionPolicy) *MemoryStore {
	if policy == nil {
		policy = NoEviction{}
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		policy:   policy,
	}
}

func (m *MemoryStore) Create(_ context.Context, userID string) (*Session, error) {
	s := NewSession(userID)

	m.mu.Lock()
	m.sessions[userID] = s.clone()
	m.mu.Unlock()

	m.Sweep(time.Now())
	return s, nil
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	if s == nil || s.UserID == "" {
		return errors.New("session must have a user id")
	}
	m.mu.Lock()
	m.sessions[s.UserID] = s.clone()
	m.mu.Unlock()
	return nil
}

// Len reports how many sessions are held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep applies the eviction policy and returns how many sessions were
// dropped.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for id, s := range m.sessions {
		infos = append(infos, SessionInfo{UserID: id, UpdatedAt: s.UpdatedAt})
	}

	evicted := m.policy.Evict(now, infos)
	for _, id := range evicted {
		delete(m.sessions, id)
	}
	metrics.UpdateActiveSessions(len(m.sessions))
	return len(evicted)
}

// StartJanitor sweeps store on the given cron schedule, e.g. "@every 5m".
// Stop the returned scheduler on shutdown.
func StartJanitor(store *MemoryStore, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if n := store.Sweep(time.Now()); n > 0 {
			log.Info().Int("evicted", n).Int("remaining", store.Len()).Msg("Evicted idle sessions")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
