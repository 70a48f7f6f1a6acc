package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_cart/lineitems/internal/domain"
	"github.com/fjod/go_cart/lineitems/internal/metrics"
	"github.com/fjod/go_cart/lineitems/internal/persistence"
	"github.com/fjod/go_cart/lineitems/internal/store"
)

const (
	DefaultKeyPrefix = "cart:"
	DefaultIdleTTL   = 30 * time.Minute
)

// Manager hands out one initialized store per user, all sharing one KV.
// Stores idle for longer than the idle TTL are dropped and rehydrated from
// the KV on next use.
type Manager struct {
	kv      persistence.KV
	prefix  string
	idleTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu     sync.Mutex
	stores map[string]*entry
}

type entry struct {
	once     sync.Once
	store    *store.Store
	lastUsed time.Time
}

type Option func(*Manager)

func WithKeyPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithIdleTTL sets how long an unused store stays in memory. Zero or less
// keeps stores forever.
func WithIdleTTL(d time.Duration) Option {
	return func(m *Manager) { m.idleTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(kv persistence.KV, opts ...Option) *Manager {
	m := &Manager{
		kv:      kv,
		prefix:  DefaultKeyPrefix,
		idleTTL: DefaultIdleTTL,
		now:     time.Now,
		logger:  slog.Default(),
		stores:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the user's store, hydrating it from the KV on first use.
// Concurrent first calls for one user share a single store. A store whose
// last load failed is reloaded here.
func (m *Manager) Get(ctx context.Context, userID string) *store.Store {
	m.mu.Lock()
	e, ok := m.stores[userID]
	if !ok {
		e = &entry{}
		m.stores[userID] = e
	}
	e.lastUsed = m.now()
	m.mu.Unlock()

	first := false
	e.once.Do(func() {
		first = true
		logger := m.logger.With("user_id", userID)
		st := store.New(m.kv, m.Key(userID),
			store.WithLogger(logger),
			store.WithPersistErrorHandler(func(err error) {
				op := "unknown"
				var perr *store.PersistenceError
				if errors.As(err, &perr) {
					op = perr.Op
				}
				metrics.PersistenceFailures.WithLabelValues(op).Inc()
				logger.Error("cart change kept in memory only", "op", op, "error", err)
			}),
		)
		st.Initialize(ctx)
		e.store = st
	})
	if !first && !e.store.Hydrated() {
		e.store.Initialize(ctx)
	}
	return e.store
}

// Clear empties the user's cart; used after checkout.
func (m *Manager) Clear(ctx context.Context, userID string) domain.Collection {
	return m.Get(ctx, userID).Clear(ctx)
}

func (m *Manager) Key(userID string) string {
	return fmt.Sprintf("%s%s", m.prefix, userID)
}

// Len reports how many carts are held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// EvictIdle drops stores unused for longer than the idle TTL and returns how
// many were dropped. Stores with unwritten changes are kept.
func (m *Manager) EvictIdle() int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for userID, e := range m.stores {
		if !e.lastUsed.Before(cutoff) {
			continue
		}
		if e.store != nil && !e.store.Hydrated() {
			continue
		}
		delete(m.stores, userID)
		evicted++
	}
	return evicted
}

// Run evicts idle stores until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(m.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := m.EvictIdle(); n > 0 {
				m.logger.Debug("evicted idle carts", "count", n, "remaining", m.Len())
			}
		case <-ctx.Done():
			return
		}
	}
}
