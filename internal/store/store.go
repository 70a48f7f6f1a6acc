package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/fjod/go_cart/lineitems/internal/domain"
	"github.com/fjod/go_cart/lineitems/internal/persistence"
	"github.com/shopspring/decimal"
)

// Listener receives a snapshot of the collection after every change.
type Listener func(domain.Collection)

// Store owns the line items of one cart and mirrors them to a KV under a
// single key. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	kv        persistence.KV
	key       string
	items     domain.Collection
	listeners []subscription
	nextID    int

	// hydrated is false until a KV read succeeds. Until then changes are
	// kept in pending and replayed over the loaded collection, so an empty
	// in-memory cart never overwrites a durable one.
	hydrated bool
	pending  []mutation

	onPersistError func(error)
	logger         *slog.Logger
}

type mutation func(domain.Collection) (domain.Collection, bool, error)

type subscription struct {
	id int
	fn Listener
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPersistErrorHandler receives every failed write as a *PersistenceError.
// The in-memory change it belongs to has already been applied.
func WithPersistErrorHandler(fn func(error)) Option {
	return func(s *Store) { s.onPersistError = fn }
}

func New(kv persistence.KV, key string, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		key:    key,
		items:  domain.Collection{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.onPersistError == nil {
		s.onPersistError = func(err error) {
			s.logger.Error("line items not persisted", "key", s.key, "error", err)
		}
	}
	return s
}

func (s *Store) Key() string {
	return s.key
}

// Initialize hydrates the store from the KV. Missing or corrupt payloads
// yield an empty cart. A failed read also yields an empty cart but leaves
// the store unhydrated; the load is retried before the next change and by
// the next Initialize.
func (s *Store) Initialize(ctx context.Context) domain.Collection {
	s.mu.Lock()
	replayed := s.hydrateLocked(ctx)
	var persistErr error
	if replayed {
		persistErr = s.persistLocked(ctx, "initialize")
	}
	snapshot, listeners := s.items.Clone(), s.listenersLocked()
	s.mu.Unlock()

	if persistErr != nil {
		s.onPersistError(persistErr)
	}
	notify(listeners, snapshot)
	return snapshot
}

// Hydrated reports whether the store holds what the KV held at its last
// successful read.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// hydrateLocked reloads items from the KV and replays pending changes over
// them. It reports whether a replay happened, i.e. the result needs writing.
func (s *Store) hydrateLocked(ctx context.Context) bool {
	items, err := s.load(ctx)
	if err != nil {
		s.hydrated = false
		s.logger.Warn("cart not loaded, changes kept pending", "key", s.key, "pending", len(s.pending), "error", err)
		return false
	}
	s.hydrated = true
	if len(s.pending) == 0 {
		s.items = items
		return false
	}

	for _, fn := range s.pending {
		if next, changed, err := fn(items); err == nil && changed {
			items = next
		}
	}
	s.pending = nil
	s.items = items
	return true
}

func (s *Store) load(ctx context.Context) (domain.Collection, error) {
	data, err := s.kv.Read(ctx, s.key)
	if errors.Is(err, persistence.ErrNotFound) {
		return domain.Collection{}, nil
	}
	if err != nil {
		return nil, readError(s.key, err)
	}

	items, err := domain.Decode(data)
	if err != nil {
		s.logger.Warn("discarding malformed cart payload", "key", s.key, "error", err)
		return domain.Collection{}, nil
	}
	return items, nil
}

// Upsert adds one unit of e. A known id only gains quantity; its name,
// price and image stay as first written.
func (s *Store) Upsert(ctx context.Context, e domain.Entry) (domain.Collection, error) {
	return s.mutate(ctx, "upsert", func(items domain.Collection) (domain.Collection, bool, error) {
		if i := items.IndexOf(e.ID); i >= 0 {
			next := items.Clone()
			next[i].Quantity++
			return next, true, nil
		}

		item, err := domain.NewLineItem(e)
		if err != nil {
			return nil, false, err
		}
		return append(items.Clone(), item), true, nil
	})
}

// Decrement takes one unit of id away, dropping the line at zero. Unknown
// ids are ignored.
func (s *Store) Decrement(ctx context.Context, id domain.ItemID) domain.Collection {
	items, _ := s.mutate(ctx, "decrement", func(items domain.Collection) (domain.Collection, bool, error) {
		i := items.IndexOf(id)
		if i < 0 {
			return nil, false, nil
		}
		if items[i].Quantity > 1 {
			next := items.Clone()
			next[i].Quantity--
			return next, true, nil
		}
		return without(items, i), true, nil
	})
	return items
}

// Remove drops the whole line for id. Unknown ids are ignored.
func (s *Store) Remove(ctx context.Context, id domain.ItemID) domain.Collection {
	items, _ := s.mutate(ctx, "remove", func(items domain.Collection) (domain.Collection, bool, error) {
		i := items.IndexOf(id)
		if i < 0 {
			return nil, false, nil
		}
		return without(items, i), true, nil
	})
	return items
}

// Clear empties the cart and persists the empty collection.
func (s *Store) Clear(ctx context.Context) domain.Collection {
	items, _ := s.mutate(ctx, "clear", func(domain.Collection) (domain.Collection, bool, error) {
		return domain.Collection{}, true, nil
	})
	return items
}

// Deduct takes the quantities in ordered away from the cart, dropping lines
// that reach zero. Lines added or raised since ordered was read stay.
func (s *Store) Deduct(ctx context.Context, ordered domain.Collection) domain.Collection {
	items, _ := s.mutate(ctx, "deduct", func(items domain.Collection) (domain.Collection, bool, error) {
		next := make(domain.Collection, 0, len(items))
		changed := false
		for _, item := range items {
			if i := ordered.IndexOf(item.ID); i >= 0 {
				item.Quantity -= ordered[i].Quantity
				changed = true
			}
			if item.Quantity > 0 {
				next = append(next, item)
			}
		}
		if !changed {
			return nil, false, nil
		}
		return next, true, nil
	})
	return items
}

func (s *Store) Items() domain.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Clone()
}

func (s *Store) TotalQuantity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.TotalQuantity()
}

func (s *Store) TotalValue() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.TotalValue()
}

// Subscribe registers fn for change notifications and returns a func that
// removes it. Listeners run synchronously on the mutating goroutine, after
// the store lock is released, so they may read from the store.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// mutate applies fn to the current items. fn must not modify its argument;
// it returns the next collection and whether anything changed. The write to
// the KV happens under the lock so persisted order matches call order.
func (s *Store) mutate(ctx context.Context, op string, fn mutation) (domain.Collection, error) {
	s.mu.Lock()
	wasHydrated, replayed := s.hydrated, false
	if !wasHydrated {
		replayed = s.hydrateLocked(ctx)
	}
	loaded := !wasHydrated && s.hydrated

	next, changed, err := fn(s.items)
	if err != nil || !changed {
		if !loaded {
			snapshot := s.items.Clone()
			s.mu.Unlock()
			return snapshot, err
		}
		next = s.items
	}

	s.items = next
	var persistErr error
	switch {
	case s.hydrated && (changed || replayed):
		persistErr = s.persistLocked(ctx, op)
	case !s.hydrated && changed:
		s.pending = append(s.pending, fn)
		persistErr = writeError(op, s.key, ErrNotHydrated)
	}
	snapshot, listeners := s.items.Clone(), s.listenersLocked()
	s.mu.Unlock()

	if persistErr != nil {
		s.onPersistError(persistErr)
	}
	notify(listeners, snapshot)
	return snapshot, err
}

func (s *Store) persistLocked(ctx context.Context, op string) error {
	data, err := domain.Encode(s.items)
	if err != nil {
		return writeError(op, s.key, err)
	}
	if err := s.kv.Write(ctx, s.key, data); err != nil {
		return writeError(op, s.key, err)
	}
	return nil
}

func (s *Store) listenersLocked() []Listener {
	out := make([]Listener, len(s.listeners))
	for i, sub := range s.listeners {
		out[i] = sub.fn
	}
	return out
}

func notify(listeners []Listener, snapshot domain.Collection) {
	for _, l := range listeners {
		l(snapshot.Clone())
	}
}

func without(items domain.Collection, i int) domain.Collection {
	next := make(domain.Collection, 0, len(items)-1)
	next = append(next, items[:i]...)
	return append(next, items[i+1:]...)
}
