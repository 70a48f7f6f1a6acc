package persistence

import (
	"context"
	"sync"
)

// Memory implements KV with an in-process map. It backs single-node
// deployments and tests; failures can be injected with FailReads/FailWrites.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	readErr  error
	writeErr error
	writes   int
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.readErr != nil {
		return nil, m.readErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Write(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	m.data[key] = append([]byte(nil), value...)
	m.writes++
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// FailReads makes every following Read return err; nil restores normal reads.
func (m *Memory) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailWrites makes every following Write return err; nil restores normal writes.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Writes reports how many writes succeeded.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

var _ Cache = (*Memory)(nil)
