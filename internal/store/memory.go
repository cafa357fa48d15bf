package store

import (
	"context"
	"sync"
)

// Memory is a map-backed Blobs for tests and throwaway runs.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
	// putErr, when set, fails every Put.
	putErr error
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}

// SetPutErr toggles write failures.
func (m *Memory) SetPutErr(err error) {
	m.mu.Lock()
	m.putErr = err
	m.mu.Unlock()
}

func (m *Memory) Healthy(context.Context) bool { return true }

func (m *Memory) Close() error { return nil }
