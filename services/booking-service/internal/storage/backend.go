package storage

import (
	"context"
	"sync"
)

// Keys of the persisted state. Each value is a JSON array.
const (
	KeyServices     = "services"
	KeyAppointments = "appointments"
	KeySchedule     = "businessSchedule"
	KeySpecialDates = "specialDates"
)

// Backend is the string keyed blob store behind Store.
type Backend interface {
	// Load returns ok=false when key has never been saved.
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	Save(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
}

// MemoryBackend keeps state in process memory. Useful for tests and for
// running the service without external dependencies.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: map[string][]byte{}}
}

func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryBackend) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }
