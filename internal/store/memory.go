package store

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process backend used by tests and safe for
// concurrent use.
type MemoryBackend struct {
	mu   sync.RWMutex
	kv   map[string][]byte
	jobs map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		kv:   make(map[string][]byte),
		jobs: make(map[string][]byte),
	}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.kv[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kv[key] = append([]byte(nil), value...)
	return nil
}

func (b *MemoryBackend) GetJob(_ context.Context, id string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.jobs[id]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBackend) PutJob(_ context.Context, id string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[id] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) AllJobs(_ context.Context) (map[string][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	jobs := make(map[string][]byte, len(b.jobs))
	for id, data := range b.jobs {
		jobs[id] = append([]byte(nil), data...)
	}
	return jobs, nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
