package draftcache

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryKV keeps entries for the lifetime of the process.
type MemoryKV struct {
	entries sync.Map
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.entries.Load(key); ok {
		return slices.Clone(v.([]byte)), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.entries.Store(key, slices.Clone(value))
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

func (m *MemoryKV) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	m.entries.Range(func(k, _ any) bool {
		if s := k.(string); strings.HasPrefix(s, prefix) {
			keys = append(keys, s)
		}
		return true
	})
	slices.Sort(keys)
	return keys, nil
}

func (m *MemoryKV) Close() error {
	return nil
}
