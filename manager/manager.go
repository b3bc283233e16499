package manager

import (
	"fmt"

	"github.com/go-zoox/core-utils/safe"
)

// Manager is a typed registry over a concurrency-safe map. The server keeps
// live sessions in one so the status endpoint can enumerate them.
type Manager[T any] struct {
	cache *safe.Map
}

func New[T any]() *Manager[T] {
	return &Manager[T]{
		cache: safe.NewMap(),
	}
}

func (m *Manager[T]) Get(id string) (T, error) {
	if instance, ok := m.cache.Get(id).(T); ok {
		return instance, nil
	}

	var t T
	return t, fmt.Errorf("id %s not found", id)
}

func (m *Manager[T]) Set(id string, instance T) error {
	m.cache.Set(id, instance)
	return nil
}

func (m *Manager[T]) Remove(id string) error {
	m.cache.Del(id)
	return nil
}

func (m *Manager[T]) Keys() []string {
	return m.cache.Keys()
}
