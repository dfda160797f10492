// Package store provides DataStore implementations and the block-editor adapter over them.
package store

import (
	"context"
	"fmt"
	"sync"
)

// SelectorFunc computes a selector's current value.
type SelectorFunc func(args []any) any

// Memory is an in-process DataStore. Selectors are registered per store; Notify fans out to
// subscribers the way a store update would.
type Memory struct {
	mu          sync.RWMutex
	stores      map[string]map[string]SelectorFunc
	subscribers map[int]func()
	nextID      int
}

func NewMemory() *Memory {
	return &Memory{
		stores:      make(map[string]map[string]SelectorFunc),
		subscribers: make(map[int]func()),
	}
}

func (m *Memory) Register(storeName, selector string, fn SelectorFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sel, ok := m.stores[storeName]
	if !ok {
		sel = make(map[string]SelectorFunc)
		m.stores[storeName] = sel
	}

	sel[selector] = fn
}

// Set registers a selector returning a constant value and notifies subscribers.
func (m *Memory) Set(storeName, selector string, value any) {
	m.Register(storeName, selector, func([]any) any { return value })
	m.Notify()
}

func (m *Memory) Select(_ context.Context, storeName, selector string, args []any) (any, error) {
	m.mu.RLock()
	sel, ok := m.stores[storeName]
	var fn SelectorFunc
	if ok {
		fn = sel[selector]
	}
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown store %q", storeName)
	}

	if fn == nil {
		return nil, fmt.Errorf("unknown selector %q on store %q", selector, storeName)
	}

	return fn(args), nil
}

func (m *Memory) Subscribe(fn func()) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

func (m *Memory) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.subscribers)
}

func (m *Memory) Notify() {
	m.mu.RLock()
	fns := make([]func(), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
