package kvstore

import (
	"context"
	"sync"
)

const subscriptionBuffer = 16

// Memory is an in-process Store. Useful for single-node deployments and
// tests; it offers the same delivery semantics as the network backends.
type Memory struct {
	values      map[string]string
	subscribers map[string]map[*memorySub]struct{}
	mu          sync.RWMutex
	closed      bool
}

type memorySub struct {
	ch        chan Event
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process store
func NewMemory() *Memory {
	return &Memory{
		values:      make(map[string]string),
		subscribers: make(map[string]map[*memorySub]struct{}),
	}
}

// Get returns the value stored under key
func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrClosed
	}
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key and notifies subscribers
func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.values[key] = value
	subs := m.snapshotLocked(key)
	m.mu.Unlock()

	for _, s := range subs {
		s.deliver(Event{Value: value})
	}
	return nil
}

// Fail delivers err to every subscriber of key without touching the value.
// It simulates a transport fault on the notification channel.
func (m *Memory) Fail(key string, err error) {
	m.mu.RLock()
	subs := m.snapshotLocked(key)
	m.mu.RUnlock()

	for _, s := range subs {
		s.deliver(Event{Err: err})
	}
}

// Subscribe streams values written to key after this call returns
func (m *Memory) Subscribe(ctx context.Context, key string) (<-chan Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &memorySub{ch: make(chan Event, subscriptionBuffer)}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.subscribers[key] == nil {
		m.subscribers[key] = make(map[*memorySub]struct{})
	}
	m.subscribers[key][sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		if set := m.subscribers[key]; set != nil {
			delete(set, sub)
			if len(set) == 0 {
				delete(m.subscribers, key)
			}
		}
		m.mu.Unlock()
		sub.close()
	}()

	return sub.ch, nil
}

// SubscriberCount returns the number of live subscriptions on key
func (m *Memory) SubscriberCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[key])
}

// Close ends every subscription; later operations return ErrClosed
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var all []*memorySub
	for key, set := range m.subscribers {
		for s := range set {
			all = append(all, s)
		}
		delete(m.subscribers, key)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.close()
	}
	return nil
}

func (m *Memory) snapshotLocked(key string) []*memorySub {
	set := m.subscribers[key]
	subs := make([]*memorySub, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	return subs
}

// deliver never blocks. A full buffer drops its oldest event so a slow
// reader always ends up with the latest value.
func (s *memorySub) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *memorySub) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}
