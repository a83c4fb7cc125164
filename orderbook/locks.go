package orderbook

import "sync"

// Locks serializes work per owner. The book and the cash job share one table
// so an order and a scheduled withdrawal for the same owner never interleave.
// Always take the owner lock before opening a store transaction.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{m: make(map[string]*sync.Mutex)}
}

// Lock blocks until owner's lock is held and returns the release func.
func (l *Locks) Lock(owner string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.m[owner]
	if !ok {
		m = &sync.Mutex{}
		l.m[owner] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
