// Package keylock hands out one mutex per key. Entries live for the life of
// the process; the key space (schools) is small and bounded.
package keylock

import "sync"

// Registry maps keys to mutexes
type Registry struct {
	locks sync.Map
}

// New creates an empty registry
func New() *Registry {
	return &Registry{}
}

// Get returns the mutex for key, creating it on first use. Concurrent first
// calls for the same key receive the same mutex.
func (r *Registry) Get(key string) *sync.Mutex {
	if m, ok := r.locks.Load(key); ok {
		return m.(*sync.Mutex)
	}
	m, _ := r.locks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Lock acquires the mutex for key and returns its unlock function
func (r *Registry) Lock(key string) func() {
	m := r.Get(key)
	m.Lock()
	return m.Unlock
}

// Len reports how many keys have been seen
func (r *Registry) Len() int {
	n := 0
	r.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
