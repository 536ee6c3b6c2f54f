package runtime

import "sync"

// startStopLock is the single named lock serializing membership
// operations. It is appliance-wide, not per-realm: the appliance
// participates in exactly one realm at a time.
const startStopLock = "directoryservices.start_stop"

// LockRegistry is a process-wide registry of named operation locks
// with acquire-or-skip semantics. It is guarded by its own mutex,
// independent of any operation it protects.
type LockRegistry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockRegistry creates an empty lock registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{held: make(map[string]struct{})}
}

// TryAcquire attempts to take the named lock without blocking. On
// success it returns a release function that must be called on every
// exit path, and true. If the lock is already held it returns false.
func (r *LockRegistry) TryAcquire(name string) (release func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.held[name]; busy {
		return nil, false
	}
	r.held[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.held, name)
			r.mu.Unlock()
		})
	}, true
}

// Held reports whether the named lock is currently held.
func (r *LockRegistry) Held(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.held[name]
	return busy
}
