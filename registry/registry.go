// Package registry implements the concurrent client_id -> entity maps used
// by both the Session Registry (C1) and the Connection Registry (C2) of
// spec.md §4.1/§4.2. Both components have the same shape — "get or install",
// "replace capturing the displaced entry", "try remove", and a weakly
// consistent snapshot — so this package implements it once, generically.
package registry

import "sync"

// Registry is a concurrent map of client_id to an entity of type T. It is
// backed by sync.Map so that Snapshot (backed by Range) never blocks
// concurrent Store/Delete calls, matching the weak consistency spec.md §4.1
// requires: a session present for the whole duration of a snapshot appears
// exactly once, but one added or removed mid-iteration may or may not
// appear.
type Registry[T any] struct {
	entries sync.Map // string -> T
}

// New creates an empty Registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{}
}

// GetOrInstall returns the existing entry for id, or installs and returns
// the value produced by factory if none exists yet. factory may be invoked
// even when its result is discarded (the losing side of a race) — callers
// must keep factory free of externally visible side effects.
func (r *Registry[T]) GetOrInstall(id string, factory func() T) (value T, installed bool) {
	if existing, ok := r.entries.Load(id); ok {
		return existing.(T), false
	}
	actual, loaded := r.entries.LoadOrStore(id, factory())
	return actual.(T), !loaded
}

// Replace installs newValue under id unconditionally and returns whatever
// was previously there, if anything. Used by the Takeover Coordinator (C4)
// to atomically swap in a fresh Session or Connection.
func (r *Registry[T]) Replace(id string, newValue T) (old T, hadOld bool) {
	prev, loaded := r.entries.Swap(id, newValue)
	if !loaded {
		var zero T
		return zero, false
	}
	return prev.(T), true
}

// TryRemove removes and returns the entry for id, if any.
func (r *Registry[T]) TryRemove(id string) (old T, removed bool) {
	prev, loaded := r.entries.LoadAndDelete(id)
	if !loaded {
		var zero T
		return zero, false
	}
	return prev.(T), true
}

// Get returns the entry for id without mutating the registry.
func (r *Registry[T]) Get(id string) (value T, ok bool) {
	v, loaded := r.entries.Load(id)
	if !loaded {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Remove deletes the entry for id unconditionally. No-op if absent.
func (r *Registry[T]) Remove(id string) {
	r.entries.Delete(id)
}

// Snapshot returns every entry present at some point during the call. It
// never blocks a concurrent GetOrInstall/Replace/TryRemove.
func (r *Registry[T]) Snapshot() []T {
	out := make([]T, 0)

	r.entries.Range(func(_, value any) bool {
		out = append(out, value.(T))
		return true
	})

	return out
}

// Len returns the number of entries. Approximate under concurrent mutation.
func (r *Registry[T]) Len() int {
	n := 0
	r.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
