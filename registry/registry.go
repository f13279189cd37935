// Package registry is the process-wide, concurrency-safe resource map that
// lets a SIP connection find its Session by device-id and a media
// connection find its Session by SSRC (spec.md section 4.6).
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps both a device-id string and a numeric fast-id (the SSRC) to
// a T, plus holds anonymous entries for connections that have not yet
// bound to either key. Grounded on the teacher's DialogServer.dialogs
// sync.Map pattern (dialog_server.go), generalized with two key spaces
// instead of one and an anonymous-handle bucket.
type Registry[T any] struct {
	byID     sync.Map // string -> T
	byFastID sync.Map // uint32 -> T
	anon     sync.Map // string (uuid) -> T
}

// New returns an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{}
}

// AddWithID registers v under the device-id key id, replacing whatever was
// there (used when a SIP connection re-attaches to an existing device-id).
func (r *Registry[T]) AddWithID(id string, v T) {
	r.byID.Store(id, v)
}

// AddWithFastID registers v under the numeric SSRC key id.
func (r *Registry[T]) AddWithFastID(id uint32, v T) {
	r.byFastID.Store(id, v)
}

// FindByID looks up v by device-id.
func (r *Registry[T]) FindByID(id string) (T, bool) {
	val, ok := r.byID.Load(id)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// FindByFastID looks up v by SSRC.
func (r *Registry[T]) FindByFastID(id uint32) (T, bool) {
	val, ok := r.byFastID.Load(id)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// Remove deletes the device-id and SSRC entries for v, if present. Callers
// pass whichever keys they know; a zero id/fastID is skipped.
func (r *Registry[T]) Remove(id string, fastID uint32) {
	if id != "" {
		r.byID.Delete(id)
	}
	if fastID != 0 {
		r.byFastID.Delete(fastID)
	}
}

// Handle is an anonymous registry entry created for a freshly accepted
// connection before its device-id or SSRC is known (spec.md section 4.6 /
// 5). It must be explicitly removed once the connection either binds to a
// real key or tears down.
type Handle struct {
	key string
}

// AddAnonymous registers v under a fresh, unguessable key and returns a
// handle the caller uses to remove it later. Grounded on spec.md's decision
// (SPEC_FULL.md section 13, open question 3): the anonymous entry must
// survive until the later keyed insert succeeds, never be silently
// overwritten by it.
func (r *Registry[T]) AddAnonymous(v T) Handle {
	key := uuid.NewString()
	r.anon.Store(key, v)
	return Handle{key: key}
}

// RemoveAnonymous deletes the anonymous entry behind h, if still present.
func (r *Registry[T]) RemoveAnonymous(h Handle) {
	if h.key != "" {
		r.anon.Delete(h.key)
	}
}

// Range calls fn for every device-id-keyed entry, stopping early if fn
// returns false. Used by the session controller's 300ms tick (spec.md
// section 4.5) to drive every live session without a second index.
func (r *Registry[T]) Range(fn func(id string, v T) bool) {
	r.byID.Range(func(k, v any) bool {
		return fn(k.(string), v.(T))
	})
}
