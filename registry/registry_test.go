package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryByIDAndFastID(t *testing.T) {
	r := New[string]()

	r.AddWithID("34020000001320000001", "session-a")
	r.AddWithFastID(1234567890, "session-a")

	v, ok := r.FindByID("34020000001320000001")
	require.True(t, ok)
	assert.Equal(t, "session-a", v)

	v, ok = r.FindByFastID(1234567890)
	require.True(t, ok)
	assert.Equal(t, "session-a", v)

	_, ok = r.FindByID("nope")
	assert.False(t, ok)

	r.Remove("34020000001320000001", 1234567890)
	_, ok = r.FindByID("34020000001320000001")
	assert.False(t, ok)
	_, ok = r.FindByFastID(1234567890)
	assert.False(t, ok)
}

func TestRegistryAnonymousHandle(t *testing.T) {
	r := New[int]()

	h := r.AddAnonymous(42)
	r.RemoveAnonymous(h)

	// Removing twice must not panic.
	r.RemoveAnonymous(h)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.AddWithFastID(uint32(i), i)
			r.FindByFastID(uint32(i))
			r.Remove("", uint32(i))
		}(i)
	}
	wg.Wait()
}
