package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReorderQueue_PushBumpsOnCollisionUpToTen(t *testing.T) {
	q := newReorderQueue()

	for i := 0; i < maxCollisionBump; i++ {
		ok := q.push(Sample{Video: true, DTS: 1000})
		require.True(t, ok, "attempt %d should still find a free slot", i)
	}
	// 11th collision at the same dts: all maxCollisionBump slots (1000, 1090, ..., 1810) taken.
	ok := q.push(Sample{Video: true, DTS: 1000})
	assert.False(t, ok)
	assert.Equal(t, maxCollisionBump, q.nbVideos)
}

func TestReorderQueue_ReadyWhenBothFloorsMet(t *testing.T) {
	q := newReorderQueue()
	assert.False(t, q.readyToDequeue())

	q.push(Sample{Video: true, DTS: 1})
	q.push(Sample{Video: true, DTS: 2})
	assert.False(t, q.readyToDequeue()) // audio floor not met

	q.push(Sample{Video: false, DTS: 3})
	q.push(Sample{Video: false, DTS: 4})
	assert.True(t, q.readyToDequeue())
}

func TestReorderQueue_VideoOverflowForcesReady(t *testing.T) {
	q := newReorderQueue()
	for i := 0; i < videoOverflow+1; i++ {
		q.push(Sample{Video: true, DTS: uint64(i * 100)})
	}
	assert.True(t, q.readyToDequeue())
}

func TestReorderQueue_AudioOverflowForcesReady(t *testing.T) {
	q := newReorderQueue()
	for i := 0; i < audioOverflow+1; i++ {
		q.push(Sample{Video: false, DTS: uint64(i * 100)})
	}
	assert.True(t, q.readyToDequeue())
}

func TestReorderQueue_DequeueAllReturnsDTSOrderAndResets(t *testing.T) {
	q := newReorderQueue()
	q.push(Sample{Video: true, DTS: 300})
	q.push(Sample{Video: false, DTS: 100})
	q.push(Sample{Video: true, DTS: 200})

	out := q.dequeueAll()
	require.Len(t, out, 3)
	assert.Equal(t, uint64(100), out[0].DTS)
	assert.Equal(t, uint64(200), out[1].DTS)
	assert.Equal(t, uint64(300), out[2].DTS)

	assert.Equal(t, 0, q.nbVideos)
	assert.Equal(t, 0, q.nbAudios)
	assert.False(t, q.readyToDequeue())
	assert.Empty(t, q.dequeueAll())
}
