package mux

import "sort"

// reorderQueue is the small batch/reorder queue spec.md section 4.4
// names: a dts-keyed map with a bounded collision-bump policy and a
// video/audio-count-driven dequeue threshold. Grounded on spec.md's own
// description; SPEC_FULL.md section 13 resolves the spec's two
// conflicting collision-bump constants (10 vs 100) in favor of 10.
type reorderQueue struct {
	byDTS    map[uint64]Sample
	order    []uint64 // occupied dts keys; dequeueAll sorts them so the oldest dts comes first
	nbVideos int
	nbAudios int
}

const (
	maxCollisionBump  = 10
	collisionBumpDTS  = 90 // 1 ms of the 90 kHz dts clock
	dequeueVideoFloor = 2
	dequeueAudioFloor = 2
	videoOverflow     = 100
	audioOverflow     = 300
)

func newReorderQueue() *reorderQueue {
	return &reorderQueue{byDTS: make(map[uint64]Sample)}
}

// push inserts s, bumping its dts by 1 ms (collisionBumpDTS) per
// collision, for at most maxCollisionBump slots in all; it reports false
// if the sample was dropped because every one of those slots was occupied.
func (q *reorderQueue) push(s Sample) bool {
	dts := s.DTS
	for attempt := 0; attempt < maxCollisionBump; attempt++ {
		if _, exists := q.byDTS[dts]; !exists {
			q.byDTS[dts] = s
			q.order = append(q.order, dts)
			if s.Video {
				q.nbVideos++
			} else {
				q.nbAudios++
			}
			return true
		}
		dts += collisionBumpDTS
	}
	return false
}

// readyToDequeue reports whether the queue meets spec.md section 4.4's
// dequeue threshold: a balanced minimum backlog, or an overflow escape
// hatch so one starved stream never blocks the other indefinitely.
func (q *reorderQueue) readyToDequeue() bool {
	if q.nbVideos >= dequeueVideoFloor && q.nbAudios >= dequeueAudioFloor {
		return true
	}
	return q.nbVideos > videoOverflow || q.nbAudios > audioOverflow
}

// dequeueAll drains the queue in ascending dts order (spec.md's "dequeue
// returns the oldest by map order"), resetting the counters.
func (q *reorderQueue) dequeueAll() []Sample {
	sort.Slice(q.order, func(i, j int) bool { return q.order[i] < q.order[j] })
	out := make([]Sample, 0, len(q.order))
	for _, dts := range q.order {
		out = append(out, q.byDTS[dts])
	}
	q.byDTS = make(map[uint64]Sample)
	q.order = nil
	q.nbVideos = 0
	q.nbAudios = 0
	return out
}
