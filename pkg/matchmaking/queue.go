// Package matchmaking holds the waiting players, bucketed by time control and
// rated flag, and pairs them strictly first-in first-out.
package matchmaking

import (
	"errors"
	"time"
)

// ErrAlreadyQueued is returned when the user already waits in some bucket.
var ErrAlreadyQueued = errors.New("already queued")

// waitSamples is the size of the per-bucket moving average.
const waitSamples = 20

// Key identifies a bucket.
type Key struct {
	TimeControl string
	Rated       bool
}

// Entry is a waiting player.
type Entry struct {
	UserID          string
	Handle          string
	Guest           bool
	ConnID          string
	Key             Key
	Rating          int
	RatingDeviation int
	EnqueuedAt      time.Time
}

// Pair is two entries popped from the same bucket, oldest first.
type Pair struct {
	Key  Key
	A, B Entry
	At   time.Time
}

type bucket struct {
	entries []Entry
	waits   []time.Duration
}

// Queue is the set of buckets. Not safe for concurrent use.
type Queue struct {
	buckets map[Key]*bucket
	order   []Key
	members map[string]Key
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		buckets: make(map[Key]*bucket),
		members: make(map[string]Key),
	}
}

// Enqueue appends e to its bucket.
func (q *Queue) Enqueue(e Entry) error {
	if _, ok := q.members[e.UserID]; ok {
		return ErrAlreadyQueued
	}

	b, ok := q.buckets[e.Key]
	if !ok {
		b = &bucket{}
		q.buckets[e.Key] = b
		q.order = append(q.order, e.Key)
	}
	b.entries = append(b.entries, e)
	q.members[e.UserID] = e.Key
	return nil
}

// Dequeue removes userID from whichever bucket holds it.
func (q *Queue) Dequeue(userID string) bool {
	key, ok := q.members[userID]
	if !ok {
		return false
	}
	delete(q.members, userID)

	b := q.buckets[key]
	for i, e := range b.entries {
		if e.UserID == userID {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether userID is queued, and where.
func (q *Queue) Contains(userID string) (Key, bool) {
	key, ok := q.members[userID]
	return key, ok
}

// lookup returns the queued entry of userID.
func (q *Queue) lookup(userID string) (Entry, bool) {
	key, ok := q.members[userID]
	if !ok {
		return Entry{}, false
	}
	for _, e := range q.buckets[key].entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return Entry{}, false
}

// Drain empties every bucket and returns the removed entries.
func (q *Queue) Drain() []Entry {
	var out []Entry
	for _, key := range q.order {
		b := q.buckets[key]
		out = append(out, b.entries...)
		b.entries = nil
	}
	q.members = make(map[string]Key)
	return out
}

// Len returns the number of queued users.
func (q *Queue) Len() int {
	return len(q.members)
}

// BucketLen returns the number of users waiting in key.
func (q *Queue) BucketLen(key Key) int {
	b, ok := q.buckets[key]
	if !ok {
		return 0
	}
	return len(b.entries)
}

// Tick pops the two oldest entries of every bucket while it holds at least
// two. Buckets are visited in creation order.
func (q *Queue) Tick(now time.Time) []Pair {
	var pairs []Pair
	for _, key := range q.order {
		b := q.buckets[key]
		for len(b.entries) >= 2 {
			a, c := b.entries[0], b.entries[1]
			b.entries = b.entries[2:]
			delete(q.members, a.UserID)
			delete(q.members, c.UserID)

			b.record(now.Sub(a.EnqueuedAt))
			b.record(now.Sub(c.EnqueuedAt))
			pairs = append(pairs, Pair{Key: key, A: a, B: c, At: now})
		}
	}
	return pairs
}

func (b *bucket) record(d time.Duration) {
	if d < 0 {
		d = 0
	}
	b.waits = append(b.waits, d)
	if len(b.waits) > waitSamples {
		b.waits = b.waits[len(b.waits)-waitSamples:]
	}
}

// EstimatedWait is the mean wait of the most recent pairings in key, zero
// when nothing was paired yet.
func (q *Queue) EstimatedWait(key Key) time.Duration {
	b, ok := q.buckets[key]
	if !ok || len(b.waits) == 0 {
		return 0
	}
	var sum time.Duration
	for _, w := range b.waits {
		sum += w
	}
	return sum / time.Duration(len(b.waits))
}
