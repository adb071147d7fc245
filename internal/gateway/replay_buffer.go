package gateway

import "sync"

type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent command envelopes so a reconnecting
// client can catch up from its last seen sequence number instead of
// rebuilding from a snapshot.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	head    int // index of the oldest entry
	size    int
}

// NewReplayBuffer returns a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ReplayBuffer{entries: make([]replayEntry, capacity)}
}

// Push appends an envelope, evicting the oldest when full. Sequence numbers
// must be pushed in increasing order.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(rb.entries)
	if rb.size < n {
		rb.entries[(rb.head+rb.size)%n] = replayEntry{Seq: seq, Data: cp}
		rb.size++
		return
	}
	rb.entries[rb.head] = replayEntry{Seq: seq, Data: cp}
	rb.head = (rb.head + 1) % n
}

// Since returns every envelope with seq > after, oldest first. ok is false
// when envelopes after the given sequence have already been evicted, in
// which case the caller needs a full snapshot.
func (rb *ReplayBuffer) Since(after int64) (out [][]byte, ok bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil, true
	}
	if oldest := rb.at(0).Seq; after < oldest-1 {
		return nil, false
	}
	for i := 0; i < rb.size; i++ {
		if e := rb.at(i); e.Seq > after {
			out = append(out, e.Data)
		}
	}
	return out, true
}

// Range returns envelopes with seq in [from, to], oldest first.
func (rb *ReplayBuffer) Range(from, to int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	for i := 0; i < rb.size; i++ {
		if e := rb.at(i); e.Seq >= from && e.Seq <= to {
			out = append(out, e.Data)
		}
	}
	return out
}

// Len returns the number of buffered envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

func (rb *ReplayBuffer) at(i int) replayEntry {
	return rb.entries[(rb.head+i)%len(rb.entries)]
}
