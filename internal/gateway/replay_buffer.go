package gateway

import "sync"

// envelopeEntry pairs a channel_seq with the pre-built envelope JSON the
// hub broadcast under it.
type envelopeEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer retains the most recent envelopes broadcast on one PubSub
// channel (pub:bar:..., pub:snapshot:..., pub:signal:...). A client that
// spots a channel_seq gap asks /api/missed for the missing range and
// splices the returned envelopes in, instead of resubscribing and losing
// its place in the stream.
//
// Safe for concurrent use: the hub pushes while REST handlers read.
type ReplayBuffer struct {
	mu    sync.RWMutex
	buf   []envelopeEntry
	start int // index of the oldest envelope
	count int
}

// NewReplayBuffer creates a buffer retaining up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{buf: make([]envelopeEntry, capacity)}
}

// Push records an envelope under its channel sequence number, evicting
// the oldest once the buffer is full. The payload is copied because the
// hub reuses its encode buffer across broadcasts.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.count == len(rb.buf) {
		rb.buf[rb.start] = envelopeEntry{Seq: seq, Data: cp}
		rb.start = (rb.start + 1) % len(rb.buf)
		return
	}
	rb.buf[(rb.start+rb.count)%len(rb.buf)] = envelopeEntry{Seq: seq, Data: cp}
	rb.count++
}

// Range returns the retained envelopes with seq in [fromSeq, toSeq],
// oldest first. Sequences already evicted are silently absent; the
// /api/missed handler reports the gap via the first returned seq.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []envelopeEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []envelopeEntry
	for i := 0; i < rb.count; i++ {
		e := rb.buf[(rb.start+i)%len(rb.buf)]
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
