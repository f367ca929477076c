package process

import (
	"bytes"
	"sync"
	"time"
)

// Transcript is the append-only output log of one job. With a positive
// capacity only the most recent chunks are retained; sequence numbers keep
// counting so readers can tell what they missed.
type Transcript struct {
	mu       sync.Mutex
	jobID    string
	chunks   []Chunk
	next     uint64 // sequence number of the next chunk
	capacity int    // <= 0 means unbounded
	closed   bool
	notify   chan struct{} // closed and replaced on every change
}

func newTranscript(jobID string, capacity int) *Transcript {
	return &Transcript{
		jobID:    jobID,
		capacity: capacity,
		notify:   make(chan struct{}),
	}
}

// Append records data from stream. It never blocks on readers.
func (t *Transcript) Append(stream Stream, data []byte) (Chunk, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Chunk{}, false
	}

	c := Chunk{
		JobID:  t.jobID,
		Seq:    t.next,
		Stream: stream,
		Data:   append([]byte(nil), data...),
		Time:   time.Now().UTC(),
	}
	t.next++
	t.chunks = append(t.chunks, c)
	if t.capacity > 0 && len(t.chunks) > t.capacity {
		t.chunks = t.chunks[len(t.chunks)-t.capacity:]
	}
	t.wake()
	return c, true
}

// Close marks the transcript complete.
func (t *Transcript) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.wake()
}

func (t *Transcript) wake() {
	close(t.notify)
	t.notify = make(chan struct{})
}

// Since returns retained chunks with sequence number >= seq, the sequence
// number to ask for next, a channel closed on the next change, and whether
// the transcript is complete.
func (t *Transcript) Since(seq uint64) ([]Chunk, uint64, <-chan struct{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Chunk
	if len(t.chunks) > 0 {
		base := t.chunks[0].Seq
		idx := 0
		if seq > base {
			idx = int(seq - base)
		}
		if idx < len(t.chunks) {
			out = make([]Chunk, len(t.chunks)-idx)
			copy(out, t.chunks[idx:])
		}
	}
	return out, t.next, t.notify, t.closed
}

// ReadAll returns all retained chunks in order.
func (t *Transcript) ReadAll() []Chunk {
	chunks, _, _, _ := t.Since(0)
	return chunks
}

// Bytes returns the retained output of both streams in arrival order.
func (t *Transcript) Bytes() []byte {
	var buf bytes.Buffer
	for _, c := range t.ReadAll() {
		buf.Write(c.Data)
	}
	return buf.Bytes()
}

// Len returns the number of chunks ever appended.
func (t *Transcript) Len() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}
