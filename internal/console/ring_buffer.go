package console

import (
	"sync"
	"time"
)

// Diagnostic records one failed or notable exchange with the service.
type Diagnostic struct {
	Op        string    `json:"op"`   // "execute" | "health" | "system-info"
	Kind      string    `json:"kind"` // "transport" | "timeout" | "status" | "command" | "connectivity"
	Message   string    `json:"message"`
	Command   string    `json:"command,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RingBuffer is a fixed-capacity circular buffer of Diagnostics. Old
// records are overwritten once it is full.
type RingBuffer struct {
	mu       sync.RWMutex
	buf      []Diagnostic
	capacity int
	pos      int // next write position
	full     bool
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		buf:      make([]Diagnostic, capacity),
		capacity: capacity,
	}
}

// Write adds a record to the ring buffer.
func (rb *RingBuffer) Write(d Diagnostic) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	rb.buf[rb.pos] = d
	rb.pos = (rb.pos + 1) % rb.capacity
	if rb.pos == 0 {
		rb.full = true
	}
}

// ReadAll returns all records in chronological order.
func (rb *RingBuffer) ReadAll() []Diagnostic {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if !rb.full {
		result := make([]Diagnostic, rb.pos)
		copy(result, rb.buf[:rb.pos])
		return result
	}

	result := make([]Diagnostic, rb.capacity)
	copy(result, rb.buf[rb.pos:])
	copy(result[rb.capacity-rb.pos:], rb.buf[:rb.pos])
	return result
}
