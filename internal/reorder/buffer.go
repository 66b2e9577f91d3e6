package reorder

// Buffer reassembles gateway audio frames that may arrive out of order,
// keyed by their embedded timestamp. It holds at most capacity frames: an
// overflowing push drains the oldest buffered timestamp downstream, which
// advances the watermark and silently loses any slower sibling still in
// flight. Bounded memory and latency win over perfect delivery.
type Buffer struct {
    capacity int
    pending  map[uint32][]byte
    last     uint32 // highest timestamp already forwarded
    started  bool
    forward  func([]byte)
}

// New builds a buffer with the given capacity; forward receives frames in
// ascending timestamp order.
func New(capacity int, forward func([]byte)) *Buffer {
    if capacity <= 0 {
        capacity = 20
    }
    return &Buffer{
        capacity: capacity,
        pending:  make(map[uint32][]byte),
        forward:  forward,
    }
}

// Push inserts a timestamped frame. Frames at or below the last-forwarded
// watermark are duplicates or late arrivals and are dropped.
func (b *Buffer) Push(timestamp uint32, frame []byte) {
    if b.started && timestamp <= b.last {
        return
    }
    b.pending[timestamp] = frame
    for len(b.pending) > b.capacity {
        b.forwardOldest()
    }
}

// Flush drains every buffered frame downstream in ascending timestamp order.
// Callers invoke it on listen-stop and teardown so a short tail is not stuck
// waiting for the buffer to fill.
func (b *Buffer) Flush() {
    for len(b.pending) > 0 {
        b.forwardOldest()
    }
}

func (b *Buffer) forwardOldest() {
    var oldest uint32
    first := true
    for ts := range b.pending {
        if first || ts < oldest {
            oldest = ts
            first = false
        }
    }
    frame := b.pending[oldest]
    delete(b.pending, oldest)
    b.forward(frame)
    b.last = oldest
    b.started = true
}

// Pending reports how many frames are currently buffered.
func (b *Buffer) Pending() int { return len(b.pending) }
