package link

// sendQueue is the bounded outbound buffer for a link. On overflow the
// oldest entry is evicted to make room for the newest. Contents flush in
// FIFO order on reconnection.
type sendQueue struct {
	cap   int
	items [][]byte
}

func newSendQueue(capacity int) *sendQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &sendQueue{cap: capacity}
}

// Push appends msg, evicting the oldest entry when full. The second return
// reports whether an eviction happened.
func (q *sendQueue) Push(msg []byte) (evicted []byte, ok bool) {
	if len(q.items) >= q.cap {
		evicted = q.items[0]
		q.items = q.items[1:]
		ok = true
	}
	q.items = append(q.items, msg)
	return evicted, ok
}

// Drain removes and returns everything in arrival order.
func (q *sendQueue) Drain() [][]byte {
	out := q.items
	q.items = nil
	return out
}

func (q *sendQueue) Len() int { return len(q.items) }
