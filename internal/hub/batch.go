package hub

import "sync"

// batchQueue holds low-priority frames for one recipient between flush
// ticks (spec §4.3, §4.4). FIFO order is preserved: append on enqueue,
// drain in order on flush.
type batchQueue struct {
	mu      sync.Mutex
	queues  map[string][][]byte // connectionId -> pending frames, oldest first
}

func newBatchQueue() *batchQueue {
	return &batchQueue{queues: make(map[string][][]byte)}
}

// enqueue appends a frame for connectionID. The batch engine tolerates a
// recipient disconnecting between enqueue and flush: flush simply looks the
// session up in the registry and drops the queue if it's gone.
func (b *batchQueue) enqueue(connectionID string, frame []byte) {
	b.mu.Lock()
	b.queues[connectionID] = append(b.queues[connectionID], frame)
	b.mu.Unlock()
}

// drain removes and returns every queue, oldest enqueue first per
// connection, for the flush tick to hand to writers.
func (b *batchQueue) drain() map[string][][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queues) == 0 {
		return nil
	}
	out := b.queues
	b.queues = make(map[string][][]byte)
	return out
}

func (b *batchQueue) dropConnection(connectionID string) {
	b.mu.Lock()
	delete(b.queues, connectionID)
	b.mu.Unlock()
}
