package wsresource

import "sync"

// Outbound message waiting for delivery.
type PendingWrite struct {
	// Text content or base64 encoded content when IsBinary is true
	Message string
	// Whether the message must be sent as a binary message
	IsBinary bool
}

// FIFO of pending writes shared by producers (Send callers) and the drain driver.
type writeQueue struct {
	mu      sync.Mutex
	pending []PendingWrite
}

// Append a pending write at the tail of the queue.
func (queue *writeQueue) Push(write PendingWrite) {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	queue.pending = append(queue.pending, write)
}

// Remove and return the head of the queue. Return false if the queue is empty.
func (queue *writeQueue) TryPop() (PendingWrite, bool) {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	if len(queue.pending) == 0 {
		return PendingWrite{}, false
	}
	head := queue.pending[0]
	// Release the reference so the backing array does not retain consumed payloads
	queue.pending[0] = PendingWrite{}
	queue.pending = queue.pending[1:]
	if len(queue.pending) == 0 {
		queue.pending = nil
	}
	return head, true
}

func (queue *writeQueue) Len() int {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	return len(queue.pending)
}

func (queue *writeQueue) Empty() bool {
	return queue.Len() == 0
}
