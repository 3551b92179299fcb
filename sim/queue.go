// Implements the OrderQueue, which holds orders waiting for the kitchen or for a robot.
// Orders are kept in submission order.

package sim

import (
	"fmt"
	"strings"
)

// OrderQueue represents a FIFO queue of orders keyed by submission order.
type OrderQueue struct {
	queue []*Order
}

// Enqueue adds an order to the back of the queue.
func (q *OrderQueue) Enqueue(o *Order) {
	q.queue = append(q.queue, o)
}

// InsertOrdered places o so that the queue stays sorted by submission order.
// Used for the ready queue, where preparation can finish out of arrival order.
func (q *OrderQueue) InsertOrdered(o *Order) {
	idx := len(q.queue)
	for i, cur := range q.queue {
		if cur.seq > o.seq {
			idx = i
			break
		}
	}
	q.queue = append(q.queue, nil)
	copy(q.queue[idx+1:], q.queue[idx:])
	q.queue[idx] = o
}

func (q *OrderQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, val := range q.queue {
		sb.WriteString(fmt.Sprint(val))
		if i < len(q.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Len returns the number of orders in the queue.
func (q *OrderQueue) Len() int {
	return len(q.queue)
}

// Peek returns the order at the front of the queue without removing it.
// Returns nil if the queue is empty.
func (q *OrderQueue) Peek() *Order {
	if len(q.queue) == 0 {
		return nil
	}
	return q.queue[0]
}

// Items returns the queue contents for iteration. Callers MUST NOT modify the slice.
func (q *OrderQueue) Items() []*Order {
	return q.queue
}

// Dequeue removes and returns the order at the front of the queue.
func (q *OrderQueue) Dequeue() *Order {
	if len(q.queue) == 0 {
		return nil
	}
	o := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	return o
}
