// Package bot wires the trackers and the polling loop that drives them.
package bot

import "gridscalper/trader"

// ReopenEntry describes a grid position to re-place after an opposite-side
// closure wiped it: same grid price, same quantity, opposite side. Only used
// in neutral mode, where the exchange's one-way position handling closes all
// exposure on any closing order.
type ReopenEntry struct {
	Price    float64
	Quantity float64
	Side     trader.OrderSide
}

// ReopenQueue is a FIFO of pending reopen orders. The grid tracker drains at
// most one entry per cycle so the counter and exit rules get a chance to run
// between reopens.
type ReopenQueue struct {
	entries []ReopenEntry
}

func (q *ReopenQueue) Enqueue(e ReopenEntry) {
	q.entries = append(q.entries, e)
}

// Dequeue pops the oldest entry. The second return is false when the queue
// is empty.
func (q *ReopenQueue) Dequeue() (ReopenEntry, bool) {
	if len(q.entries) == 0 {
		return ReopenEntry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

// PushFront returns an entry to the head of the queue, used when its
// placement failed and must be retried next cycle.
func (q *ReopenQueue) PushFront(e ReopenEntry) {
	q.entries = append([]ReopenEntry{e}, q.entries...)
}

func (q *ReopenQueue) Len() int {
	return len(q.entries)
}

// Clear drops all pending entries. Called on grid reset.
func (q *ReopenQueue) Clear() {
	q.entries = nil
}
