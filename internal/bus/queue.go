package bus

import (
	"lobsim/internal/schema"

	"github.com/yanun0323/errors"
)

var ErrQueueFull = errors.New("report queue full")

// Queue is a bounded FIFO of venue reports waiting for their tick.
// It is owned by a single goroutine and never blocks.
type Queue struct {
	buf  []schema.VenueReport
	head int
	size int
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{buf: make([]schema.VenueReport, capacity)}
}

// Push appends a report, failing when the queue is at capacity.
func (q *Queue) Push(r schema.VenueReport) error {
	if q.size == len(q.buf) {
		return errors.Wrapf(ErrQueueFull, "capacity=%d order=%d seq=%d", len(q.buf), r.OrderID, r.Seq)
	}
	q.buf[(q.head+q.size)%len(q.buf)] = r
	q.size++
	return nil
}

// PushAll appends reports in order and returns how many were queued.
func (q *Queue) PushAll(rs []schema.VenueReport) (int, error) {
	for i, r := range rs {
		if err := q.Push(r); err != nil {
			return i, err
		}
	}
	return len(rs), nil
}

// Pop removes the oldest report.
func (q *Queue) Pop() (schema.VenueReport, bool) {
	if q.size == 0 {
		return schema.VenueReport{}, false
	}
	r := q.buf[q.head]
	q.buf[q.head] = schema.VenueReport{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return r, true
}

// Len returns the number of queued reports.
func (q *Queue) Len() int {
	return q.size
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}
