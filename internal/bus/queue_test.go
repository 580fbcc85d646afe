package bus

import (
	"testing"

	"lobsim/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.Push(schema.VenueReport{OrderID: 1, Seq: 1}))
	require.NoError(t, q.Push(schema.VenueReport{OrderID: 1, Seq: 2}))
	assert.True(t, errors.Is(q.Push(schema.VenueReport{OrderID: 1, Seq: 3}), ErrQueueFull))

	r, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(1), r.Seq)

	// wraps around the ring
	n, err := q.PushAll([]schema.VenueReport{{OrderID: 2, Seq: 1}, {OrderID: 2, Seq: 2}})
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, q.Len())

	var got []uint64
	for {
		r, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, r.OrderID*10+r.Seq)
	}
	assert.Equal(t, []uint64{12, 21}, got)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 2, q.Cap())
}

func BenchmarkQueue(b *testing.B) {
	q := NewQueue(1024)
	r := schema.VenueReport{OrderID: 1}
	for b.Loop() {
		_ = q.Push(r)
		_, _ = q.Pop()
	}
}
