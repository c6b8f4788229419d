package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type timedItem time.Time

func (i timedItem) Less(other timedItem) bool {
	return time.Time(i).Before(time.Time(other))
}

func TestPriorityQueueOrdering(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	items := []timedItem{
		timedItem(base.Add(3 * time.Hour)),
		timedItem(base),
		timedItem(base.Add(time.Hour)),
	}

	q := NewPriorityQueue(items)
	require.Equal(t, 3, q.Len())

	q.Push(timedItem(base.Add(30 * time.Minute)))

	peeked, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, base, time.Time(peeked))

	var got []time.Time
	for {
		item, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, time.Time(item))
	}

	require.Equal(t, []time.Time{
		base,
		base.Add(30 * time.Minute),
		base.Add(time.Hour),
		base.Add(3 * time.Hour),
	}, got)
	require.Zero(t, q.Len())
}

func TestPriorityQueueEmptyPop(t *testing.T) {
	q := NewPriorityQueue[timedItem](nil)
	_, ok := q.Pop()
	require.False(t, ok)
	_, ok = q.Peek()
	require.False(t, ok)
}
