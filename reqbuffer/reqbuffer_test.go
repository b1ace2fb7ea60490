package reqbuffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferBound(t *testing.T) {
	b := New(3)
	base := time.Now()
	for i := 0; i < 10; i++ {
		b.Add(NewRecord(base.Add(time.Duration(i)*time.Second), "m", nil, nil, "auto"))
	}
	assert.Equal(t, 3, b.Len())

	recent := b.GetRecent(10, nil)
	require.Len(t, recent, 3)
	// newest-first; the retained records are the most recent 3 of 10 (indices 7,8,9).
	assert.Equal(t, base.Add(9*time.Second), recent[0].Timestamp)
	assert.Equal(t, base.Add(8*time.Second), recent[1].Timestamp)
	assert.Equal(t, base.Add(7*time.Second), recent[2].Timestamp)
}

func TestGetRecentLimitAndSinceMinutes(t *testing.T) {
	b := New(100)
	now := time.Now()
	b.Add(NewRecord(now.Add(-2*time.Hour), "m", nil, nil, "auto"))
	b.Add(NewRecord(now.Add(-1*time.Minute), "m", nil, nil, "auto"))
	b.Add(NewRecord(now, "m", nil, nil, "auto"))

	since := 10
	recent := b.GetRecent(50, &since)
	assert.Len(t, recent, 2)

	limited := b.GetRecent(1, nil)
	assert.Len(t, limited, 1)
}

func TestClear(t *testing.T) {
	b := New(10)
	b.Add(NewRecord(time.Now(), "m", nil, nil, "auto"))
	b.Clear()
	assert.Equal(t, 0, b.Len())
}

func TestGlobalSingletonAndReset(t *testing.T) {
	Reset()
	defer Reset()

	a := Global(5)
	b := Global(100) // ignored; singleton already created
	assert.Same(t, a, b)

	a.Add(NewRecord(time.Now(), "m", nil, nil, "auto"))
	assert.Equal(t, 1, Global(5).Len())

	Reset()
	fresh := Global(5)
	assert.Equal(t, 0, fresh.Len())
}
