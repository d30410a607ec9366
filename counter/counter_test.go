package counter

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainkit/scriptvm/types"
)

type fakeMem struct {
	stats types.MemoryStats
}

func (f *fakeMem) ReadMemoryStats() types.MemoryStats { return f.stats }

type fakeTerminator struct {
	calls atomic.Int32
	last  types.Status
}

func (f *fakeTerminator) RequestTermination(reason types.Status) {
	f.calls.Add(1)
	f.last = reason
}

func TestIncrAccumulatesAndReportsCount(t *testing.T) {
	c := New(types.Limits{}, nil, nil)
	require.True(t, c.Incr(3))
	require.True(t, c.Incr(4))
	assert.EqualValues(t, 7, c.Count())
}

func TestIncrNegativeIsNoOp(t *testing.T) {
	c := New(types.Limits{}, nil, nil)
	require.True(t, c.Incr(5))
	require.True(t, c.Incr(-100))
	assert.EqualValues(t, 5, c.Count())
}

func TestIncrTerminatesOnInstructionLimit(t *testing.T) {
	term := &fakeTerminator{}
	c := New(types.Limits{MaxInstructions: 10}, nil, term)

	c.Incr(5)
	assert.EqualValues(t, 0, term.calls.Load())

	c.Incr(10)
	assert.EqualValues(t, 1, term.calls.Load())
	assert.Equal(t, types.StatusGasLimit, term.last)

	// A second breach must not trigger a second termination request.
	c.Incr(1)
	assert.EqualValues(t, 1, term.calls.Load())
}

func TestIncrTerminatesOnMemoryLimit(t *testing.T) {
	term := &fakeTerminator{}
	mem := &fakeMem{stats: types.MemoryStats{TotalHeapBytes: 2048}}
	c := New(types.Limits{MaxMemoryBytes: 1024}, mem, term)

	c.Incr(1)
	assert.EqualValues(t, 1, term.calls.Load())
	assert.Equal(t, types.StatusMemLimit, term.last)
}

func TestResetClearsCountAndTerminationLatch(t *testing.T) {
	term := &fakeTerminator{}
	c := New(types.Limits{MaxInstructions: 1}, nil, term)
	c.Incr(5)
	assert.EqualValues(t, 1, term.calls.Load())

	c.Reset()
	assert.EqualValues(t, 0, c.Count())

	c.Incr(5)
	assert.EqualValues(t, 2, term.calls.Load())
}

func TestTraceHookObservesEveryIncrement(t *testing.T) {
	c := New(types.Limits{}, nil, nil)
	var deltas []int64
	c.SetTraceHook(func(delta int64, total uint64) {
		deltas = append(deltas, delta)
	})
	c.Incr(1)
	c.Incr(2)
	assert.Equal(t, []int64{1, 2}, deltas)
}
