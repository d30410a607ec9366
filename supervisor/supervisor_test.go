package supervisor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chainkit/scriptvm/types"
)

type fakeInterrupter struct {
	interrupted atomic.Bool
	reason      atomic.Value
}

func (f *fakeInterrupter) Interrupt(reason any) {
	f.interrupted.Store(true)
	f.reason.Store(reason)
}

func (f *fakeInterrupter) ClearInterrupt() {}

func TestRunReturnsWorkerResultOnNormalCompletion(t *testing.T) {
	fi := &fakeInterrupter{}
	s := New(fi, time.Second)

	out := s.Run(func() (types.Status, any, error) {
		return types.StatusSuccess, "ok", nil
	})

	assert.Equal(t, types.StatusSuccess, out.Status)
	assert.Equal(t, "ok", out.Result)
	assert.True(t, s.IsFinished())
	assert.False(t, fi.interrupted.Load())
}

func TestRunTimesOutAndInterrupts(t *testing.T) {
	fi := &fakeInterrupter{}
	s := New(fi, 20*time.Millisecond)

	out := s.Run(func() (types.Status, any, error) {
		for !fi.interrupted.Load() {
			time.Sleep(time.Millisecond)
		}
		return types.StatusSuccess, nil, nil
	})

	assert.Equal(t, types.StatusTimeout, out.Status)
	assert.True(t, fi.interrupted.Load())
	assert.True(t, s.IsFinished())
}

func TestTerminateOverridesBeforeCompletion(t *testing.T) {
	fi := &fakeInterrupter{}
	s := New(fi, time.Second)

	started := make(chan struct{})
	go func() {
		<-started
		s.Terminate(types.StatusGasLimit)
	}()

	out := s.Run(func() (types.Status, any, error) {
		close(started)
		for !fi.interrupted.Load() {
			time.Sleep(time.Millisecond)
		}
		return types.StatusSuccess, nil, nil
	})

	assert.Equal(t, types.StatusGasLimit, out.Status)
}

func TestPanicInWorkerReportsInnerVMError(t *testing.T) {
	fi := &fakeInterrupter{}
	s := New(fi, time.Second)

	out := s.Run(func() (types.Status, any, error) {
		panic("boom")
	})

	assert.Equal(t, types.StatusInnerVMError, out.Status)
	assert.Error(t, out.Err)
}

func TestIsFinishedFalseUntilSettled(t *testing.T) {
	fi := &fakeInterrupter{}
	s := New(fi, time.Second)
	assert.False(t, s.IsFinished())

	out := s.Run(func() (types.Status, any, error) {
		return types.StatusSuccess, nil, nil
	})
	assert.Equal(t, types.StatusSuccess, out.Status)
	assert.True(t, s.IsFinished())
}
