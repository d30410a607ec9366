// Package supervisor implements the Thread Supervisor (spec §4.2): it runs
// one invocation's work on a dedicated goroutine, enforces the wall-clock
// deadline cooperatively through an Interrupter, and lets the embedder call
// TerminateExecution concurrently from a different goroutine while that
// work is still running.
//
// The termination protocol matches spec §5: a manual TerminateExecution
// call and the wall-clock deadline both request cooperative interruption
// and, if the worker reports no more specific outcome first, settle the
// result as TIMEOUT; a panic surfacing out of the worker - an inner VM
// error - overrides either of those once observed, since it means the
// runtime itself, not just the script, misbehaved.
package supervisor

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chainkit/scriptvm/types"
)

// Interrupter is the cooperative-termination half of whatever engine this
// Supervisor watches over - typically a thin wrapper around
// goja.Runtime.Interrupt/ClearInterrupt.
type Interrupter interface {
	Interrupt(reason any)
	ClearInterrupt()
}

// WorkFunc is the invocation body the Supervisor runs on its dedicated
// goroutine. It must itself be responsive to interruption (i.e. it should
// be running script code under an Interrupter-backed runtime) so that a
// timeout or manual terminate request actually unblocks it.
type WorkFunc func() (types.Status, any, error)

// Outcome is the settled result of one Run call.
type Outcome struct {
	Status types.Status
	Result any
	Err    error
}

// Supervisor owns the lifecycle of a single invocation's worker goroutine.
// A fresh Supervisor must be created for every RunScript call; it is not
// reusable across invocations. TransformSource does not run under one.
type Supervisor struct {
	interrupter Interrupter
	timeout     time.Duration

	finished     atomic.Bool
	innerVMError atomic.Bool
	terminated   atomic.Bool
	terminateCh  chan types.Status
}

// New returns a Supervisor that will interrupt interrupter either after
// timeout elapses or when Terminate is called, whichever happens first.
func New(interrupter Interrupter, timeout time.Duration) *Supervisor {
	return &Supervisor{
		interrupter: interrupter,
		timeout:     timeout,
		terminateCh: make(chan types.Status, 1),
	}
}

// IsFinished reports whether Run has observed the worker's completion,
// matching the is_finished flag spec §4.2 requires be readable on every
// exit path, including after a timeout.
func (s *Supervisor) IsFinished() bool { return s.finished.Load() }

// Terminate requests cooperative interruption with the given reason. It is
// safe to call from a goroutine other than the one blocked in Run, and is a
// no-op if called after Run has already settled.
func (s *Supervisor) Terminate(reason types.Status) {
	if s.finished.Load() {
		return
	}
	select {
	case s.terminateCh <- reason:
	default:
	}
	s.interrupter.Interrupt(reason)
}

// Run executes work on a dedicated goroutine and blocks until work returns.
// If the timeout elapses or Terminate is called first, Run interrupts the
// runtime and still waits for work to return before settling. A panic
// inside work is recovered and reported as StatusInnerVMError, taking
// priority over a concurrently-requested timeout/terminate.
func (s *Supervisor) Run(work WorkFunc) Outcome {
	type result struct {
		status types.Status
		value  any
		err    error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.innerVMError.Store(true)
				done <- result{types.StatusInnerVMError, nil, fmt.Errorf("supervisor: worker panic: %v", r)}
			}
		}()
		status, value, err := work()
		done <- result{status, value, err}
	}()

	var timedOutReason types.Status
	var timedOut bool

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		s.finished.Store(true)
		return s.settle(r.status, r.value, r.err)

	case reason := <-s.terminateCh:
		timedOut = true
		timedOutReason = reason
		s.interrupter.Interrupt(reason)

	case <-timer.C:
		timedOut = true
		timedOutReason = types.StatusTimeout
		s.interrupter.Interrupt(types.StatusTimeout)
	}

	if !timedOut {
		r := <-done
		s.finished.Store(true)
		return s.settle(r.status, r.value, r.err)
	}

	r := <-done
	s.finished.Store(true)
	if s.innerVMError.Load() {
		return Outcome{Status: types.StatusInnerVMError, Err: r.err}
	}
	if timedOutReason == types.StatusTimeout {
		return Outcome{Status: types.StatusTimeout, Err: fmt.Errorf("supervisor: execution exceeded %s", s.timeout)}
	}
	return Outcome{Status: timedOutReason, Err: r.err}
}

func (s *Supervisor) settle(status types.Status, value any, err error) Outcome {
	if s.innerVMError.Load() {
		return Outcome{Status: types.StatusInnerVMError, Err: err}
	}
	return Outcome{Status: status, Result: value, Err: err}
}
