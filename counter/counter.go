// Package counter implements the per-engine Instruction Counter and its
// limits listener (spec §4.3). It is the generalization of the teacher's
// mock package, which tracked gas in process-global variables guarded by a
// single mutex — incompatible with spec §3's invariant that multiple
// engines run in parallel across threads. Here the counter is scoped to one
// engine, constructed fresh per Engine and reset per invocation.
package counter

import (
	"sync"

	"github.com/chainkit/scriptvm/types"
)

// MemoryReader refreshes and returns the current memory statistics for the
// owning engine. Counter calls it after an increment when a MaxMemoryBytes
// limit is set, so the listener can compare against it without needing to know how
// heap/allocator stats are gathered.
type MemoryReader interface {
	ReadMemoryStats() types.MemoryStats
}

// Terminator is asked to abort the running script. Implementations must be
// idempotent: a second call after termination has already been requested is
// a no-op (spec §4.3: "the listener must be idempotent under repeated
// triggering").
type Terminator interface {
	RequestTermination(reason types.Status)
}

// TraceHook is an optional, opt-in callback invoked on every increment with
// the delta and the running total. It is never required by any spec
// invariant; it exists to let an embedder build a per-invocation
// instruction trace the way the superset engine tree's tracing.cc did
// (spec SPEC_FULL §2 SUPPLEMENTED FEATURES).
type TraceHook func(delta int64, total uint64)

// Counter is the per-invocation-scoped instruction counter bound into the
// script as _instruction_counter. It is not safe to share between
// concurrent invocations; the engine lock (spec §3) already guarantees a
// Counter is only touched by the one worker that owns its Engine at a time.
type Counter struct {
	mu     sync.Mutex
	total  uint64
	limits types.Limits

	mem        MemoryReader
	terminator Terminator
	trace      TraceHook

	terminated bool
}

// New returns a fresh Counter bound to the given limits, memory reader, and
// terminator. mem and terminator are typically the owning Engine.
func New(limits types.Limits, mem MemoryReader, terminator Terminator) *Counter {
	return &Counter{limits: limits, mem: mem, terminator: terminator}
}

// SetTraceHook installs or clears (pass nil) the optional trace hook.
func (c *Counter) SetTraceHook(h TraceHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace = h
}

// Count returns the current total, matching the script-visible `count`
// accessor in spec §4.3.
func (c *Counter) Count() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Reset zeroes the counter for a new invocation. Must only be called while
// no worker is executing against the owning engine.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = 0
	c.terminated = false
}

// Incr implements the script-visible incr(n) method's semantics, minus
// argument-type validation (the binding layer rejects non-number n before
// calling Incr; spec §4.3 requires throwing on a non-number argument, which
// is a script-level concern, not a Counter concern).
//
// A negative n is a no-op that reports success without mutating state, per
// spec §4.3 ("if n < 0, return true without change").
func (c *Counter) Incr(n int64) bool {
	if n < 0 {
		return true
	}

	c.mu.Lock()
	c.total += uint64(n)
	total := c.total
	trace := c.trace
	c.mu.Unlock()

	if trace != nil {
		trace(n, total)
	}

	c.checkLimits(total)
	return true
}

// checkLimits is the listener described in spec §4.3: it refreshes memory
// statistics and compares against the configured limits, requesting
// termination at most once per invocation.
func (c *Counter) checkLimits(total uint64) {
	c.mu.Lock()
	alreadyTerminated := c.terminated
	limits := c.limits
	c.mu.Unlock()
	if alreadyTerminated {
		return
	}

	if limits.MaxInstructions > 0 && total > limits.MaxInstructions {
		c.requestTermination(types.StatusGasLimit)
		return
	}

	if limits.MaxMemoryBytes > 0 && c.mem != nil {
		stats := c.mem.ReadMemoryStats()
		if stats.TotalHeapBytes > limits.MaxMemoryBytes {
			c.requestTermination(types.StatusMemLimit)
			return
		}
	}
}

func (c *Counter) requestTermination(reason types.Status) {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.mu.Unlock()

	if c.terminator != nil {
		c.terminator.RequestTermination(reason)
	}
}
