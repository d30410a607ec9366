// Package security validates and monitors the resource limits an Engine
// enforces on a single invocation: instruction count, memory, and
// wall-clock time (spec §3, §4.3, §5). It generalizes the teacher's
// ResourceLimiter/ResourceMonitor stubs (security/resource_limiter.go) into
// real validation and a peak-tracking monitor wired to the allocator.
package security

import (
	"fmt"

	"github.com/chainkit/scriptvm/registry"
	"github.com/chainkit/scriptvm/types"
)

// ValidateLimits rejects configurations that can never be satisfied. A zero
// MaxInstructions or MaxMemoryBytes disables that check, per spec §8's
// invariants ("For all max_instructions > 0, ..."), and a zero TimeoutUS
// stands for the default timeout; zero is therefore always valid.
func ValidateLimits(l types.Limits) error {
	const maxReasonableTimeoutUS = 10 * 60 * 1_000_000 // 10 minutes
	if l.TimeoutUS > maxReasonableTimeoutUS {
		return fmt.Errorf("security: timeout_us %d exceeds sanity ceiling of %d", l.TimeoutUS, maxReasonableTimeoutUS)
	}
	return nil
}

// Monitor tracks the peak allocator usage observed across an invocation, in
// addition to whatever the allocator itself reports, so ReadMemoryStatistics
// can expose a peak that survives across repeated small allocations and
// frees within one invocation.
type Monitor struct {
	allocator registry.Allocator
	peak      uint64

	// peakAtReset is the allocator's own peak when ResetPeak last ran; the
	// allocator never lowers its peak, so only a rise above this value
	// belongs to the current invocation.
	peakAtReset uint64
}

// NewMonitor wraps the registry allocator used by an engine.
func NewMonitor(a registry.Allocator) *Monitor {
	return &Monitor{allocator: a}
}

// Sample re-reads the allocator's running/peak counters and folds them into
// the monitor's own high-water mark, returning the combined snapshot. The
// allocator's peak is folded in only once it has risen above its value at
// the last ResetPeak.
func (m *Monitor) Sample() (running, peak uint64) {
	running, allocatorPeak := m.allocator.Stats()
	if allocatorPeak > m.peakAtReset && allocatorPeak > m.peak {
		m.peak = allocatorPeak
	}
	if running > m.peak {
		m.peak = running
	}
	return running, m.peak
}

// ResetPeak clears the high-water mark at the start of a new invocation.
func (m *Monitor) ResetPeak() {
	m.peak = 0
	_, m.peakAtReset = m.allocator.Stats()
}
