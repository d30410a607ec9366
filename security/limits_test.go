package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chainkit/scriptvm/registry"
	"github.com/chainkit/scriptvm/types"
)

func TestValidateLimitsAllowsZeroValues(t *testing.T) {
	assert.NoError(t, ValidateLimits(types.Limits{}))
}

func TestValidateLimitsRejectsUnreasonableTimeout(t *testing.T) {
	err := ValidateLimits(types.Limits{TimeoutUS: 11 * 60 * 1_000_000})
	assert.Error(t, err)
}

func TestMonitorTracksPeakAcrossFrees(t *testing.T) {
	a := registry.NewDefaultAllocator()
	m := NewMonitor(a)

	b := a.Alloc(100)
	running, peak := m.Sample()
	assert.EqualValues(t, 100, running)
	assert.EqualValues(t, 100, peak)

	a.Free(b)
	running, peak = m.Sample()
	assert.EqualValues(t, 0, running)
	assert.EqualValues(t, 100, peak, "peak must survive a subsequent free")

	m.ResetPeak()
	_, peak = m.Sample()
	assert.EqualValues(t, 0, peak)
}
