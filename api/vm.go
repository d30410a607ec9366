// Package api is the embedder-facing surface of the script execution
// engine: a single VM interface wrapping engine.Engine's lifecycle, and
// re-exports of the shared types and constants (status codes, version bits)
// so a node need not import the types package directly. New takes a
// *registry.Table and CreateEngine an engine.Config, so a node still imports
// registry and engine alongside this package. It plays the role the
// teacher's api/vm.go played for the wazero VM.
package api

import (
	"github.com/chainkit/scriptvm/engine"
	"github.com/chainkit/scriptvm/registry"
	"github.com/chainkit/scriptvm/reporter"
	"github.com/chainkit/scriptvm/transform"
	"github.com/chainkit/scriptvm/types"
)

// VM is the interface a node holds onto across many invocations: one
// Registry, any number of Engines created against it.
type VM interface {
	// CreateEngine returns a new sandboxed execution context using this
	// VM's registry.
	CreateEngine(cfg engine.Config) (*engine.Engine, error)
}

// vm is the only implementation of VM; it exists so embedders depend on the
// interface rather than constructing an engine.Engine by hand.
type vm struct {
	registry *registry.Table
}

// New wraps reg as a VM. reg's Initialize (via engine.Initialize) is called
// here if the caller hasn't already finalized it themselves.
func New(reg *registry.Table) (VM, error) {
	if err := engine.Initialize(reg); err != nil {
		return nil, err
	}
	return &vm{registry: reg}, nil
}

func (v *vm) CreateEngine(cfg engine.Config) (*engine.Engine, error) {
	return engine.CreateEngine(v.registry, cfg)
}

// RunResult and TransformResult re-export the engine/transform/reporter
// package types callers of this package need without importing them
// directly, matching the teacher's practice of surfacing core.Address
// through the api package rather than requiring a second import.
type RunResult = engine.RunResult
type TransformResult = transform.Result
type ErrorReport = reporter.Report
type Status = types.Status
type Limits = types.Limits
type VersionBit = types.VersionBit

// Re-exported status constants, matching spec's typed return codes.
const (
	StatusSuccess      = types.StatusSuccess
	StatusException    = types.StatusException
	StatusUnexpected   = types.StatusUnexpected
	StatusInnerVMError = types.StatusInnerVMError
	StatusTimeout      = types.StatusTimeout
	StatusGasLimit     = types.StatusGasLimit
	StatusMemLimit     = types.StatusMemLimit
)

// Re-exported version bits, matching spec §4.1's optional capability groups.
const (
	VersionMath       = types.VersionMath
	VersionBlockchain = types.VersionBlockchain
	VersionReward     = types.VersionReward
	VersionCrypto     = types.VersionCrypto
	VersionEvent      = types.VersionEvent
	DefaultVersionBits = types.DefaultVersionBits
)
