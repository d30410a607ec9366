// Package jslib embeds the trusted JS assets the Engine loads before any
// user-supplied contract source: the execution environment preamble and the
// basic-block instrumenter the Source Transformer delegates to through the
// Module Loader (spec §4.4, §4.6).
package jslib

import "embed"

//go:embed execution_env.js instruction_counter.js
var files embed.FS

const (
	// ExecutionEnvName is the whitelisted module name for execution_env.js.
	ExecutionEnvName = "execution_env.js"
	// InstructionCounterName is the whitelisted module name resolved by the
	// Source Transformer's bootstrap program.
	InstructionCounterName = "instruction_counter.js"
)

// Read returns the contents of one of the embedded assets by name. It is the
// backing read function the Module Loader's whitelist wires in for these two
// trusted names, bypassing the filesystem whitelist entirely.
func Read(name string) ([]byte, error) {
	return files.ReadFile(name)
}
