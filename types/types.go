// Package types contains shared type definitions used across the engine,
// registry, bindings, and supervisor packages.
package types

import (
	"encoding/hex"
	"math/big"
)

// Status is the typed outcome of a RunScript or TransformSource call. Values
// are stable across releases; never renumber an existing constant.
type Status int32

const (
	StatusSuccess      Status = 0
	StatusException    Status = 1
	StatusUnexpected   Status = 2
	StatusInnerVMError Status = 3
	StatusTimeout      Status = 4
	StatusGasLimit     Status = 5
	StatusMemLimit     Status = 6
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusException:
		return "EXCEPTION"
	case StatusUnexpected:
		return "UNEXPECTED"
	case StatusInnerVMError:
		return "INNER_VM_ERROR"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusGasLimit:
		return "GAS_LIMIT"
	case StatusMemLimit:
		return "MEM_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// Opcode names the two worker entry points, RunScript and TransformSource.
// The Supervisor takes no Opcode; only RunScript runs under it.
type Opcode int32

const (
	OpRun Opcode = iota
	OpTransform
)

// Handler is the opaque integer threaded through capability calls to
// identify the caller, typically a contract address or pointer the embedder
// controls. The engine never interprets its bits.
type Handler uint64

// Address is a 20-byte blockchain account/contract address.
type Address [20]byte

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// AddressFromBytes copies b (truncated or zero-padded to 20 bytes) into an Address.
func AddressFromBytes(b []byte) Address {
	var a Address
	copy(a[:], b)
	return a
}

// VersionBit enables an optional capability group on an Engine.
type VersionBit uint32

const (
	VersionMath       VersionBit = 1 << 0
	VersionBlockchain VersionBit = 1 << 1
	VersionReward     VersionBit = 1 << 2
	VersionCrypto     VersionBit = 1 << 3
	VersionEvent      VersionBit = 1 << 4
)

// DefaultVersionBits matches spec §4.1: CreateEngine enables math + blockchain
// by default.
const DefaultVersionBits = VersionMath | VersionBlockchain

// TxInput is one input of a TxSnapshot.
type TxInput struct {
	TxID      string `json:"txid"`
	Vout      int32  `json:"vout"`
	Signature string `json:"signature"`
	PubKey    string `json:"pubkey"`
}

// TxOutput is one output of a TxSnapshot. Amount is arbitrary precision to
// preserve 64-bit integer fidelity when surfaced as a script number.
type TxOutput struct {
	Amount     *big.Int `json:"amount"`
	PubKeyHash string   `json:"pubkeyhash"`
}

// TxSnapshot is the read-only transaction record published as the frozen
// global _tx.
type TxSnapshot struct {
	ID   string     `json:"id"`
	Vin  []TxInput  `json:"vin"`
	Vout []TxOutput `json:"vout"`
	Tip  *big.Int   `json:"tip"`
}

// PrevUTXO is one entry of the PrevUTXOSnapshot published as the frozen
// global _prevUtxos.
type PrevUTXO struct {
	TxID       string   `json:"txid"`
	TxIndex    int32    `json:"tx_index"`
	Value      *big.Int `json:"value"`
	PubKeyHash string   `json:"pubkeyhash"`
	Address    string   `json:"address"`
}

// Limits bounds a single invocation's CPU (instruction count), memory, and
// wall-clock usage. A zero MaxInstructions or MaxMemoryBytes disables that
// check; a zero TimeoutUS is replaced by DefaultTimeoutUS when an Engine is
// created.
type Limits struct {
	MaxInstructions uint64
	MaxMemoryBytes  uint64
	TimeoutUS       uint64
}

// DefaultTimeoutUS is the default wall-clock deadline (5s), per spec §4.1.
const DefaultTimeoutUS uint64 = 5_000_000

// MemoryStats is a snapshot of the allocator and runtime heap counters,
// refreshed by ReadMemoryStatistics.
type MemoryStats struct {
	InstructionCount uint64
	TotalHeapBytes   uint64
	UsedHeapBytes    uint64
	PeakHeapBytes    uint64
	MallocedBytes    uint64
	ArrayBufferBytes uint64
}

// LogLevel mirrors the four _log severities in spec §4.5.
type LogLevel int32

const (
	LogDebug LogLevel = 0
	LogInfo  LogLevel = 1
	LogWarn  LogLevel = 2
	LogError LogLevel = 3
)
