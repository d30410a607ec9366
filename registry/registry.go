// Package registry implements the process-wide Host Callback Registry: the
// table of function pointers the embedder installs once before any engine
// is created. The table is treated as immutable after Initialize and is
// safe for concurrent readers without additional locking.
package registry

import (
	"errors"
	"math/big"
	"sync"

	"github.com/chainkit/scriptvm/types"
)

// ErrCallbackUnset is returned by the Table's Call* methods when the
// embedder never registered the corresponding callback. Bindings translate
// this into a script-level exception (spec §3: "a capability whose
// callback is unset ... signals a script-level exception when invoked").
var ErrCallbackUnset = errors.New("registry: callback not set")

// VerifyAddressFunc validates a blockchain address. storageCost is added to
// the invocation's instruction counter by the caller.
type VerifyAddressFunc func(handler types.Handler, addr string) (ok bool, storageCost uint64, err error)

// TransferFunc moves funds from the contract identified by handler to to,
// with an optional tip.
type TransferFunc func(handler types.Handler, to string, amount, tip *big.Int) (status int32, storageCost uint64, err error)

// BlockHeightFunc returns the current chain height.
type BlockHeightFunc func(handler types.Handler) (uint64, error)

// NodeAddressFunc returns the running node's own address.
type NodeAddressFunc func(handler types.Handler) (string, error)

// DeleteContractFunc removes the calling contract from chain state.
type DeleteContractFunc func(handler types.Handler) (int32, error)

// StorageGetFunc reads a per-contract key. A nil value surfaces to script
// as null.
type StorageGetFunc func(handler types.Handler, key string) (value *string, storageCost uint64, err error)

// StorageSetFunc writes a per-contract key.
type StorageSetFunc func(handler types.Handler, key, value string) (status int32, storageCost uint64, err error)

// StorageDelFunc deletes a per-contract key.
type StorageDelFunc func(handler types.Handler, key string) (status int32, storageCost uint64, err error)

// RewardRecordFunc records a reward payable to addr.
type RewardRecordFunc func(handler types.Handler, addr string, amount *big.Int) (status int32, err error)

// VerifySignatureFunc verifies a detached signature over msg.
type VerifySignatureFunc func(handler types.Handler, msg, pubKeyHex, sigHex string) (bool, error)

// VerifyPublicKeyFunc checks that pubKey hashes to addr.
type VerifyPublicKeyFunc func(handler types.Handler, addr, pubKeyHex string) (bool, error)

// RandomFunc returns a deterministic pseudo-random integer in [0, max).
type RandomFunc func(handler types.Handler, max int64) (int64, error)

// EventTriggerFunc emits a topic/data event to the node's event sink.
type EventTriggerFunc func(handler types.Handler, topic, data string) (int32, error)

// LoggerFunc forwards a formatted log line to the node's logger.
type LoggerFunc func(handler types.Handler, level types.LogLevel, msg string)

// FetchTransactionFunc returns the transaction snapshot for the current
// invocation, or nil if none applies.
type FetchTransactionFunc func(handler types.Handler) (*types.TxSnapshot, error)

// FetchPrevUTXOsFunc returns the previous-UTXO snapshot for the current
// invocation.
type FetchPrevUTXOsFunc func(handler types.Handler) ([]types.PrevUTXO, error)

// Allocator overrides how strings crossing the script/embedder boundary are
// allocated, mirroring InitializeMemoryFunc(malloc, free) in spec §6. The
// default allocator is a plain Go byte-slice allocator with running/peak
// byte counters.
type Allocator interface {
	Alloc(n int) []byte
	Free(b []byte)
	Stats() (running, peak uint64)
}

// defaultAllocator tracks bytes allocated/freed for strings returned across
// the embedder boundary; it never pools, matching spec §3's "freed by the
// embedder" ownership rule.
type defaultAllocator struct {
	mu      sync.Mutex
	running uint64
	peak    uint64
}

// NewDefaultAllocator returns the Go-native Allocator used when the embedder
// does not override memory allocation.
func NewDefaultAllocator() Allocator { return &defaultAllocator{} }

func (a *defaultAllocator) Alloc(n int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running += uint64(n)
	if a.running > a.peak {
		a.peak = a.running
	}
	return make([]byte, n)
}

func (a *defaultAllocator) Free(b []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := uint64(len(b))
	if n > a.running {
		a.running = 0
	} else {
		a.running -= n
	}
}

func (a *defaultAllocator) Stats() (running, peak uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running, a.peak
}

// Table is the process-wide Host Callback Registry. It is constructed once
// via New and populated via the Initialize* setters before any engine is
// created; after that point it is read-only and requires no locking for
// readers (spec §5: "effectively immutable after initialization").
type Table struct {
	verifyAddress     VerifyAddressFunc
	transfer          TransferFunc
	blockHeight       BlockHeightFunc
	nodeAddress       NodeAddressFunc
	deleteContract    DeleteContractFunc
	storageGet        StorageGetFunc
	storageSet        StorageSetFunc
	storageDel        StorageDelFunc
	rewardRecord      RewardRecordFunc
	verifySignature   VerifySignatureFunc
	verifyPublicKey   VerifyPublicKeyFunc
	random            RandomFunc
	eventTrigger      EventTriggerFunc
	logger            LoggerFunc
	fetchTransaction  FetchTransactionFunc
	fetchPrevUTXOs    FetchPrevUTXOsFunc
	allocator         Allocator

	mu        sync.RWMutex
	finalized bool
}

// New returns an empty Table with the default allocator installed. Every
// other slot starts unset.
func New() *Table {
	return &Table{allocator: NewDefaultAllocator()}
}

// Finalize marks the table immutable; subsequent Initialize* calls return an
// error. CreateEngine calls Finalize on first use if the embedder has not
// already done so.
func (t *Table) Finalize() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalized = true
}

func (t *Table) checkMutable() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.finalized {
		return errors.New("registry: table is finalized, cannot register new callbacks")
	}
	return nil
}

// InitializeVerifyAddress registers the address-verification callback.
func (t *Table) InitializeVerifyAddress(fn VerifyAddressFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.verifyAddress = fn
	return nil
}

// InitializeTransfer registers the transfer callback.
func (t *Table) InitializeTransfer(fn TransferFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.transfer = fn
	return nil
}

// InitializeBlockHeight registers the block-height callback.
func (t *Table) InitializeBlockHeight(fn BlockHeightFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.blockHeight = fn
	return nil
}

// InitializeNodeAddress registers the node-address callback.
func (t *Table) InitializeNodeAddress(fn NodeAddressFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.nodeAddress = fn
	return nil
}

// InitializeDeleteContract registers the contract-deletion callback.
func (t *Table) InitializeDeleteContract(fn DeleteContractFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.deleteContract = fn
	return nil
}

// InitializeStorage registers the storage get/set/del callbacks together,
// since the embedder always implements them as a unit.
func (t *Table) InitializeStorage(get StorageGetFunc, set StorageSetFunc, del StorageDelFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.storageGet = get
	t.storageSet = set
	t.storageDel = del
	return nil
}

// InitializeReward registers the reward-recording callback.
func (t *Table) InitializeReward(fn RewardRecordFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.rewardRecord = fn
	return nil
}

// InitializeCrypto registers the signature and public-key verification
// callbacks together.
func (t *Table) InitializeCrypto(verifySig VerifySignatureFunc, verifyPub VerifyPublicKeyFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.verifySignature = verifySig
	t.verifyPublicKey = verifyPub
	return nil
}

// InitializeRandom registers the deterministic-randomness callback.
func (t *Table) InitializeRandom(fn RandomFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.random = fn
	return nil
}

// InitializeEvent registers the event-trigger callback.
func (t *Table) InitializeEvent(fn EventTriggerFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.eventTrigger = fn
	return nil
}

// InitializeLogger registers the node logger callback.
func (t *Table) InitializeLogger(fn LoggerFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.logger = fn
	return nil
}

// InitializeTransactionSource registers the tx/prev-UTXO snapshot fetchers
// together, since both are populated at isolate setup from the same
// invocation context.
func (t *Table) InitializeTransactionSource(tx FetchTransactionFunc, utxos FetchPrevUTXOsFunc) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.fetchTransaction = tx
	t.fetchPrevUTXOs = utxos
	return nil
}

// InitializeMemoryFunc overrides the allocator used for strings crossing
// the embedder boundary.
func (t *Table) InitializeMemoryFunc(a Allocator) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	if a == nil {
		return errors.New("registry: allocator must not be nil")
	}
	t.allocator = a
	return nil
}

// Allocator returns the registered allocator (always non-nil).
func (t *Table) Allocator() Allocator { return t.allocator }

// The Call* methods below delegate to the registered callback, returning
// ErrCallbackUnset when the slot is unset. They require no lock: the table
// is read-only by the time any engine runs (see Finalize).

func (t *Table) CallVerifyAddress(h types.Handler, addr string) (bool, uint64, error) {
	if t.verifyAddress == nil {
		return false, 0, ErrCallbackUnset
	}
	return t.verifyAddress(h, addr)
}

func (t *Table) CallTransfer(h types.Handler, to string, amount, tip *big.Int) (int32, uint64, error) {
	if t.transfer == nil {
		return 0, 0, ErrCallbackUnset
	}
	return t.transfer(h, to, amount, tip)
}

func (t *Table) CallBlockHeight(h types.Handler) (uint64, error) {
	if t.blockHeight == nil {
		return 0, ErrCallbackUnset
	}
	return t.blockHeight(h)
}

func (t *Table) CallNodeAddress(h types.Handler) (string, error) {
	if t.nodeAddress == nil {
		return "", ErrCallbackUnset
	}
	return t.nodeAddress(h)
}

func (t *Table) CallDeleteContract(h types.Handler) (int32, error) {
	if t.deleteContract == nil {
		return 0, ErrCallbackUnset
	}
	return t.deleteContract(h)
}

func (t *Table) CallStorageGet(h types.Handler, key string) (*string, uint64, error) {
	if t.storageGet == nil {
		return nil, 0, ErrCallbackUnset
	}
	return t.storageGet(h, key)
}

func (t *Table) CallStorageSet(h types.Handler, key, value string) (int32, uint64, error) {
	if t.storageSet == nil {
		return 0, 0, ErrCallbackUnset
	}
	return t.storageSet(h, key, value)
}

func (t *Table) CallStorageDel(h types.Handler, key string) (int32, uint64, error) {
	if t.storageDel == nil {
		return 0, 0, ErrCallbackUnset
	}
	return t.storageDel(h, key)
}

func (t *Table) CallRewardRecord(h types.Handler, addr string, amount *big.Int) (int32, error) {
	if t.rewardRecord == nil {
		return 0, ErrCallbackUnset
	}
	return t.rewardRecord(h, addr, amount)
}

func (t *Table) CallVerifySignature(h types.Handler, msg, pubKey, sig string) (bool, error) {
	if t.verifySignature == nil {
		return false, ErrCallbackUnset
	}
	return t.verifySignature(h, msg, pubKey, sig)
}

func (t *Table) CallVerifyPublicKey(h types.Handler, addr, pubKey string) (bool, error) {
	if t.verifyPublicKey == nil {
		return false, ErrCallbackUnset
	}
	return t.verifyPublicKey(h, addr, pubKey)
}

func (t *Table) CallRandom(h types.Handler, max int64) (int64, error) {
	if t.random == nil {
		return 0, ErrCallbackUnset
	}
	return t.random(h, max)
}

func (t *Table) CallEventTrigger(h types.Handler, topic, data string) (int32, error) {
	if t.eventTrigger == nil {
		return 0, ErrCallbackUnset
	}
	return t.eventTrigger(h, topic, data)
}

// CallLogger is a no-op when unset: logging has no script-visible failure
// mode per spec §4.5 ("void; delegates to host").
func (t *Table) CallLogger(h types.Handler, level types.LogLevel, msg string) {
	if t.logger == nil {
		return
	}
	t.logger(h, level, msg)
}

func (t *Table) CallFetchTransaction(h types.Handler) (*types.TxSnapshot, error) {
	if t.fetchTransaction == nil {
		return nil, ErrCallbackUnset
	}
	return t.fetchTransaction(h)
}

func (t *Table) CallFetchPrevUTXOs(h types.Handler) ([]types.PrevUTXO, error) {
	if t.fetchPrevUTXOs == nil {
		return nil, ErrCallbackUnset
	}
	return t.fetchPrevUTXOs(h)
}

// HasVerifyAddress reports whether the verifyAddress slot is set. Bindings
// in this engine do not consult it: they always expose the method and
// surface ErrCallbackUnset as a script exception. Embedders composing a
// narrower capability surface can use it to omit the method entirely.
func (t *Table) HasVerifyAddress() bool { return t.verifyAddress != nil }
func (t *Table) HasTransfer() bool      { return t.transfer != nil }
func (t *Table) HasReward() bool        { return t.rewardRecord != nil }
func (t *Table) HasCrypto() bool        { return t.verifySignature != nil && t.verifyPublicKey != nil }
func (t *Table) HasEvent() bool         { return t.eventTrigger != nil }
func (t *Table) HasRandom() bool        { return t.random != nil }
