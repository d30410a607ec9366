// Package bindings installs the host-capability objects a contract script
// sees on its global object: _native_blockchain, _native_storage,
// _native_reward, crypto, math, event, _log, and the frozen _tx/_prevUtxos
// snapshots (spec §4.5). Every method here is a thin, argument-validating
// wrapper that delegates to the registry.Table the embedder installed, and
// folds any storage/verification cost the host reports back into the
// invocation's instruction counter.
//
// The goja usage here - native functions as func(goja.FunctionCall)
// goja.Value, throwing by panicking with a *goja.Object built from
// rt.NewTypeError/NewGoError, and freezing read-only globals with
// DefineDataProperty - follows the patterns in uctt123-go-uc's console and
// jsre packages, the only goja consumer in the reference pack.
package bindings

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/dop251/goja"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address hashing, not a security primitive itself

	"crypto/sha256"

	"github.com/chainkit/scriptvm/counter"
	"github.com/chainkit/scriptvm/registry"
	"github.com/chainkit/scriptvm/types"
)

// Env is everything Install needs to wire the capability surface for one
// invocation: the shared registry, the invocation's own counter and
// handler, which optional capability groups are enabled, and the
// transaction context snapshotted at isolate setup.
type Env struct {
	Registry    *registry.Table
	Counter     *counter.Counter
	Handler     types.Handler
	VersionBits types.VersionBit
	Tx          *types.TxSnapshot
	PrevUTXOs   []types.PrevUTXO
}

// Install publishes every enabled capability object onto rt's global scope.
// _log, _native_storage, and _native_blockchain are always installed; math,
// reward, crypto, and event are gated on their VersionBit (math is part of
// types.DefaultVersionBits).
func Install(rt *goja.Runtime, env Env) error {
	installLog(rt, env)
	installStorage(rt, env)
	installBlockchain(rt, env)

	if env.VersionBits&types.VersionReward != 0 {
		installReward(rt, env)
	}
	if env.VersionBits&types.VersionCrypto != 0 {
		installCrypto(rt, env)
	}
	if env.VersionBits&types.VersionEvent != 0 {
		installEvent(rt, env)
	}
	if env.VersionBits&types.VersionMath != 0 {
		installMath(rt, env)
	}

	installTxSnapshot(rt, env)
	return nil
}

func throwType(rt *goja.Runtime, format string, args ...any) {
	all := make([]any, 0, len(args)+1)
	all = append(all, format)
	all = append(all, args...)
	panic(rt.NewTypeError(all...))
}

func throwErr(rt *goja.Runtime, err error) {
	panic(rt.NewGoError(err))
}

func argString(rt *goja.Runtime, call goja.FunctionCall, i int, name string) string {
	if i >= len(call.Arguments) {
		throwType(rt, "%s: missing argument %d", name, i)
	}
	return call.Arguments[i].String()
}

func argBigInt(rt *goja.Runtime, call goja.FunctionCall, i int, name string) *big.Int {
	if i >= len(call.Arguments) {
		throwType(rt, "%s: missing argument %d", name, i)
	}
	v := call.Arguments[i]
	if bi, ok := v.Export().(*big.Int); ok {
		return bi
	}
	n := new(big.Int)
	if _, ok := n.SetString(v.String(), 10); !ok {
		throwType(rt, "%s: argument %d is not an integer", name, i)
	}
	return n
}

func bigIntOrNil(rt *goja.Runtime, call goja.FunctionCall, i int) *big.Int {
	if i >= len(call.Arguments) || goja.IsUndefined(call.Arguments[i]) || goja.IsNull(call.Arguments[i]) {
		return nil
	}
	v := call.Arguments[i]
	if bi, ok := v.Export().(*big.Int); ok {
		return bi
	}
	n := new(big.Int)
	if _, ok := n.SetString(v.String(), 10); !ok {
		throwType(rt, "argument %d is not an integer", i)
	}
	return n
}

// accountForCost folds a host-reported storage/verification cost into the
// invocation's instruction counter, terminating the script if that pushes
// the total past max_instructions (spec §4.3).
func accountForCost(env Env, cost uint64) {
	if cost == 0 || env.Counter == nil {
		return
	}
	env.Counter.Incr(int64(cost))
}

func installLog(rt *goja.Runtime, env Env) {
	obj := rt.NewObject()
	levelFn := func(level types.LogLevel) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			msg := argString(rt, call, 0, "_log")
			env.Registry.CallLogger(env.Handler, level, msg)
			return goja.Undefined()
		}
	}
	obj.Set("debug", levelFn(types.LogDebug))
	obj.Set("info", levelFn(types.LogInfo))
	obj.Set("warn", levelFn(types.LogWarn))
	obj.Set("error", levelFn(types.LogError))
	rt.Set("_log", obj)
}

func installStorage(rt *goja.Runtime, env Env) {
	obj := rt.NewObject()
	obj.Set("get", func(call goja.FunctionCall) goja.Value {
		key := argString(rt, call, 0, "_native_storage.get")
		val, cost, err := env.Registry.CallStorageGet(env.Handler, key)
		accountForCost(env, cost)
		if err != nil {
			throwErr(rt, err)
		}
		if val == nil {
			return goja.Null()
		}
		return rt.ToValue(*val)
	})
	obj.Set("set", func(call goja.FunctionCall) goja.Value {
		key := argString(rt, call, 0, "_native_storage.set")
		value := argString(rt, call, 1, "_native_storage.set")
		status, cost, err := env.Registry.CallStorageSet(env.Handler, key, value)
		accountForCost(env, cost)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(status)
	})
	obj.Set("del", func(call goja.FunctionCall) goja.Value {
		key := argString(rt, call, 0, "_native_storage.del")
		status, cost, err := env.Registry.CallStorageDel(env.Handler, key)
		accountForCost(env, cost)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(status)
	})
	rt.Set("_native_storage", obj)
}

func installBlockchain(rt *goja.Runtime, env Env) {
	obj := rt.NewObject()
	obj.Set("verifyAddress", func(call goja.FunctionCall) goja.Value {
		addr := argString(rt, call, 0, "_native_blockchain.verifyAddress")
		ok, cost, err := env.Registry.CallVerifyAddress(env.Handler, addr)
		accountForCost(env, cost)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(ok)
	})
	obj.Set("transfer", func(call goja.FunctionCall) goja.Value {
		to := argString(rt, call, 0, "_native_blockchain.transfer")
		amount := argBigInt(rt, call, 1, "_native_blockchain.transfer")
		tip := bigIntOrNil(rt, call, 2)
		status, cost, err := env.Registry.CallTransfer(env.Handler, to, amount, tip)
		accountForCost(env, cost)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(status)
	})
	obj.Set("getCurrBlockHeight", func(call goja.FunctionCall) goja.Value {
		h, err := env.Registry.CallBlockHeight(env.Handler)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(h)
	})
	obj.Set("getNodeAddress", func(call goja.FunctionCall) goja.Value {
		addr, err := env.Registry.CallNodeAddress(env.Handler)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(addr)
	})
	obj.Set("deleteContract", func(call goja.FunctionCall) goja.Value {
		status, err := env.Registry.CallDeleteContract(env.Handler)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(status)
	})
	rt.Set("_native_blockchain", obj)
}

func installReward(rt *goja.Runtime, env Env) {
	obj := rt.NewObject()
	obj.Set("record", func(call goja.FunctionCall) goja.Value {
		addr := argString(rt, call, 0, "_native_reward.record")
		amount := argBigInt(rt, call, 1, "_native_reward.record")
		status, err := env.Registry.CallRewardRecord(env.Handler, addr, amount)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(status)
	})
	rt.Set("_native_reward", obj)
}

func installEvent(rt *goja.Runtime, env Env) {
	obj := rt.NewObject()
	obj.Set("trigger", func(call goja.FunctionCall) goja.Value {
		topic := argString(rt, call, 0, "event.trigger")
		data := argString(rt, call, 1, "event.trigger")
		status, err := env.Registry.CallEventTrigger(env.Handler, topic, data)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(status)
	})
	rt.Set("event", obj)
}

func installMath(rt *goja.Runtime, env Env) {
	obj := rt.NewObject()
	obj.Set("random", func(call goja.FunctionCall) goja.Value {
		max := int64(1)
		if len(call.Arguments) > 0 {
			max = call.Arguments[0].ToInteger()
		}
		n, err := env.Registry.CallRandom(env.Handler, max)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(n)
	})
	rt.Set("math", obj)
}

// installCrypto publishes the signature/key verification methods, which
// delegate to the host for the actual elliptic-curve math, plus
// publicKeyToAddress, computed entirely in-process with btcec/ripemd160/
// base58 rather than round-tripping to the host - the address-derivation
// scheme (sha256, then ripemd160, then base58) follows weisyn-go-weisyn's
// and bpfs-defs' address encoding.
func installCrypto(rt *goja.Runtime, env Env) {
	obj := rt.NewObject()
	obj.Set("verifySignature", func(call goja.FunctionCall) goja.Value {
		msg := argString(rt, call, 0, "crypto.verifySignature")
		pubKey := argString(rt, call, 1, "crypto.verifySignature")
		sig := argString(rt, call, 2, "crypto.verifySignature")
		ok, err := env.Registry.CallVerifySignature(env.Handler, msg, pubKey, sig)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(ok)
	})
	obj.Set("verifyPublicKey", func(call goja.FunctionCall) goja.Value {
		addr := argString(rt, call, 0, "crypto.verifyPublicKey")
		pubKey := argString(rt, call, 1, "crypto.verifyPublicKey")
		ok, err := env.Registry.CallVerifyPublicKey(env.Handler, addr, pubKey)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(ok)
	})
	obj.Set("publicKeyToAddress", func(call goja.FunctionCall) goja.Value {
		pubKeyHex := argString(rt, call, 0, "crypto.publicKeyToAddress")
		addr, err := publicKeyToAddress(pubKeyHex)
		if err != nil {
			throwErr(rt, err)
		}
		return rt.ToValue(addr)
	})
	rt.Set("crypto", obj)
}

func publicKeyToAddress(pubKeyHex string) (string, error) {
	raw, err := decodeHex(pubKeyHex)
	if err != nil {
		return "", err
	}
	if _, err := btcec.ParsePubKey(raw); err != nil {
		return "", err
	}

	shaSum := sha256.Sum256(raw)
	ripe := ripemd160.New()
	ripe.Write(shaSum[:])
	hash := ripe.Sum(nil)

	return base58.Encode(hash), nil
}

func decodeHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexDigit(s[2*i])
		if err != nil {
			return nil, err
		}
		lo, err := hexDigit(s[2*i+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexDigit(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, &hexError{c}
	}
}

type hexError struct{ c byte }

func (e *hexError) Error() string { return "bindings: invalid hex digit" }

// installTxSnapshot freezes _tx and _prevUtxos onto the global object from
// whatever the host's FetchTransaction/FetchPrevUTXOs callbacks returned at
// isolate setup (spec §4.5: "frozen _tx/_prevUtxos"). Either may be absent
// (nil Tx, nil PrevUTXOs), in which case the corresponding global is not
// defined at all rather than published as an empty placeholder, since a
// script testing `typeof _tx` should be able to tell a callback was never
// supplied.
//
// The values are built as plain goja objects with the spec's own lowercase
// field names (txid/vout/signature/pubkey, amount/pubkeyhash, ...) rather
// than handed to rt.ToValue(env.Tx) directly: a reflect-backed Go struct
// value would expose its exported Go field names instead (Vin, PubKeyHash),
// and would not deep-freeze cleanly through Object.freeze the way a native
// object and array do.
func installTxSnapshot(rt *goja.Runtime, env Env) {
	if env.Tx != nil {
		freeze(rt, "_tx", buildTxValue(rt, env.Tx))
	}
	if env.PrevUTXOs != nil {
		freeze(rt, "_prevUtxos", buildPrevUTXOsValue(rt, env.PrevUTXOs))
	}
}

func buildTxValue(rt *goja.Runtime, tx *types.TxSnapshot) goja.Value {
	vin := make([]any, len(tx.Vin))
	for i, in := range tx.Vin {
		o := rt.NewObject()
		o.Set("txid", in.TxID)
		o.Set("vout", in.Vout)
		o.Set("signature", in.Signature)
		o.Set("pubkey", in.PubKey)
		deepFreeze(rt, o)
		vin[i] = o
	}
	vout := make([]any, len(tx.Vout))
	for i, out := range tx.Vout {
		o := rt.NewObject()
		o.Set("amount", out.Amount)
		o.Set("pubkeyhash", out.PubKeyHash)
		deepFreeze(rt, o)
		vout[i] = o
	}

	vinArr := rt.NewArray(vin...)
	deepFreeze(rt, vinArr)
	voutArr := rt.NewArray(vout...)
	deepFreeze(rt, voutArr)

	obj := rt.NewObject()
	obj.Set("id", tx.ID)
	obj.Set("vin", vinArr)
	obj.Set("vout", voutArr)
	if tx.Tip != nil {
		obj.Set("tip", tx.Tip)
	}
	deepFreeze(rt, obj)
	return obj
}

func buildPrevUTXOsValue(rt *goja.Runtime, utxos []types.PrevUTXO) goja.Value {
	items := make([]any, len(utxos))
	for i, u := range utxos {
		o := rt.NewObject()
		o.Set("txid", u.TxID)
		o.Set("tx_index", u.TxIndex)
		o.Set("value", u.Value)
		o.Set("pubkeyhash", u.PubKeyHash)
		o.Set("address", u.Address)
		deepFreeze(rt, o)
		items[i] = o
	}
	arr := rt.NewArray(items...)
	deepFreeze(rt, arr)
	return arr
}

func freeze(rt *goja.Runtime, name string, value goja.Value) {
	global := rt.GlobalObject()
	global.DefineDataProperty(name, value, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)
}

// deepFreeze calls the script-visible Object.freeze against v. Called
// bottom-up (each nested object/array is frozen before it is attached to
// its parent), this deep-freezes the whole tree one Object.freeze - which
// is itself only shallow - at a time, satisfying spec §4.5's "_tx/_prevUtxos
// are frozen at every level" invariant rather than just the top-level
// binding.
func deepFreeze(rt *goja.Runtime, v goja.Value) {
	objectCtor := rt.Get("Object").ToObject(rt)
	freezeFn, ok := goja.AssertFunction(objectCtor.Get("freeze"))
	if !ok {
		return
	}
	_, _ = freezeFn(goja.Undefined(), v)
}
