package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainkit/scriptvm/registry"
	"github.com/chainkit/scriptvm/types"
)

func newTestRegistry(t *testing.T) *registry.Table {
	t.Helper()
	reg := registry.New()
	store := map[string]string{}

	require.NoError(t, reg.InitializeStorage(
		func(_ types.Handler, key string) (*string, uint64, error) {
			v, ok := store[key]
			if !ok {
				return nil, 1, nil
			}
			return &v, 1, nil
		},
		func(_ types.Handler, key, value string) (int32, uint64, error) {
			store[key] = value
			return int32(types.StatusSuccess), 1, nil
		},
		func(_ types.Handler, key string) (int32, uint64, error) {
			delete(store, key)
			return int32(types.StatusSuccess), 1, nil
		},
	))
	require.NoError(t, reg.InitializeLogger(func(types.Handler, types.LogLevel, string) {}))
	require.NoError(t, reg.InitializeBlockHeight(func(types.Handler) (uint64, error) { return 42, nil }))
	require.NoError(t, reg.InitializeVerifyAddress(func(_ types.Handler, addr string) (bool, uint64, error) {
		return addr == "good", 2, nil
	}))
	require.NoError(t, reg.InitializeTransfer(func(types.Handler, string, *big.Int, *big.Int) (int32, uint64, error) {
		return int32(types.StatusSuccess), 1, nil
	}))
	return reg
}

func TestRunScriptSimpleExpressionRoundTrips(t *testing.T) {
	reg := newTestRegistry(t)
	eng, err := CreateEngine(reg, Config{WhitelistRoot: t.TempDir()})
	require.NoError(t, err)
	defer eng.DeleteEngine()

	result, err := eng.RunScript("contract.js", "1 + 2", 0, types.Handler(1))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.EqualValues(t, 3, result.Value)
}

func TestRunScriptUncaughtExceptionReportsFormattedError(t *testing.T) {
	reg := newTestRegistry(t)
	eng, err := CreateEngine(reg, Config{WhitelistRoot: t.TempDir()})
	require.NoError(t, err)
	defer eng.DeleteEngine()

	source := "throw new Error('bad input');"
	result, err := eng.RunScript("contract.js", source, 0, types.Handler(1))
	require.NoError(t, err)
	assert.Equal(t, types.StatusException, result.Status)
	assert.Contains(t, result.Report.Formatted, "bad input")
}

func TestRunScriptGasLimitTerminatesInstrumentedLoop(t *testing.T) {
	reg := newTestRegistry(t)
	eng, err := CreateEngine(reg, Config{
		WhitelistRoot: t.TempDir(),
		DefaultLimits: types.Limits{MaxInstructions: 50, TimeoutUS: 2_000_000},
	})
	require.NoError(t, err)
	defer eng.DeleteEngine()

	raw := "var i = 0; while (true) { i = i + 1; }"
	tr, err := eng.TransformSource(raw, false)
	require.NoError(t, err)
	assert.Contains(t, tr.Source, "_instruction_counter.incr")

	result, err := eng.RunScript("contract.js", tr.Source, tr.LineOffset, types.Handler(1))
	require.NoError(t, err)
	assert.Equal(t, types.StatusGasLimit, result.Status)
}

func TestRunScriptStorageRoundTripsThroughBindings(t *testing.T) {
	reg := newTestRegistry(t)
	eng, err := CreateEngine(reg, Config{WhitelistRoot: t.TempDir()})
	require.NoError(t, err)
	defer eng.DeleteEngine()

	source := `
		_native_storage.set("k", "v");
		_native_storage.get("k");
	`
	result, err := eng.RunScript("contract.js", source, 0, types.Handler(1))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, "v", result.Value)
}

func TestRunScriptStorageMissingKeyReturnsNull(t *testing.T) {
	reg := newTestRegistry(t)
	eng, err := CreateEngine(reg, Config{WhitelistRoot: t.TempDir()})
	require.NoError(t, err)
	defer eng.DeleteEngine()

	result, err := eng.RunScript("contract.js", `_native_storage.get("missing")`, 0, types.Handler(1))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Nil(t, result.Value)
}

func TestTransformSourceRejectsNondeterminismInStrictMode(t *testing.T) {
	reg := newTestRegistry(t)
	eng, err := CreateEngine(reg, Config{WhitelistRoot: t.TempDir()})
	require.NoError(t, err)
	defer eng.DeleteEngine()

	_, err = eng.TransformSource("var t = Date.now();", true)
	assert.Error(t, err)
}

func TestRunScriptExposesTxSnapshotWithSpecFieldNames(t *testing.T) {
	reg := newTestRegistry(t)
	tx := &types.TxSnapshot{
		ID: "tx1",
		Vin: []types.TxInput{
			{TxID: "prevtx", Vout: 0, Signature: "sig0", PubKey: "pub0"},
		},
		Vout: []types.TxOutput{
			{Amount: big.NewInt(10), PubKeyHash: "hash0"},
			{Amount: big.NewInt(20), PubKeyHash: "hash1"},
		},
	}
	prevUTXOs := []types.PrevUTXO{
		{TxID: "prevtx", TxIndex: 0, Value: big.NewInt(30), PubKeyHash: "hash0", Address: "addr0"},
	}
	require.NoError(t, reg.InitializeTransactionSource(
		func(types.Handler) (*types.TxSnapshot, error) { return tx, nil },
		func(types.Handler) ([]types.PrevUTXO, error) { return prevUTXOs, nil },
	))

	eng, err := CreateEngine(reg, Config{WhitelistRoot: t.TempDir()})
	require.NoError(t, err)
	defer eng.DeleteEngine()

	source := `_tx.vin[0].pubkey + ":" + _tx.vout[1].amount + ":" + _prevUtxos[0].address`
	result, err := eng.RunScript("contract.js", source, 0, types.Handler(1))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, "pub0:20:addr0", result.Value)
}

func TestRunScriptRejectsMutationOfFrozenTxSnapshot(t *testing.T) {
	reg := newTestRegistry(t)
	tx := &types.TxSnapshot{
		ID:  "tx1",
		Vin: []types.TxInput{{TxID: "prevtx", Vout: 0, Signature: "sig0", PubKey: "pub0"}},
	}
	require.NoError(t, reg.InitializeTransactionSource(
		func(types.Handler) (*types.TxSnapshot, error) { return tx, nil },
		func(types.Handler) ([]types.PrevUTXO, error) { return nil, nil },
	))

	eng, err := CreateEngine(reg, Config{WhitelistRoot: t.TempDir()})
	require.NoError(t, err)
	defer eng.DeleteEngine()

	result, err := eng.RunScript("contract.js", "_tx.vin = [];", 0, types.Handler(1))
	require.NoError(t, err)
	assert.Equal(t, types.StatusException, result.Status)
}

func TestTerminateExecutionStopsBlockingScript(t *testing.T) {
	reg := newTestRegistry(t)
	eng, err := CreateEngine(reg, Config{
		WhitelistRoot: t.TempDir(),
		DefaultLimits: types.Limits{TimeoutUS: uint64((5 * time.Second).Microseconds())},
	})
	require.NoError(t, err)
	defer eng.DeleteEngine()

	go func() {
		time.Sleep(30 * time.Millisecond)
		eng.TerminateExecution()
	}()

	result, err := eng.RunScript("contract.js", "while (true) {}", 0, types.Handler(1))
	require.NoError(t, err)
	assert.Equal(t, types.StatusTimeout, result.Status)
}
