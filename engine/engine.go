// Package engine implements the Engine Lifecycle (spec §4.1): Initialize,
// CreateEngine, RunScript, TransformSource, TerminateExecution,
// ReadMemoryStatistics, and DeleteEngine. It is the component that wires
// every other package together for one sandboxed invocation - the registry,
// the counter, the bindings, the module loader, the transformer, the
// supervisor, and the reporter - the way the teacher's vm.Engine wired
// together its config, wazero runtime, and code manager in vm/engine.go.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/chainkit/scriptvm/bindings"
	"github.com/chainkit/scriptvm/counter"
	"github.com/chainkit/scriptvm/jslib"
	"github.com/chainkit/scriptvm/moduleloader"
	"github.com/chainkit/scriptvm/registry"
	"github.com/chainkit/scriptvm/reporter"
	"github.com/chainkit/scriptvm/security"
	"github.com/chainkit/scriptvm/supervisor"
	"github.com/chainkit/scriptvm/transform"
	"github.com/chainkit/scriptvm/types"
)

// ErrDeleted is returned by any call against an Engine after DeleteEngine.
var ErrDeleted = errors.New("engine: engine has been deleted")

// Initialize finalizes the process-wide Host Callback Registry, per spec
// §4.1 ("Initialize ... the registry is treated as immutable after this
// call"). It must run exactly once, before the first CreateEngine.
func Initialize(reg *registry.Table) error {
	if reg == nil {
		return errors.New("engine: Initialize requires a non-nil registry")
	}
	reg.Finalize()
	return nil
}

// Engine is one sandboxed execution context: its own instruction counter,
// its own Module Loader, and a lock ensuring only one worker runs against
// it at a time, even though many Engines run concurrently across threads
// (spec §3, §5).
type Engine struct {
	cfg      Config
	registry *registry.Table
	loader   *moduleloader.Loader
	monitor  *security.Monitor
	logger   *slog.Logger

	mu      sync.Mutex
	deleted bool

	counter  *counter.Counter
	limits   types.Limits
	versions types.VersionBit

	currentSup           atomic.Pointer[supervisor.Supervisor]
	terminationRequested atomic.Bool
	terminationStatus    atomic.Int32
}

// CreateEngine validates cfg's limits, builds the engine's Module Loader,
// and returns a ready-to-run Engine using registry for every capability
// call. The registry need not have been Finalize'd by the caller;
// CreateEngine finalizes it if Initialize hasn't already.
func CreateEngine(reg *registry.Table, cfg Config) (*Engine, error) {
	if reg == nil {
		return nil, errors.New("engine: CreateEngine requires a non-nil registry")
	}
	reg.Finalize()

	limits := cfg.limits()
	if err := security.ValidateLimits(limits); err != nil {
		return nil, err
	}

	loader, err := moduleloader.New(cfg.WhitelistRoot, cfg.Whitelist, cfg.VersionPins)
	if err != nil {
		return nil, fmt.Errorf("engine: create module loader: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		registry: reg,
		loader:   loader,
		monitor:  security.NewMonitor(reg.Allocator()),
		logger:   cfg.logger(),
		limits:   limits,
		versions: cfg.versionBits(),
	}
	e.counter = counter.New(limits, e, e)
	return e, nil
}

// ReadMemoryStats satisfies counter.MemoryReader.
func (e *Engine) ReadMemoryStats() types.MemoryStats {
	running, peak := e.monitor.Sample()
	return types.MemoryStats{
		InstructionCount: e.counter.Count(),
		TotalHeapBytes:   running,
		UsedHeapBytes:    running,
		PeakHeapBytes:    peak,
		MallocedBytes:    running,
	}
}

// RequestTermination satisfies counter.Terminator: the counter's limits
// listener calls this when an invocation exceeds max_instructions or
// max_memory, routing into whichever Supervisor currently owns the running
// worker.
func (e *Engine) RequestTermination(reason types.Status) {
	e.terminationRequested.Store(true)
	e.terminationStatus.Store(int32(reason))
	if sup := e.currentSup.Load(); sup != nil {
		sup.Terminate(reason)
	}
}

// ReadMemoryStatistics is the public lifecycle operation (spec §4.1); it
// takes the engine lock so it never races a concurrently running worker.
func (e *Engine) ReadMemoryStatistics() (types.MemoryStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return types.MemoryStats{}, ErrDeleted
	}
	return e.ReadMemoryStats(), nil
}

// TerminateExecution requests cooperative interruption of the RunScript
// call currently in flight on this Engine. It is the one Engine method
// meant to be called from a goroutine other than the one blocked inside
// RunScript (spec §4.2's worker-vs-embedder split). It is a no-op if
// nothing is currently running; TransformSource runs without a Supervisor
// and is not interrupted by it.
func (e *Engine) TerminateExecution() {
	e.RequestTermination(types.StatusTimeout)
}

// DeleteEngine marks the engine unusable. Any RunScript/TransformSource
// call already holding the engine lock is allowed to finish; new calls
// fail with ErrDeleted.
func (e *Engine) DeleteEngine() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return ErrDeleted
	}
	e.deleted = true
	return nil
}

// RunResult is RunScript's settled outcome.
type RunResult struct {
	Status  types.Status
	Value   any
	Report  reporter.Report
}

// RunScript compiles and runs source as the contract entry point under
// handler's capability context, enforcing this Engine's configured limits.
// filename is used purely for error reporting. lineOffset corrects for any
// lines a prior TransformSource call prepended, so the Error Reporter's
// caret lands on the author's own source (spec §4.1, §4.7).
func (e *Engine) RunScript(filename, source string, lineOffset int, handler types.Handler) (RunResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return RunResult{}, ErrDeleted
	}

	requestID := uuid.NewString()
	e.logger.Info("run_script starting", "request_id", requestID, "filename", filename, "handler", handler)

	e.counter.Reset()
	e.monitor.ResetPeak()
	e.terminationRequested.Store(false)

	rt := goja.New()
	sup := supervisor.New(rt, time.Duration(e.limits.TimeoutUS)*time.Microsecond)
	e.currentSup.Store(sup)
	defer e.currentSup.Store(nil)

	outcome := sup.Run(func() (types.Status, any, error) {
		return e.runOnce(rt, filename, source, handler)
	})

	result := RunResult{Status: outcome.Status, Value: outcome.Result}
	if outcome.Err != nil {
		result.Report = reporter.Format(filename, source, lineOffset, outcome.Err)
	}
	e.logger.Info("run_script finished", "request_id", requestID, "status", result.Status.String())
	return result, nil
}

// runOnce does the actual sandbox setup and script execution; it always
// runs on the dedicated goroutine Supervisor.Run spawns.
func (e *Engine) runOnce(rt *goja.Runtime, filename, source string, handler types.Handler) (types.Status, any, error) {
	installCounter(rt, e.counter)
	rt.Set("_native_require", moduleloader.NewRequire(rt, e.loader))

	env := bindings.Env{
		Registry:    e.registry,
		Counter:     e.counter,
		Handler:     handler,
		VersionBits: e.versions,
	}
	if tx, err := e.registry.CallFetchTransaction(handler); err == nil {
		env.Tx = tx
	} else if !errors.Is(err, registry.ErrCallbackUnset) {
		return types.StatusUnexpected, nil, fmt.Errorf("engine: fetch transaction: %w", err)
	}
	if utxos, err := e.registry.CallFetchPrevUTXOs(handler); err == nil {
		env.PrevUTXOs = utxos
	} else if !errors.Is(err, registry.ErrCallbackUnset) {
		return types.StatusUnexpected, nil, fmt.Errorf("engine: fetch prev utxos: %w", err)
	}
	if err := bindings.Install(rt, env); err != nil {
		return types.StatusUnexpected, nil, err
	}

	if err := e.runPreamble(rt); err != nil {
		return types.StatusUnexpected, nil, err
	}

	prog, err := goja.Compile(filename, source, true)
	if err != nil {
		return e.classifyError(err), nil, err
	}

	v, err := rt.RunProgram(prog)
	if err != nil {
		return e.classifyError(err), nil, err
	}

	exported := v.Export()
	// The boundary Allocator has no visibility into goja's own heap; the one
	// point where bytes genuinely cross the embedder boundary on every call
	// is the final result, so charge its serialized size against the
	// allocator. This gives max_memory_bytes at least one real signal to
	// compare against instead of staying at zero for the whole invocation
	// (goja exposes no general heap introspection to wire up anything
	// broader). The allocator is process-wide, shared across every Engine,
	// so the buffer is freed again immediately after the check: it is
	// discarded anyway, and leaving it allocated would make running grow
	// monotonically across invocations instead of reflecting this one.
	if resultBytes, err := json.Marshal(exported); err == nil {
		buf := e.registry.Allocator().Alloc(len(resultBytes))
		copy(buf, resultBytes)
		running, _ := e.registry.Allocator().Stats()
		exceeded := e.limits.MaxMemoryBytes > 0 && running > e.limits.MaxMemoryBytes
		e.registry.Allocator().Free(buf)
		if exceeded {
			return types.StatusMemLimit, nil, errors.New("engine: result serialization exceeded max_memory_bytes")
		}
	}

	return types.StatusSuccess, exported, nil
}

// runPreamble loads execution_env.js the same way a library module would
// resolve, then invokes its wrapper function for side effects only; unlike
// a require()'d module, its exports object is discarded.
func (e *Engine) runPreamble(rt *goja.Runtime) error {
	resolved, err := e.loader.Resolve(jslib.ExecutionEnvName)
	if err != nil {
		return fmt.Errorf("engine: resolve %s: %w", jslib.ExecutionEnvName, err)
	}
	wrapperVal, err := rt.RunString(resolved.Source)
	if err != nil {
		return fmt.Errorf("engine: compile %s: %w", jslib.ExecutionEnvName, err)
	}
	fn, ok := goja.AssertFunction(wrapperVal)
	if !ok {
		return fmt.Errorf("engine: %s did not produce a function", jslib.ExecutionEnvName)
	}
	exportsObj := rt.NewObject()
	moduleObj := rt.NewObject()
	moduleObj.Set("exports", exportsObj)
	_, err = fn(goja.Undefined(), exportsObj, moduleObj, rt.ToValue(moduleloader.NewRequire(rt, e.loader)))
	if err != nil {
		return fmt.Errorf("engine: run %s: %w", jslib.ExecutionEnvName, err)
	}
	return nil
}

// classifyError maps a goja error into one of the typed return codes. A
// termination the counter itself requested (gas/memory limit) takes
// priority over the generic InterruptedError/Exception distinction, since
// by the time RunProgram returns, the counter has already recorded why.
func (e *Engine) classifyError(err error) types.Status {
	if e.terminationRequested.Load() {
		return types.Status(e.terminationStatus.Load())
	}
	switch err.(type) {
	case *goja.Exception:
		return types.StatusException
	case *goja.InterruptedError:
		return types.StatusTimeout
	default:
		return types.StatusUnexpected
	}
}

// TransformSource runs the Source Transformer against source (spec §4.4)
// using this Engine's own Module Loader. The loader serves
// instruction_counter.js from the embedded jslib assets before it consults
// version pins or the whitelist, so neither changes which revision
// instruments the script.
func (e *Engine) TransformSource(source string, strict bool) (transform.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return transform.Result{}, ErrDeleted
	}
	return transform.Run(e.loader, source, strict)
}

func installCounter(rt *goja.Runtime, c *counter.Counter) {
	obj := rt.NewObject()
	getCount := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(c.Count())
	})
	if err := obj.DefineAccessorProperty("count", getCount, nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		panic(err)
	}
	obj.Set("incr", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(rt.NewTypeError("_instruction_counter.incr: missing argument"))
		}
		arg := call.Arguments[0]
		switch arg.Export().(type) {
		case int64, float64:
		default:
			panic(rt.NewTypeError("_instruction_counter.incr: argument must be a number"))
		}
		ok2 := c.Incr(arg.ToInteger())
		return rt.ToValue(ok2)
	})
	rt.Set("_instruction_counter", obj)
}
