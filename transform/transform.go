// Package transform implements the Source Transformer (spec §4.4): it runs
// the trusted instruction_counter.js bootstrap, resolved through the same
// Module Loader a real invocation uses, against a contract's raw source and
// returns the instrumented text plus the line offset callers need to map a
// reported error location back to the original.
package transform

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/chainkit/scriptvm/moduleloader"
)

// Result is the transformer's output: the instrumented source, ready to be
// compiled and run by the Engine, and how many lines were prepended ahead
// of the caller's own source (spec §4.4, §4.7).
type Result struct {
	Source     string
	LineOffset int
}

// Run instruments source by delegating to instruction_counter.js's
// processScript(source, strict), resolved by loader. A fresh goja.Runtime
// is used for the bootstrap and discarded afterward; it never sees any of
// the capability bindings a real invocation installs, since the bootstrap
// only manipulates text.
func Run(loader *moduleloader.Loader, source string, strict bool) (Result, error) {
	rt := goja.New()
	rt.Set("require", moduleloader.NewRequire(rt, loader))
	rt.Set("__transform_source__", source)
	rt.Set("__transform_strict__", strict)

	v, err := rt.RunString(`require("instruction_counter.js").processScript(__transform_source__, __transform_strict__)`)
	if err != nil {
		return Result{}, fmt.Errorf("transform: run bootstrap: %w", err)
	}

	obj := v.ToObject(rt)
	traceable := obj.Get("traceableSource")
	if traceable == nil || goja.IsUndefined(traceable) {
		return Result{}, fmt.Errorf("transform: bootstrap result missing traceableSource")
	}

	lineOffset := 0
	if lo := obj.Get("lineOffset"); lo != nil && !goja.IsUndefined(lo) {
		lineOffset = int(lo.ToInteger())
	}

	return Result{Source: traceable.String(), LineOffset: lineOffset}, nil
}
