// Package moduleloader implements the whitelist-rooted require() resolution
// the Engine installs as _native_require (spec §4.6). Two names never touch
// the filesystem: the trusted jslib assets (execution_env.js,
// instruction_counter.js) are served straight out of the embedded jslib
// package; every other name is first offered to the optional version-pin
// delegate, and otherwise resolves underneath a configured root directory
// and must appear, by exact relative path, in the Whitelist.
package moduleloader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/chainkit/scriptvm/jslib"
)

// ErrNotWhitelisted is returned when a requested module path resolves
// outside the configured whitelist.
var ErrNotWhitelisted = errors.New("moduleloader: module not in whitelist")

// VersionPinStore is the optional delegate consulted before falling back to
// a whitelisted module's own contents, letting an embedder pin a specific
// historical revision of a library module (spec §4.6, SPEC_FULL §2
// SUPPLEMENTED FEATURES: grounded in load_sc.cc's name-based resolution).
// An ok=false return with a nil error means "no pin, use the normal
// whitelist contents."
type VersionPinStore interface {
	ResolvePin(moduleName string) (source string, ok bool, err error)
}

// Loader resolves module names for _native_require. It is created once per
// Engine and is safe for concurrent use by the single worker that owns that
// engine at a time (no additional locking, matching the engine-lock
// invariant in spec §3).
type Loader struct {
	root      string
	whitelist map[string]struct{}
	pins      VersionPinStore
}

// New returns a Loader rooted at root, accepting only the relative paths in
// whitelist. root is cleaned to an absolute path at construction time so
// later resolution can reject any ".." escape unambiguously.
func New(root string, whitelist []string, pins VersionPinStore) (*Loader, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("moduleloader: resolve root: %w", err)
	}
	set := make(map[string]struct{}, len(whitelist))
	for _, w := range whitelist {
		set[filepath.ToSlash(filepath.Clean(w))] = struct{}{}
	}
	return &Loader{root: absRoot, whitelist: set, pins: pins}, nil
}

// ModuleTemplate is the wrapper every resolved module body is compiled
// inside, matching the require() contract in spec §4.6: a module sees its
// own exports/module/require bindings, not the global scope directly.
const ModuleTemplate = "(function(){ return function (exports, module, require) {\n%s\n}; })();"

// templateLineOffset is the number of lines ModuleTemplate prepends before
// the module's own first line, used by callers to correct stack traces
// (spec §4.7: "column offset correction for the module-wrapper template").
const templateLineOffset = 1

// Resolved is one successfully loaded module: its wrapped source, ready to
// compile, and the line offset to subtract when mapping a reported error
// location back to the original module text.
type Resolved struct {
	Name       string
	Source     string
	LineOffset int
}

// Resolve looks up name, in order: the embedded trusted jslib assets, the
// version-pin delegate, and finally the on-disk whitelist. It never returns
// file contents for a name outside the whitelist, regardless of what's
// actually present on disk.
func (l *Loader) Resolve(name string) (*Resolved, error) {
	switch name {
	case jslib.ExecutionEnvName, jslib.InstructionCounterName:
		raw, err := jslib.Read(name)
		if err != nil {
			return nil, fmt.Errorf("moduleloader: read embedded %q: %w", name, err)
		}
		return l.wrap(name, string(raw)), nil
	}

	if l.pins != nil {
		src, ok, err := l.pins.ResolvePin(name)
		if err != nil {
			return nil, fmt.Errorf("moduleloader: resolve pin for %q: %w", name, err)
		}
		if ok {
			return l.wrap(name, src), nil
		}
	}

	clean := filepath.ToSlash(filepath.Clean(name))
	if _, ok := l.whitelist[clean]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotWhitelisted, name)
	}
	if strings.Contains(clean, "..") {
		return nil, fmt.Errorf("moduleloader: path escapes root: %q", name)
	}

	full := filepath.Join(l.root, clean)
	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("moduleloader: stat %q: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("moduleloader: %q is not a regular file", name)
	}

	raw, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("moduleloader: read %q: %w", name, err)
	}
	return l.wrap(name, string(raw)), nil
}

func (l *Loader) wrap(name, body string) *Resolved {
	return &Resolved{
		Name:       name,
		Source:     fmt.Sprintf(ModuleTemplate, body),
		LineOffset: templateLineOffset,
	}
}

// NewRequire builds a CommonJS-style require() bound to rt and l: it
// resolves a name through l, compiles the module-template-wrapped source,
// and invokes it with fresh exports/module objects, caching the result by
// name for the lifetime of rt. Both the Source Transformer's bootstrap and
// the Engine's script execution install one of these as their sandbox's
// require/_native_require.
func NewRequire(rt *goja.Runtime, l *Loader) func(goja.FunctionCall) goja.Value {
	cache := map[string]goja.Value{}

	var requireFn func(goja.FunctionCall) goja.Value
	requireFn = func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(rt.NewTypeError("require: missing module name"))
		}
		name := call.Arguments[0].String()
		if v, ok := cache[name]; ok {
			return v
		}

		resolved, err := l.Resolve(name)
		if err != nil {
			panic(rt.NewGoError(fmt.Errorf("moduleloader: resolve %q: %w", name, err)))
		}

		wrapperVal, err := rt.RunString(resolved.Source)
		if err != nil {
			panic(rt.NewGoError(fmt.Errorf("moduleloader: compile %q: %w", name, err)))
		}
		fn, ok := goja.AssertFunction(wrapperVal)
		if !ok {
			panic(rt.NewTypeError("require: %q did not produce a function", name))
		}

		exportsObj := rt.NewObject()
		moduleObj := rt.NewObject()
		moduleObj.Set("exports", exportsObj)

		if _, err := fn(goja.Undefined(), exportsObj, moduleObj, rt.ToValue(requireFn)); err != nil {
			panic(rt.NewGoError(fmt.Errorf("moduleloader: run %q: %w", name, err)))
		}

		result := moduleObj.Get("exports")
		cache[name] = result
		return result
	}
	return requireFn
}
