package reporter

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatScriptException(t *testing.T) {
	rt := goja.New()
	source := "var x = 1;\nthrow new Error('boom');\n"

	_, err := rt.RunString(source)
	require.Error(t, err)

	var exc *goja.Exception
	require.ErrorAs(t, err, &exc)

	rep := Format("contract.js", source, 0, exc)
	assert.Equal(t, "contract.js", rep.Filename)
	assert.Equal(t, 2, rep.Line)
	assert.Contains(t, rep.Formatted, "contract.js:2")
	assert.Contains(t, rep.Formatted, "throw new Error")
	assert.Contains(t, rep.Formatted, "^")
	assert.Contains(t, rep.Formatted, "boom")
}

func TestFormatCorrectsForLineOffset(t *testing.T) {
	rt := goja.New()
	// Simulate a module-wrapper template that prepends one line ahead of
	// the author's own source.
	wrapped := "(function(){\nthrow new Error('nope');\n})();"

	_, err := rt.RunString(wrapped)
	require.Error(t, err)
	var exc *goja.Exception
	require.ErrorAs(t, err, &exc)

	original := "throw new Error('nope');\n"
	rep := Format("module.js", original, 1, exc)
	assert.Equal(t, 1, rep.Line)
}

func TestFormatPlainErrorHasNoSourceLine(t *testing.T) {
	rep := Format("module.js", "whatever", 0, errors.New("resolve failed"))
	assert.Equal(t, "resolve failed", rep.Message)
	assert.Equal(t, "resolve failed", rep.Formatted)
}
