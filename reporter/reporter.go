// Package reporter implements the Error Reporter (spec §4.7): it turns a
// goja exception, interruption, or compile error into the fixed four-line
// format an embedder can show a contract author - filename:line, the
// offending source line, a caret underline, and the exception's own
// message or stack.
package reporter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Report is the structured result of Format. Formatted holds the full
// four-line (or fewer, when no source position is available) rendering;
// the other fields are exposed separately for callers that want to log
// them independently.
type Report struct {
	Filename  string
	Line      int
	Column    int
	Message   string
	Formatted string
}

// locRe pulls a "<file>:<line>:<col>" triple out of a goja exception's
// stack representation, which is the only place goja exposes the
// originating position as of the version vendored here.
var locRe = regexp.MustCompile(`([^\s(]+):(\d+):(\d+)`)

// Format builds the Report for err, which occurred while running source
// under the name filename. lineOffset is the number of lines the Module
// Loader's wrapper template (or the Source Transformer's bootstrap)
// prepended ahead of the author's own first line; it is subtracted from
// whatever line goja reports so the caret lands on the right line of the
// *original* source the embedder passed in, not the wrapped copy actually
// compiled (spec §4.6, §4.7).
func Format(filename string, source string, lineOffset int, err error) Report {
	message, rawLoc := extract(err)

	rep := Report{Filename: filename, Message: message}

	if rawLoc == "" {
		rep.Formatted = message
		return rep
	}

	m := locRe.FindStringSubmatch(rawLoc)
	if m == nil {
		rep.Formatted = message
		return rep
	}

	line, _ := strconv.Atoi(m[2])
	col, _ := strconv.Atoi(m[3])
	line -= lineOffset
	rep.Line = line
	rep.Column = col

	lines := strings.Split(source, "\n")
	if line < 1 || line > len(lines) {
		rep.Formatted = fmt.Sprintf("%s:%d\n%s", filename, line, message)
		return rep
	}
	sourceLine := lines[line-1]

	caretCol := col - 1
	if caretCol < 0 {
		caretCol = 0
	}
	if caretCol > len(sourceLine) {
		caretCol = len(sourceLine)
	}
	caret := strings.Repeat(" ", caretCol) + "^"

	rep.Formatted = fmt.Sprintf("%s:%d\n%s\n%s\n%s", filename, line, sourceLine, caret, message)
	return rep
}

// extract returns the reportable message and, if available, a
// "file:line:col"-shaped substring to parse the position out of. It
// recognizes the three error shapes RunScript/TransformSource can produce:
// a script-level *goja.Exception, a cooperative *goja.InterruptedError, and
// a plain compile/Go error from anywhere else in the pipeline.
func extract(err error) (message, loc string) {
	switch e := err.(type) {
	case *goja.Exception:
		stack := e.String()
		return e.Error(), stack
	case *goja.InterruptedError:
		return e.Error(), ""
	default:
		msg := err.Error()
		return msg, msg
	}
}
