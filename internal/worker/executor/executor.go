// Package executor hosts the Worker's embedded stateful interpreter. A
// gopher-lua LState's global table stands in for the
// mapping<name, opaque value> namespace the design calls for: Load
// failures are syntax errors caught before anything runs, and PCall
// failures are runtime errors caught after some code has already
// executed — exactly the distinction worker/core/executor.py's
// run_code_sync draws between error_before_exec and error_in_exec.
package executor

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/arndt-labs/codesandbox/internal/worker/outputcapture"
	"github.com/arndt-labs/codesandbox/internal/worker/serializer"
	"github.com/arndt-labs/codesandbox/protocol"
)

// Executor owns one gopher-lua state for the lifetime of a session's
// Worker. It is not safe for concurrent Run calls — a session has no
// in-Worker concurrency, per the design.
type Executor struct {
	l        *lua.LState
	logger   *slog.Logger
	baseline map[string]struct{}
	execCnt  int
	current  *outputcapture.Capture
}

// New creates a fresh interpreter, installs the print override and the
// sandbox.* construction helpers, and snapshots the resulting global
// names as the baseline that ListVariables and rollback never touch.
func New(logger *slog.Logger) *Executor {
	l := lua.NewState()
	e := &Executor{l: l, logger: logger}
	e.installPrint()
	e.installHelpers()
	e.baseline = e.currentNames()
	return e
}

// Close releases the underlying interpreter.
func (e *Executor) Close() {
	e.l.Close()
}

func (e *Executor) globals() *lua.LTable {
	return e.l.Get(lua.GlobalsIndex).(*lua.LTable)
}

func (e *Executor) currentNames() map[string]struct{} {
	names := make(map[string]struct{})
	e.globals().ForEach(func(k, _ lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			names[string(ks)] = struct{}{}
		}
	})
	return names
}

// installPrint rebinds Lua's print so output flows into whichever
// Capture is active for the current execution, the same StreamCapture
// redirection output_capture.py performs on sys.stdout.
func (e *Executor) installPrint() {
	e.l.SetGlobal("print", e.l.NewFunction(func(l *lua.LState) int {
		n := l.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = l.ToStringMeta(l.Get(i)).String()
		}
		if e.current != nil {
			e.current.Text(strings.Join(parts, "\t") + "\n")
		}
		return 0
	}))
}

// installHelpers registers the sandbox.* constructors scripts use to
// build the tagged tables the Serializer recognizes as DataFrame,
// Series, ndarray and set values.
func (e *Executor) installHelpers() {
	tbl := e.l.NewTable()

	tbl.RawSetString("dataframe", e.l.NewFunction(func(l *lua.LState) int {
		columns := l.CheckTable(1)
		rows := l.CheckTable(2)
		out := l.NewTable()
		out.RawSetString("__type", lua.LString("dataframe"))
		out.RawSetString("columns", columns)
		out.RawSetString("rows", rows)
		l.Push(out)
		return 1
	}))

	tbl.RawSetString("series", e.l.NewFunction(func(l *lua.LState) int {
		values := l.CheckTable(1)
		name := l.OptString(2, "")
		out := l.NewTable()
		out.RawSetString("__type", lua.LString("series"))
		out.RawSetString("values", values)
		out.RawSetString("series_name", lua.LString(name))
		l.Push(out)
		return 1
	}))

	tbl.RawSetString("ndarray", e.l.NewFunction(func(l *lua.LState) int {
		data := l.CheckTable(1)
		shape := l.CheckTable(2)
		out := l.NewTable()
		out.RawSetString("__type", lua.LString("ndarray"))
		out.RawSetString("data", data)
		out.RawSetString("shape", shape)
		l.Push(out)
		return 1
	}))

	tbl.RawSetString("set", e.l.NewFunction(func(l *lua.LState) int {
		elements := l.CheckTable(1)
		out := l.NewTable()
		out.RawSetString("__type", lua.LString("set"))
		out.RawSetString("elements", elements)
		l.Push(out)
		return 1
	}))

	e.l.SetGlobal("sandbox", tbl)
}

// Variable returns the current value bound to name.
func (e *Executor) Variable(name string) lua.LValue {
	return e.globals().RawGetString(name)
}

// HasVariable reports whether name is bound to a non-nil value.
func (e *Executor) HasVariable(name string) bool {
	return e.Variable(name) != lua.LNil
}

// ListVariables returns every bound name that is not part of the
// baseline, sorted for determinism.
func (e *Executor) ListVariables() []string {
	names := e.currentNames()
	out := make([]string, 0, len(names))
	for n := range names {
		if _, isBaseline := e.baseline[n]; !isBaseline {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// ExecutionCount returns how many Run calls have been made.
func (e *Executor) ExecutionCount() int {
	return e.execCnt
}

// Reset clears every non-baseline variable, the Lua analogue of
// IPythonExecutor.reset() dropping user globals and restarting the
// session: the interpreter is closed and reopened, and the print
// override and sandbox.* helpers are installed again.
func (e *Executor) Reset() {
	e.l.Close()
	e.l = lua.NewState()
	e.installPrint()
	e.installHelpers()
	e.baseline = e.currentNames()
}

// Run executes code against the persistent namespace, streaming any
// printed output into capture and finishing with exactly one terminal
// Result chunk. It always returns a result — Run itself never
// propagates an error, matching the Worker's "interpreter failures are
// successful executions" contract.
func (e *Executor) Run(capture *outputcapture.Capture, code, resultVar string) protocol.ExecutionResult {
	start := time.Now()
	e.execCnt++

	e.current = capture
	defer func() { e.current = nil }()

	keysBefore := e.currentNames()

	result := e.runLocked(code, resultVar, keysBefore, start)
	capture.Result(result.ToJSON())
	return result
}

func (e *Executor) runLocked(code, resultVar string, keysBefore map[string]struct{}, start time.Time) (result protocol.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.cleanupDirty(keysBefore)
			result = protocol.ExecutionResult{
				Success:       false,
				Status:        protocol.StatusError,
				ExecutionTime: elapsed(start),
				ErrorType:     "runtime_error",
				ErrorMessage:  fmt.Sprintf("%v", r),
			}
		}
	}()

	fn, err := e.l.LoadString(code)
	if err != nil {
		// Syntax error: nothing executed, namespace untouched.
		return protocol.ExecutionResult{
			Success:       false,
			Status:        protocol.StatusError,
			ExecutionTime: elapsed(start),
			ErrorType:     "syntax_error",
			ErrorMessage:  err.Error(),
		}
	}

	e.l.Push(fn)
	if err := e.l.PCall(0, 0, e.l.NewFunction(e.errorHandler)); err != nil {
		e.cleanupDirty(keysBefore)
		return protocol.ExecutionResult{
			Success:       false,
			Status:        protocol.StatusError,
			ExecutionTime: elapsed(start),
			ErrorType:     "runtime_error",
			ErrorMessage:  err.Error(),
			Traceback:     tracebackFromErr(err),
		}
	}

	res := protocol.ExecutionResult{
		Success:       true,
		Status:        protocol.StatusSuccess,
		ExecutionTime: elapsed(start),
	}

	if resultVar != "" {
		if val := e.Variable(resultVar); val != lua.LNil {
			raw, err := serializer.Serialize(val, resultVar)
			if err == nil {
				res.ReturnValue = raw
			}
		}
	}

	return res
}

// errorHandler is installed as PCall's message handler so a runtime
// error carries a full stack trace, the same traceback.format_exc()
// capture worker/core/executor.py performs around exec().
func (e *Executor) errorHandler(l *lua.LState) int {
	msg := l.ToStringMeta(l.Get(1)).String()
	if dbg, ok := l.GetGlobal("debug").(*lua.LTable); ok {
		if tb, ok := dbg.RawGetString("traceback").(*lua.LFunction); ok {
			l.Push(tb)
			l.Push(lua.LString(msg))
			l.Push(lua.LNumber(1))
			l.Call(2, 1)
			return 1
		}
	}
	l.Push(lua.LString(msg + "\n" + l.Where(1)))
	return 1
}

// tracebackFromErr pulls the message handler's return value back out of
// a PCall error, if PCall produced one.
func tracebackFromErr(err error) string {
	apiErr, ok := err.(*lua.ApiError)
	if !ok {
		return ""
	}
	if s, ok := apiErr.Object.(lua.LString); ok {
		return string(s)
	}
	return apiErr.Object.String()
}

// cleanupDirty deletes every global bound after keysBefore was taken —
// the rollback step worker/core/executor.py's _cleanup_dirty_variables
// performs on a runtime (but never a syntax) error.
func (e *Executor) cleanupDirty(keysBefore map[string]struct{}) {
	globals := e.globals()
	for name := range e.currentNames() {
		if _, existed := keysBefore[name]; !existed {
			globals.RawSetString(name, lua.LNil)
		}
	}
}

func elapsed(start time.Time) float64 {
	secs := time.Since(start).Seconds()
	return math.Round(secs*10000) / 10000 // round to 4 decimals
}
