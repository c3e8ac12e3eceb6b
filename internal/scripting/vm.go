package scripting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

const (
	setupBudget = 2 * time.Second
	callBudget  = 100 * time.Millisecond
	maxLogLines = 500
)

// globals a filter script must not reach
var blockedGlobals = []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"}

// LogEntry is one line a script wrote with log or console.log
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// logRing keeps the newest maxLogLines entries
type logRing struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (r *logRing) add(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == maxLogLines {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:maxLogLines-1]
	}
	r.entries = append(r.entries, LogEntry{Time: time.Now(), Message: msg})
}

func (r *logRing) snapshot() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), r.entries...)
}

// VM is a sandboxed goja runtime. Every entry into the runtime is bounded
// by a watchdog that interrupts it. A VM evaluates one call at a time.
type VM struct {
	mu   sync.Mutex
	rt   *goja.Runtime
	logs logRing
}

// NewVM creates a runtime with the helper globals installed
func NewVM() *VM {
	vm := &VM{rt: goja.New()}
	vm.installHelpers()
	injectConstants(vm.rt)
	for _, name := range blockedGlobals {
		vm.rt.Set(name, goja.Undefined())
	}
	return vm
}

func (vm *VM) installHelpers() {
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		vm.logs.add(strings.Join(parts, " "))
		return goja.Undefined()
	}
	vm.rt.Set("log", logFn)
	console := vm.rt.NewObject()
	console.Set("log", logFn)
	vm.rt.Set("console", console)

	// judge(iv) names the judge band of a raw IV
	vm.rt.Set("judge", func(call goja.FunctionCall) goja.Value {
		iv := call.Argument(0).ToInteger()
		if iv < 0 || iv > 31 {
			panic(vm.rt.NewTypeError("judge: iv %d out of range", iv))
		}
		return vm.rt.ToValue(judgeName(uint8(iv)))
	})
}

// guarded runs fn on the calling goroutine with a watchdog that interrupts
// the runtime after budget. The interrupt is always cleared before returning.
func (vm *VM) guarded(budget time.Duration, reason string, fn func() error) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	fired := make(chan struct{})
	timer := time.AfterFunc(budget, func() {
		vm.rt.Interrupt(reason)
		close(fired)
	})
	err := fn()
	if !timer.Stop() {
		<-fired
	}
	vm.rt.ClearInterrupt()
	return err
}

// Execute runs a compiled program once, typically to define match()
func (vm *VM) Execute(program *goja.Program) error {
	return vm.guarded(setupBudget, "script setup timeout", func() error {
		if _, err := vm.rt.RunProgram(program); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
}

// Function looks up a global function the script defined
func (vm *VM) Function(name string) (goja.Callable, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	v := vm.rt.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("%s() function is not defined", name)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("%s is not a function", name)
	}
	return fn, nil
}

// Call invokes fn under the per-call budget
func (vm *VM) Call(fn goja.Callable, args ...goja.Value) (out goja.Value, err error) {
	err = vm.guarded(callBudget, "script call timeout", func() error {
		out, err = fn(goja.Undefined(), args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Runtime exposes the runtime for building argument values
func (vm *VM) Runtime() *goja.Runtime { return vm.rt }

// GetLogs returns a copy of the buffered script output
func (vm *VM) GetLogs() []LogEntry { return vm.logs.snapshot() }
