package scripting

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/scan"
)

var ErrEmptyScript = errors.New("empty script")

const matchFunc = "match"

// Filter is a frame predicate written in JavaScript. The source is either a
// boolean expression over `frame` or a program defining match(frame).
// Runtime errors count as a non-match; the first one is kept for Err.
type Filter struct {
	source  string
	program *goja.Program
	vm      *VM
	match   goja.Callable

	errMu sync.Mutex
	err   error
}

var (
	_ scan.Matcher = (*Filter)(nil)
	_ scan.Cloner  = (*Filter)(nil)
)

// Compile parses the source and prepares a VM to evaluate it.
// A program that defines match(frame) is used as is; anything else is
// treated as an expression.
func Compile(source string) (*Filter, error) {
	if strings.TrimSpace(source) == "" {
		return nil, ErrEmptyScript
	}

	if program, err := goja.Compile("filter.js", source, true); err == nil {
		if f, err := newFilter(source, program); err == nil {
			return f, nil
		}
	}

	wrapped := "function " + matchFunc + "(frame) {\nreturn (" + source + "\n);\n}"
	program, err := goja.Compile("filter.js", wrapped, true)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}
	return newFilter(source, program)
}

func newFilter(source string, program *goja.Program) (*Filter, error) {
	vm := NewVM()
	if err := vm.Execute(program); err != nil {
		return nil, err
	}
	match, err := vm.Function(matchFunc)
	if err != nil {
		return nil, err
	}
	return &Filter{source: source, program: program, vm: vm, match: match}, nil
}

// Matches runs the predicate against f. Only a strict true matches.
func (sf *Filter) Matches(f engine.Frame) bool {
	out, err := sf.vm.Call(sf.match, frameObject(sf.vm.Runtime(), f))
	if err != nil {
		sf.errMu.Lock()
		if sf.err == nil {
			sf.err = fmt.Errorf("frame %d: %w", f.Skips, err)
		}
		sf.errMu.Unlock()
		return false
	}
	return out != nil && out.StrictEquals(sf.vm.Runtime().ToValue(true))
}

// Clone returns an independent filter over the same compiled program.
func (sf *Filter) Clone() (scan.Matcher, error) {
	return newFilter(sf.source, sf.program)
}

// Err returns the first evaluation error, if any.
func (sf *Filter) Err() error {
	sf.errMu.Lock()
	defer sf.errMu.Unlock()
	return sf.err
}

// Source returns the script text
func (sf *Filter) Source() string { return sf.source }

// Logs returns messages the script wrote with log or console.log.
func (sf *Filter) Logs() []LogEntry { return sf.vm.GetLogs() }
