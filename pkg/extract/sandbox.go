package extract

import (
	"fmt"

	"github.com/dop251/goja"
)

// Row filters run inside a restricted goja runtime: the expression language
// is plain JavaScript expressions, but the runtime exposes nothing beyond
// the frozen built-ins and the per-row binding. Dynamic code loading is
// disabled.

var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"globalThis",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
	"setTimeout",
	"setInterval",
}

var frozenBuiltins = []string{
	"Object",
	"Array",
	"String",
	"Number",
	"Boolean",
	"Math",
	"JSON",
	"RegExp",
}

// newSandboxedVM builds a goja runtime for row-filter evaluation with
// dangerous globals removed, eval disabled and built-ins frozen.
func newSandboxedVM() (*goja.Runtime, error) {
	vm := goja.New()

	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	restricted := func(call goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("dynamic code evaluation is not allowed in row filters"))
	}
	if err := vm.Set("eval", restricted); err != nil {
		return nil, fmt.Errorf("failed to restrict eval: %w", err)
	}
	if err := vm.Set("Function", restricted); err != nil {
		return nil, fmt.Errorf("failed to restrict Function: %w", err)
	}

	freeze, err := vm.RunString(`
		(function(name) {
			var obj = this[name];
			if (obj && typeof obj === 'object' || typeof obj === 'function') {
				Object.freeze(obj);
				if (obj.prototype) {
					Object.freeze(obj.prototype);
				}
			}
		})
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create freeze function: %w", err)
	}
	freezeFn, ok := goja.AssertFunction(freeze)
	if !ok {
		return nil, fmt.Errorf("freeze helper is not a function")
	}
	for _, name := range frozenBuiltins {
		if _, err := freezeFn(vm.GlobalObject(), vm.ToValue(name)); err != nil {
			return nil, fmt.Errorf("failed to freeze %s: %w", name, err)
		}
	}

	return vm, nil
}

// rowFilter is one compiled filter expression, evaluated once per row with
// the row binding in scope.
type rowFilter struct {
	expr    string
	program *goja.Program
}

func compileRowFilter(expr string) (*rowFilter, error) {
	program, err := goja.Compile("<filter>", expr, true)
	if err != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", expr, err)
	}
	return &rowFilter{expr: expr, program: program}, nil
}

// eval runs the filter against one row. The second return value reports
// whether the row produced a result; null and undefined mean "no result"
// and the row is skipped.
func (f *rowFilter) eval(vm *goja.Runtime, row map[string]string) (any, bool, error) {
	if err := vm.Set("row", row); err != nil {
		return nil, false, err
	}
	value, err := vm.RunProgram(f.program)
	if err != nil {
		return nil, false, err
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, false, nil
	}
	return value.Export(), true, nil
}
