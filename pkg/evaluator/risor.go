package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
	"github.com/risor-io/risor/vm"
)

// RisorEvaluator compiles Risor scripts once and runs the bytecode per message.
// No default globals (os, exec, file access) are installed; only msg, node,
// context, flow and global are visible. The value of the last expression is
// the result, so a script forwarding the message ends with `msg`.
type RisorEvaluator struct{}

func NewRisorEvaluator() *RisorEvaluator {
	return &RisorEvaluator{}
}

// globalNames are the names a script may reference; unknown names fail compilation.
var globalNames = []string{"context", "flow", "global", "msg", "node"}

func (e *RisorEvaluator) Compile(source string, bindings Bindings) (Func, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}

	program, err := parser.Parse(context.Background(), source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	code, err := compiler.Compile(program, compiler.WithGlobalNames(globalNames))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	scopes := map[string]any{
		"context": scopeModule("context", bindings.Context),
		"flow":    scopeModule("flow", bindings.Flow),
		"global":  scopeModule("global", bindings.Global),
	}

	return func(ctx context.Context, msg map[string]any) (any, error) {
		globals := make(map[string]any, len(globalNames))
		for k, v := range scopes {
			globals[k] = v
		}

		globals["node"] = toRisor(bindings.Node)
		globals["msg"] = toRisor(msg)

		result, err := vm.Run(ctx, code, vm.WithGlobals(globals))
		if err != nil {
			return nil, fmt.Errorf("risor: %w", err)
		}

		return fromRisor(result), nil
	}, nil
}

func scopeModule(name string, scope Scope) *object.Module {
	binding := &scopeBinding{scope: scope}

	return object.NewBuiltinsModule(name, map[string]object.Object{
		"get": object.NewBuiltin(name+".get", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 1 {
				return object.NewError(fmt.Errorf("%s.get: expected 1 argument, got %d", name, len(args)))
			}

			key, ok := args[0].(*object.String)
			if !ok {
				return object.NewError(fmt.Errorf("%s.get: key must be a string", name))
			}

			return toRisor(binding.Get(key.Value()))
		}),
		"set": object.NewBuiltin(name+".set", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 2 {
				return object.NewError(fmt.Errorf("%s.set: expected 2 arguments, got %d", name, len(args)))
			}

			key, ok := args[0].(*object.String)
			if !ok {
				return object.NewError(fmt.Errorf("%s.set: key must be a string", name))
			}

			binding.Set(key.Value(), fromRisor(args[1]))

			return object.Nil
		}),
	})
}

func toRisor(v any) object.Object {
	if v == nil {
		return object.Nil
	}

	if m, ok := v.(map[string]any); ok {
		items := make(map[string]object.Object, len(m))
		for k, val := range m {
			items[k] = toRisor(val)
		}

		return object.NewMap(items)
	}

	if list, ok := v.([]any); ok {
		items := make([]object.Object, len(list))
		for i, val := range list {
			items[i] = toRisor(val)
		}

		return object.NewList(items)
	}

	obj := object.FromGoType(v)
	if obj == nil {
		return object.Nil
	}

	return obj
}

func fromRisor(obj object.Object) any {
	if obj == nil {
		return nil
	}

	switch o := obj.(type) {
	case *object.Map:
		out := make(map[string]any)
		for k, v := range o.Value() {
			out[k] = fromRisor(v)
		}

		return out
	case *object.List:
		items := o.Value()
		out := make([]any, len(items))

		for i, v := range items {
			out[i] = fromRisor(v)
		}

		return out
	case *object.NilType:
		return nil
	default:
		return obj.Interface()
	}
}
