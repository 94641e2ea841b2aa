package evaluator

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

var exprFunctions = []expr.Option{
	expr.Function("base64_encode", func(params ...any) (any, error) {
		switch v := params[0].(type) {
		case []byte:
			return base64.StdEncoding.EncodeToString(v), nil
		case string:
			return base64.StdEncoding.EncodeToString([]byte(v)), nil
		default:
			return nil, fmt.Errorf("base64_encode: unsupported type %T", v)
		}
	}),
	expr.Function("base64_decode", func(params ...any) (any, error) {
		s, _ := params[0].(string)

		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}

		return string(decoded), nil
	}),
}

// ExprEvaluator compiles expr-lang expressions. The message is bound as msg, the
// node description as node and the three contexts as context, flow and global,
// each exposing Get(key), Set(key, value) and Keys().
type ExprEvaluator struct{}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{}
}

func (e *ExprEvaluator) Compile(source string, bindings Bindings) (Func, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}

	base := map[string]any{
		"null":    nil,
		"node":    bindings.Node,
		"context": &scopeBinding{scope: bindings.Context},
		"flow":    &scopeBinding{scope: bindings.Flow},
		"global":  &scopeBinding{scope: bindings.Global},
	}

	compileEnv := make(map[string]any, len(base)+1)
	for k, v := range base {
		compileEnv[k] = v
	}

	compileEnv["msg"] = map[string]any{}

	// NOTE: expr.Env must come before AllowUndefinedVariables
	opts := []expr.Option{
		expr.Env(compileEnv),
		expr.AllowUndefinedVariables(),
	}
	opts = append(opts, exprFunctions...)

	program, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	return func(_ context.Context, msg map[string]any) (any, error) {
		env := make(map[string]any, len(base)+1)
		for k, v := range base {
			env[k] = v
		}

		env["msg"] = msg

		return expr.Run(program, env)
	}, nil
}
