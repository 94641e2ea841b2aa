// Package evaluator turns user supplied source text into callables run per message.
// The engine only depends on the Evaluator capability; the language behind it is
// pluggable.
package evaluator

import (
	"context"
	"errors"
	"fmt"
)

// DefaultLanguage is used when a node does not name one.
const DefaultLanguage = "expr"

var (
	ErrUnknownLanguage = errors.New("unknown expression language")
	ErrCompile         = errors.New("failed to compile expression")
)

// Scope is a named key/value store exposed to user code (node, flow and global contexts).
type Scope interface {
	Get(key string) any
	Set(key string, value any)
	Keys() []string
}

// Bindings are the four named scopes bound to a compiled function.
type Bindings struct {
	Node    map[string]any
	Context Scope
	Flow    Scope
	Global  Scope
}

// Func runs compiled source against a message's fields. A nil msg is used for
// initialize and finalize code.
type Func func(ctx context.Context, msg map[string]any) (any, error)

// Evaluator compiles source text with the given bindings.
type Evaluator interface {
	Compile(source string, bindings Bindings) (Func, error)
}

// Set maps language names to evaluators.
type Set map[string]Evaluator

// Defaults returns the built-in languages.
func Defaults() Set {
	return Set{
		"expr":  NewExprEvaluator(),
		"risor": NewRisorEvaluator(),
	}
}

// Get resolves language, falling back to DefaultLanguage for an empty name.
func (s Set) Get(language string) (Evaluator, error) {
	if language == "" {
		language = DefaultLanguage
	}

	e, ok := s[language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
	}

	return e, nil
}

// scopeBinding adapts a Scope for user code. Set returns the stored value so
// it can be used inside expressions.
type scopeBinding struct {
	scope Scope
}

func (s *scopeBinding) Get(key string) any {
	if s.scope == nil {
		return nil
	}

	return s.scope.Get(key)
}

func (s *scopeBinding) Set(key string, value any) any {
	if s.scope != nil {
		s.scope.Set(key, value)
	}

	return value
}

func (s *scopeBinding) Keys() []string {
	if s.scope == nil {
		return nil
	}

	return s.scope.Keys()
}
