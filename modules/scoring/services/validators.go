package services

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/auditmed/report-scoring/pkg/docvalue"
)

// ValidatorFunc decides whether a rule triggers when its logic cannot be
// expressed as declared conditions. Must be pure: read the document,
// return the verdict.
type ValidatorFunc func(doc docvalue.Value) bool

var (
	errValidatorKeyRequired = errors.New("validators: key required")
	errValidatorFuncNil     = errors.New("validators: func is nil")
)

// Validators maps validator keys to registered functions. Rules carrying
// hasValidator=true delegate their trigger decision here; looking up an
// unregistered key is a configuration problem, reported by the caller as
// a non-triggering rule, never a panic.
type Validators struct {
	mu    sync.RWMutex
	funcs map[string]ValidatorFunc
}

func NewValidators() *Validators {
	return &Validators{funcs: make(map[string]ValidatorFunc)}
}

func (v *Validators) Register(key string, fn ValidatorFunc) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errValidatorKeyRequired
	}
	if fn == nil {
		return errValidatorFuncNil
	}
	v.mu.Lock()
	v.funcs[key] = fn
	v.mu.Unlock()
	return nil
}

var newValidatorCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)))
}

// RegisterExpr registers a CEL expression as a named validator. The
// expression sees the document bound as `doc` and must yield a bool.
// Compilation happens here, once, so a bad expression fails at
// registration instead of silently at scoring time.
func (v *Validators) RegisterExpr(key string, expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return errors.New("validators: expression required")
	}
	env, err := newValidatorCELEnv()
	if err != nil {
		return err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return errors.New("validators: expression must yield bool")
	}
	program, err := env.Program(ast)
	if err != nil {
		return err
	}
	return v.Register(key, func(doc docvalue.Value) bool {
		payload, _ := doc.ToAny().(map[string]any)
		if payload == nil {
			payload = map[string]any{}
		}
		out, _, err := program.Eval(map[string]any{"doc": payload})
		if err != nil {
			slog.Warn("validator expression eval failed", "key", key, "error", err)
			return false
		}
		verdict, ok := out.Value().(bool)
		return ok && verdict
	})
}

func (v *Validators) Has(key string) bool {
	v.mu.RLock()
	_, ok := v.funcs[strings.TrimSpace(key)]
	v.mu.RUnlock()
	return ok
}

// Evaluate runs the named validator. found=false means the key is not
// registered; the verdict is false in that case.
func (v *Validators) Evaluate(key string, doc docvalue.Value) (verdict bool, found bool) {
	v.mu.RLock()
	fn, ok := v.funcs[strings.TrimSpace(key)]
	v.mu.RUnlock()
	if !ok {
		return false, false
	}
	return fn(doc), true
}
