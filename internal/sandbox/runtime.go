package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Runtime wraps a goja VM with an execution budget
type Runtime struct {
	vm     *goja.Runtime
	config Config
	mu     sync.Mutex
}

// New creates a new sandboxed runtime
func New(config Config) (*Runtime, error) {
	r := &Runtime{config: config}
	if err := r.reset(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load runs a precompiled program in the runtime's global scope
func (r *Runtime) Load(ctx context.Context, program *goja.Program) error {
	if program == nil {
		return errors.New("nil program")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.guard(ctx, func() (goja.Value, error) {
		return r.vm.RunProgram(program)
	})
	return err
}

// Exec evaluates source for its side effects and discards the completion value
func (r *Runtime) Exec(ctx context.Context, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.guard(ctx, func() (goja.Value, error) {
		return r.vm.RunString(source)
	})
	return err
}

// Evaluate evaluates source and converts its completion value
func (r *Runtime) Evaluate(ctx context.Context, source string) (Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	val, err := r.guard(ctx, func() (goja.Value, error) {
		return r.vm.RunString(source)
	})
	if err != nil {
		return Value{}, err
	}
	return exportValue(val), nil
}

// guard runs fn with the timeout and context watchdog armed. Callers hold r.mu.
func (r *Runtime) guard(ctx context.Context, fn func() (goja.Value, error)) (goja.Value, error) {
	if r.vm == nil {
		return nil, errors.New("runtime closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var budget <-chan time.Time
	if r.config.Timeout > 0 {
		timer := time.NewTimer(r.config.Timeout)
		defer timer.Stop()
		budget = timer.C
	}

	vm := r.vm
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-budget:
			vm.Interrupt(ErrBudgetExceeded)
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := fn()

	close(done)
	<-stopped
	vm.ClearInterrupt()

	return val, classify(err)
}

// classify maps goja errors onto the package error types
func classify(err error) error {
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
		return ErrBudgetExceeded
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &ScriptError{Message: exception.Value().String(), Err: err}
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &ScriptError{Message: syntax.Error(), Err: err}
	}

	return &ScriptError{Message: err.Error(), Err: err}
}

// setupGlobals strips host hooks and stubs timers
func (r *Runtime) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to clear %s: %w", name, err)
		}
	}

	// Timers never fire; anti-debugging loops scheduled through them stay dormant.
	noop := func(call goja.FunctionCall) goja.Value {
		return r.vm.ToValue(0)
	}
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		if err := r.vm.Set(name, noop); err != nil {
			return fmt.Errorf("failed to stub %s: %w", name, err)
		}
	}
	return nil
}

// exportValue converts goja value to a tagged Value
func exportValue(val goja.Value) Value {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return Value{Kind: KindOther}
	}

	switch exported := val.Export().(type) {
	case bool:
		return Value{Kind: KindBoolean, Bool: exported, Raw: exported}
	case []interface{}:
		strs := make([]string, 0, len(exported))
		for _, elem := range exported {
			s, ok := elem.(string)
			if !ok {
				return Value{Kind: KindOther, Raw: exported}
			}
			strs = append(strs, s)
		}
		return Value{Kind: KindStrings, Strings: strs, Raw: exported}
	default:
		return Value{Kind: KindOther, Raw: exported}
	}
}

func (r *Runtime) reset() error {
	r.vm = goja.New()
	if r.config.MaxCallStack > 0 {
		r.vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}
	return r.setupGlobals()
}

// Reset replaces the VM so no globals from earlier scripts remain
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reset()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vm = nil
	return nil
}
