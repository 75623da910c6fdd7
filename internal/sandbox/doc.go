/*
Package sandbox runs untrusted page scripts inside isolated goja runtimes.

# Overview

A Runtime is one JavaScript global scope. The extractor acquires a Runtime for
a single page, loads the compiled bootstrap into it, evaluates the page payload
once and then evaluates small probe and extraction expressions against the
globals the payload defined. Nothing survives the call: a Runtime returned to
the Pool is reset to a fresh VM before anyone else can acquire it.

# Budgets

Every Load and Evaluate call runs under Config.Timeout. When the budget runs
out, or the caller's context is cancelled, the VM is interrupted and the call
returns ErrBudgetExceeded or the context error. Exceptions thrown by the script
are returned as *ScriptError so callers can tell "the script threw" apart from
"the script never finished".

# Values

Evaluate converts the completion value into a tagged Value:

	KindBoolean  - a JavaScript boolean
	KindStrings  - an array whose elements are all strings
	KindOther    - anything else (Raw holds the exported Go value)

# Usage

	pool, err := sandbox.NewPool(sandbox.DefaultConfig(), 4)
	if err != nil {
		return err
	}
	defer pool.Close()

	err = pool.Run(ctx, func(rt *sandbox.Runtime) error {
		if err := rt.Load(ctx, program); err != nil {
			return err
		}
		v, err := rt.Evaluate(ctx, "Array.isArray(pages)")
		...
	})
*/
package sandbox
