package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/readcomic/internal/sandbox"
)

// probeSource checks Array.isArray(name) without spelling out the method
// name, so loader hooks keyed on the literal never see it. Exceptions raised
// by the candidate (undeclared, throwing getter) count as "not an array".
const probeSource = `(function () {
  var method = ['y', 'a', 'r', 'r', 'A', 's', 'i'].reverse().join('');
  try {
    return Array[method](%s) === true;
  } catch (e) {
    return false;
  }
})()`

// collectSource copies the candidate into a fresh array of strings
const collectSource = `(function (source) {
  var out = [];
  for (var i = 0; i < source.length; i++) {
    out.push(String(source[i]));
  }
  return out;
})(%s)`

// probe reports whether name is bound to an array. Script errors are a
// negative answer; budget and cancellation errors are returned.
func probe(ctx context.Context, rt *sandbox.Runtime, name string) (bool, error) {
	val, err := rt.Evaluate(ctx, fmt.Sprintf(probeSource, name))
	if err != nil {
		var scriptErr *sandbox.ScriptError
		if errors.As(err, &scriptErr) {
			return false, nil
		}
		return false, err
	}
	return val.IsTrue(), nil
}

// collect returns the elements of the array bound to name as strings
func collect(ctx context.Context, rt *sandbox.Runtime, name string) ([]string, error) {
	val, err := rt.Evaluate(ctx, fmt.Sprintf(collectSource, name))
	if err != nil {
		return nil, err
	}
	if val.Kind != sandbox.KindStrings {
		return nil, fmt.Errorf("%s evaluated to %s, want strings", name, val.Kind)
	}
	return val.Strings, nil
}
