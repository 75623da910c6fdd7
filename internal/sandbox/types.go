package sandbox

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/readcomic/internal/infrastructure/logging"
)

var (
	// ErrBudgetExceeded is returned when a script runs past Config.Timeout
	ErrBudgetExceeded = errors.New("sandbox execution budget exceeded")
)

// Config defines sandbox configuration
type Config struct {
	Timeout        time.Duration // Budget for a single Load or Evaluate call
	MaxCallStack   int           // Maximum JavaScript call stack depth
	AcquireTimeout time.Duration // How long Pool.Acquire waits for a free runtime
	Logger         *logging.Logger
}

// DefaultConfig returns the configuration used for page extraction
func DefaultConfig() Config {
	return Config{
		Timeout:        5 * time.Second,
		MaxCallStack:   1024,
		AcquireTimeout: 10 * time.Second,
	}
}

// Kind tags the shape of an evaluated value
type Kind int

const (
	KindOther Kind = iota
	KindBoolean
	KindStrings
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindStrings:
		return "strings"
	default:
		return "other"
	}
}

// Value is the completion value of an evaluation
type Value struct {
	Kind    Kind
	Bool    bool
	Strings []string
	Raw     interface{}
}

// IsTrue reports whether the value is the boolean true
func (v Value) IsTrue() bool {
	return v.Kind == KindBoolean && v.Bool
}

// ScriptError reports an exception or syntax error raised by evaluated code
type ScriptError struct {
	Message string
	Err     error
}

func (e *ScriptError) Error() string {
	return "script error: " + e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
