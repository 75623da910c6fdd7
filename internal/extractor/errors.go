package extractor

import (
	"errors"
	"fmt"
)

var (
	// ErrScriptNotFound means the page carried no payload script
	ErrScriptNotFound = errors.New("payload script not found")
	// ErrNoImagesFound means the payload ran but no candidate held an image list
	ErrNoImagesFound = errors.New("no images found")
)

// Stage names the sandbox step that failed
type Stage string

const (
	StageAcquire   Stage = "acquire"
	StageBootstrap Stage = "bootstrap"
	StagePayload   Stage = "payload"
	StageProbe     Stage = "probe"
	StageExtract   Stage = "extract"
)

// SandboxError reports a compile, evaluation or budget failure inside the
// sandbox. It is never downgraded to an empty result.
type SandboxError struct {
	Stage Stage
	Err   error
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("sandbox %s failed: %v", e.Stage, e.Err)
}

func (e *SandboxError) Unwrap() error {
	return e.Err
}

func sandboxError(stage Stage, err error) error {
	var existing *SandboxError
	if errors.As(err, &existing) {
		return err
	}
	return &SandboxError{Stage: stage, Err: err}
}
