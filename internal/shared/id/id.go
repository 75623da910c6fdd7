// Package id generates the identifiers attached to requests, extractions and
// bootstrap builds.
//
// IDs are prefixed ULIDs (req_01J...), so they sort by creation time and read
// well in logs. Incoming request IDs from a proxy may also be UUIDs; Accept
// keeps those as-is.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RequestID identifies an API request
type RequestID string

// ExtractionID identifies one run of the image extractor
type ExtractionID string

// BuildID identifies a compiled bootstrap program
type BuildID string

const (
	RequestPrefix    = "req"
	ExtractionPrefix = "ext"
	BuildPrefix      = "bld"
)

// maxHeaderLen bounds caller-supplied request IDs
const maxHeaderLen = 64

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
	now       func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// entropy, so IDs made within the same millisecond still sort in order.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy, now: time.Now}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewExtractionID generates a new extraction ID
func NewExtractionID() ExtractionID {
	return ExtractionID(Default().GenerateWithPrefix(ExtractionPrefix))
}

// NewBuildID generates a new bootstrap build ID
func NewBuildID() BuildID {
	return BuildID(Default().GenerateWithPrefix(BuildPrefix))
}

func (id RequestID) String() string    { return string(id) }
func (id ExtractionID) String() string { return string(id) }
func (id BuildID) String() string      { return string(id) }

// AcceptRequestID returns header as a RequestID when it is one of ours or a
// UUID, and a freshly generated ID otherwise.
func AcceptRequestID(header string) RequestID {
	header = strings.TrimSpace(header)
	if header == "" || len(header) > maxHeaderLen {
		return NewRequestID()
	}
	if _, err := uuid.Parse(header); err == nil {
		return RequestID(header)
	}
	if HasPrefix(header, RequestPrefix) {
		return RequestID(header)
	}
	return NewRequestID()
}

// HasPrefix reports whether id is a valid ULID carrying the given prefix
func HasPrefix(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	return ok && IsValid(rest)
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// Timestamp extracts the creation time from a prefixed or bare ULID
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
