// Package warn carries recoverable conversion faults from the component that
// found them to the caller.
package warn

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Code classifies a warning.
type Code int

const (
	SkippedElement Code = iota
	UnsupportedFeature
	ResourceLimitReached
	MalformedSegment
)

var codeNames = [...]string{
	SkippedElement:       "SkippedElement",
	UnsupportedFeature:   "UnsupportedFeature",
	ResourceLimitReached: "ResourceLimitReached",
	MalformedSegment:     "MalformedSegment",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// MarshalText renders the code name in JSON output.
func (c Code) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText accepts the names produced by MarshalText.
func (c *Code) UnmarshalText(b []byte) error {
	for i, name := range codeNames {
		if name == string(b) {
			*c = Code(i)
			return nil
		}
	}
	return errors.Newf("unknown warning code %q", b)
}

// Warning is one recoverable fault. Location is a best-effort hint such as
// "ppt/slides/slide3.xml" or "Sheet1!B4".
type Warning struct {
	Code     Code   `json:"code"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

func (w Warning) String() string {
	if w.Location == "" {
		return w.Code.String() + ": " + w.Message
	}
	return w.Code.String() + ": " + w.Message + " (" + w.Location + ")"
}

// ErrStrict marks errors produced by escalating a warning in strict mode.
var ErrStrict = errors.New("strict mode")

// StrictError is a warning escalated to a failure.
type StrictError struct {
	Warning Warning
}

func (e *StrictError) Error() string { return "strict mode: " + e.Warning.String() }

func (e *StrictError) Is(target error) bool { return target == ErrStrict }

// Collector accumulates warnings in insertion order. In strict mode the first
// warning is also kept as an error that builders check with Err and return.
type Collector struct {
	strict   bool
	warnings []Warning
	err      error
}

// NewCollector returns an empty collector.
func NewCollector(strict bool) *Collector {
	return &Collector{strict: strict}
}

// Add records a warning.
func (c *Collector) Add(code Code, location, format string, args ...any) {
	c.Append(Warning{Code: code, Message: fmt.Sprintf(format, args...), Location: location})
}

// Append records an already built warning.
func (c *Collector) Append(w Warning) {
	c.warnings = append(c.warnings, w)
	if c.strict && c.err == nil {
		c.err = &StrictError{Warning: w}
	}
}

// Err returns the escalated warning in strict mode, nil otherwise.
func (c *Collector) Err() error { return c.err }

// Strict reports whether warnings escalate.
func (c *Collector) Strict() bool { return c.strict }

// Len returns the number of warnings recorded.
func (c *Collector) Len() int { return len(c.warnings) }

// Warnings returns a copy of the recorded warnings.
func (c *Collector) Warnings() []Warning {
	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Concat joins per-phase warning streams in phase order.
func Concat(phases ...[]Warning) []Warning {
	var n int
	for _, p := range phases {
		n += len(p)
	}
	out := make([]Warning, 0, n)
	for _, p := range phases {
		out = append(out, p...)
	}
	return out
}
