package id

import (
	"fmt"

	"github.com/google/uuid"
)

// MaxLen bounds a caller-supplied correlation id so channel names derived
// from it stay reasonable broker keys.
const MaxLen = 128

// New returns a fresh correlation id in canonical UUID form.
func New() string { return uuid.NewString() }

// Validate checks that s is usable as a correlation id. Ids are opaque
// tokens chosen by the caller; any non-empty value is accepted as long as
// the channel name it yields is safe, so whitespace, control characters,
// and ':' (the channel name separator) are rejected.
func Validate(s string) error {
	if s == "" {
		return fmt.Errorf("empty correlation id")
	}
	if len(s) > MaxLen {
		return fmt.Errorf("correlation id exceeds %d bytes", MaxLen)
	}
	for _, r := range s {
		if r <= ' ' || r == ':' || r == 0x7f {
			return fmt.Errorf("correlation id contains %q", r)
		}
	}
	return nil
}
