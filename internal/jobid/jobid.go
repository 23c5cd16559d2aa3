// Package jobid builds and parses the deterministic identity of a generation job.
//
// An identity is the tuple (queue, kind, subject). Its string form joins the
// three components with Separator, so a component containing the separator is
// rejected instead of silently producing a colliding key.
package jobid

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins the components of the string form.
const Separator = ":"

// ErrInvalid is returned for identities that cannot round-trip through String and Parse.
var ErrInvalid = errors.New("invalid job id")

// ID is a structured job identity.
type ID struct {
	Queue   string
	Kind    string
	Subject string
}

// New validates the components and returns the identity.
func New(queue, kind, subject string) (ID, error) {
	id := ID{Queue: queue, Kind: kind, Subject: subject}
	if err := id.Validate(); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Validate checks that every component is non-empty and free of the separator.
func (id ID) Validate() error {
	for _, c := range []struct {
		name  string
		value string
	}{
		{"queue", id.Queue},
		{"kind", id.Kind},
		{"subject", id.Subject},
	} {
		if c.value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalid, c.name)
		}
		if strings.Contains(c.value, Separator) {
			return fmt.Errorf("%w: %s %q contains %q", ErrInvalid, c.name, c.value, Separator)
		}
	}
	return nil
}

// String returns the wire form, e.g. "poetry:text:6f1c...".
func (id ID) String() string {
	return id.Queue + Separator + id.Kind + Separator + id.Subject
}

// IsZero reports whether id is the zero identity.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Parse reads the wire form. It accepts exactly three non-empty segments.
func Parse(s string) (ID, error) {
	parts := strings.Split(s, Separator)
	if len(parts) != 3 {
		return ID{}, fmt.Errorf("%w: %q must have 3 segments", ErrInvalid, s)
	}
	return New(parts[0], parts[1], parts[2])
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
