// Package id defines the TypeID-based identifiers bulkq entities carry.
//
// An ID renders as "prefix_suffix", where the prefix names the entity type
// and the suffix encodes a UUIDv7. That makes IDs K-sortable (creation
// order survives an ORDER BY), globally unique, and unambiguous in logs: a
// job id cannot be mistaken for a billing-event id.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the entity type encoded in an ID.
type Prefix string

const (
	// PrefixJob marks bulk job identifiers.
	PrefixJob Prefix = "job"
	// PrefixEvent marks billing usage-event identifiers.
	PrefixEvent Prefix = "evt"
)

// JobID identifies a bulk job ("job_..." on the wire).
type JobID = ID

// EventID identifies a billing usage event ("evt_..." on the wire).
type EventID = ID

// ID wraps a TypeID. The zero value is Nil, which renders as the empty
// string and stores as SQL NULL.
//
//nolint:recvcheck // value receivers for reads, pointer receivers for UnmarshalText/Scan
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// NewJobID generates a fresh job identifier.
func NewJobID() ID { return generate(PrefixJob) }

// NewEventID generates a fresh usage-event identifier.
func NewEventID() ID { return generate(PrefixEvent) }

func generate(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		// The prefixes are package constants; a bad one is a bug here,
		// not a caller error.
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse decodes any well-formed TypeID string, whatever its prefix.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseJobID decodes s and rejects it unless it carries the job prefix.
func ParseJobID(s string) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != PrefixJob {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", PrefixJob, parsed.Prefix())
	}
	return parsed, nil
}

// String renders the ID as "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the entity-type component, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether the ID is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields
// Nil rather than an error so optional JSON fields decode cleanly.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
