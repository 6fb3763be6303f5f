package id

import (
	"strings"
	"testing"
)

func TestNewAndParse(t *testing.T) {
	t.Parallel()

	jobID := NewJobID()
	if jobID.IsNil() {
		t.Fatal("NewJobID returned nil ID")
	}
	if jobID.Prefix() != PrefixJob {
		t.Fatalf("got prefix %q, want %q", jobID.Prefix(), PrefixJob)
	}
	if !strings.HasPrefix(jobID.String(), "job_") {
		t.Fatalf("string form %q missing job_ prefix", jobID.String())
	}

	parsed, err := ParseJobID(jobID.String())
	if err != nil {
		t.Fatalf("ParseJobID: %v", err)
	}
	if parsed.String() != jobID.String() {
		t.Fatalf("roundtrip mismatch: %q != %q", parsed.String(), jobID.String())
	}
}

func TestParseRejectsWrongPrefix(t *testing.T) {
	t.Parallel()

	evt := NewEventID()
	if _, err := ParseJobID(evt.String()); err == nil {
		t.Fatal("ParseJobID accepted an event ID")
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "not-a-typeid"},
		{"bad suffix", "job_!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func TestTextMarshalRoundtrip(t *testing.T) {
	t.Parallel()

	orig := NewJobID()
	data, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var decoded ID
	if err := decoded.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if decoded.String() != orig.String() {
		t.Fatalf("roundtrip mismatch: %q != %q", decoded.String(), orig.String())
	}

	var nilID ID
	if err := nilID.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(nil): %v", err)
	}
	if !nilID.IsNil() {
		t.Fatal("empty text should decode to Nil")
	}
}

func TestScanAndValue(t *testing.T) {
	t.Parallel()

	orig := NewJobID()
	v, err := orig.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var scanned ID
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned.String() != orig.String() {
		t.Fatalf("scan mismatch: %q != %q", scanned.String(), orig.String())
	}

	var fromNull ID
	if err := fromNull.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !fromNull.IsNil() {
		t.Fatal("NULL should scan to Nil")
	}

	nilVal, err := Nil.Value()
	if err != nil {
		t.Fatalf("Nil.Value: %v", err)
	}
	if nilVal != nil {
		t.Fatalf("Nil.Value = %v, want nil", nilVal)
	}
}
