package signal

import (
	"testing"
	"time"

	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/job"
)

func TestCodecRoundtrip(t *testing.T) {
	t.Parallel()

	env := &Envelope{
		JobID:      id.NewJobID(),
		Kind:       job.KindFind,
		Attempt:    2,
		SignaledAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}

	for _, name := range []string{CodecNameJSON, CodecNameMsgpack} {
		t.Run(name, func(t *testing.T) {
			c := GetCodec(name)
			if c.Name() != name {
				t.Fatalf("codec name = %q, want %q", c.Name(), name)
			}

			data, err := c.Encode(env)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := c.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.JobID.String() != env.JobID.String() || got.Kind != env.Kind || got.Attempt != env.Attempt {
				t.Fatalf("roundtrip mismatch: %+v != %+v", got, env)
			}
			if !got.SignaledAt.Equal(env.SignaledAt) {
				t.Fatalf("SignaledAt = %v, want %v", got.SignaledAt, env.SignaledAt)
			}
		})
	}
}

func TestGetCodecDefaultsToJSON(t *testing.T) {
	t.Parallel()

	if GetCodec("protobuf").Name() != CodecNameJSON {
		t.Fatal("unknown codec name should fall back to JSON")
	}
	if GetCodec("").Name() != CodecNameJSON {
		t.Fatal("empty codec name should fall back to JSON")
	}
}

func TestCodecDecodeErrors(t *testing.T) {
	t.Parallel()

	if _, err := (&JSONCodec{}).Decode([]byte("{not json")); err == nil {
		t.Fatal("JSON decode accepted malformed input")
	}
	if _, err := (&MsgpackCodec{}).Decode([]byte{0xc1}); err == nil {
		t.Fatal("msgpack decode accepted reserved byte")
	}
}
