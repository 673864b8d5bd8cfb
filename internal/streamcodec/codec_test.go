package streamcodec

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/msf-usa/chatd/internal/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	meta := Metadata{
		Kind:     KindFinal,
		ThreadID: "t1",
		Citations: []domain.Citation{
			{Number: 1, Title: "Guide", URL: "https://a"},
		},
	}
	block, err := Encode(meta)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var visible bytes.Buffer
	var decoded []Metadata
	dec := NewDecoder(&visible, func(payload json.RawMessage) error {
		var m Metadata
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		decoded = append(decoded, m)
		return nil
	})

	stream := append([]byte("hello "), block...)
	stream = append(stream, []byte("world")...)
	if _, err := dec.Write(stream); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := dec.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if visible.String() != "hello world" {
		t.Fatalf("visible text wrong: %q", visible.String())
	}
	if len(decoded) != 1 || decoded[0].ThreadID != "t1" || len(decoded[0].Citations) != 1 {
		t.Fatalf("metadata not recovered: %+v", decoded)
	}
}

func TestDecoderSentinelSplitAcrossChunks(t *testing.T) {
	block, err := Encode(Metadata{Kind: KindProgress, Message: "working"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	stream := append([]byte("before"), block...)
	stream = append(stream, []byte("after")...)

	var visible bytes.Buffer
	var got []string
	dec := NewDecoder(&visible, func(payload json.RawMessage) error {
		var m Metadata
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		got = append(got, m.Message)
		return nil
	})

	// One byte at a time: every sentinel boundary is exercised.
	for i := 0; i < len(stream); i++ {
		if _, err := dec.Write(stream[i : i+1]); err != nil {
			t.Fatalf("Write failed at byte %d: %v", i, err)
		}
	}
	if err := dec.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if visible.String() != "beforeafter" {
		t.Fatalf("sentinel bytes leaked into visible text: %q", visible.String())
	}
	if len(got) != 1 || got[0] != "working" {
		t.Fatalf("metadata lost: %+v", got)
	}
}

func TestDecoderPlainTextPassthrough(t *testing.T) {
	var visible bytes.Buffer
	dec := NewDecoder(&visible, nil)
	if _, err := dec.Write([]byte("nothing special here")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := dec.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if visible.String() != "nothing special here" {
		t.Fatalf("passthrough corrupted: %q", visible.String())
	}
}

func TestDecoderTruncatedBlockFails(t *testing.T) {
	dec := NewDecoder(&bytes.Buffer{}, nil)
	if _, err := dec.Write([]byte(StartSentinel + `{"kind":"final"`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := dec.Flush(); err == nil {
		t.Fatalf("expected error for stream ending inside a metadata block")
	}
}
