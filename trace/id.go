package trace

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
)

// TraceID identifies a trace: a 128-bit value shared by every span in one
// causal chain.
type TraceID [16]byte

// SpanID identifies a single span within a trace.
type SpanID [8]byte

// IsValid reports whether the id is non-zero.
func (t TraceID) IsValid() bool { return t != TraceID{} }

// String returns the lowercase hex form.
func (t TraceID) String() string { return hex.EncodeToString(t[:]) }

// IsValid reports whether the id is non-zero.
func (s SpanID) IsValid() bool { return s != SpanID{} }

// String returns the lowercase hex form.
func (s SpanID) String() string { return hex.EncodeToString(s[:]) }

// TraceIDFromHex parses a 32-character hex trace id.
func TraceIDFromHex(h string) (TraceID, error) {
	var id TraceID
	if len(h) != 32 {
		return id, fmt.Errorf("trace id must be 32 hex characters, got %d", len(h))
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return id, fmt.Errorf("invalid trace id %q: %w", h, err)
	}
	copy(id[:], b)
	if !id.IsValid() {
		return TraceID{}, fmt.Errorf("trace id is all zeros")
	}
	return id, nil
}

// SpanIDFromHex parses a 16-character hex span id.
func SpanIDFromHex(h string) (SpanID, error) {
	var id SpanID
	if len(h) != 16 {
		return id, fmt.Errorf("span id must be 16 hex characters, got %d", len(h))
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return id, fmt.Errorf("invalid span id %q: %w", h, err)
	}
	copy(id[:], b)
	if !id.IsValid() {
		return SpanID{}, fmt.Errorf("span id is all zeros")
	}
	return id, nil
}

// NewTraceID returns a random, valid trace id.
func NewTraceID() TraceID {
	var id TraceID
	for !id.IsValid() {
		binary.BigEndian.PutUint64(id[:8], rand.Uint64())
		binary.BigEndian.PutUint64(id[8:], rand.Uint64())
	}
	return id
}

// NewSpanID returns a random, valid span id.
func NewSpanID() SpanID {
	var id SpanID
	for !id.IsValid() {
		binary.BigEndian.PutUint64(id[:], rand.Uint64())
	}
	return id
}
