package trace

// SpanContext is the propagatable identity of a span: trace id, span id,
// the sampling decision, and any baggage riding along. Values are immutable
// once created; derive a new context instead of mutating.
type SpanContext struct {
	TraceID TraceID
	SpanID  SpanID
	Sampled bool
	Baggage Baggage
}

// IsValid reports whether both ids are non-zero.
func (sc SpanContext) IsValid() bool {
	return sc.TraceID.IsValid() && sc.SpanID.IsValid()
}

// BaggageEntry is one key/value pair carried across process boundaries.
type BaggageEntry struct {
	Key   string
	Value string
}

// Baggage is an ordered list of entries with unique keys. The zero value is
// an empty baggage. Mutating methods return a copy; existing values are
// never changed in place so a SpanContext can be shared freely.
type Baggage []BaggageEntry

// Get returns the value for key and whether it is present.
func (b Baggage) Get(key string) (string, bool) {
	for _, e := range b {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// With returns a new Baggage with key set to value. An existing entry is
// replaced in place, preserving order; a new key is appended.
func (b Baggage) With(key, value string) Baggage {
	out := make(Baggage, len(b), len(b)+1)
	copy(out, b)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, BaggageEntry{Key: key, Value: value})
}

// Len returns the number of entries.
func (b Baggage) Len() int { return len(b) }
