package attribute

// Set is an insertion-ordered collection of attributes with unique keys.
// Writing an existing key replaces its value in place, so the order signals
// were tagged in survives processing and export.
//
// A Set is not safe for concurrent mutation; each signal owns its Set and the
// ownership rules of the pipeline guarantee a single writer at a time.
type Set struct {
	kvs []KeyValue
}

// NewSet builds a Set from the given pairs, last write per key winning.
func NewSet(kvs ...KeyValue) *Set {
	s := &Set{kvs: make([]KeyValue, 0, len(kvs))}
	for _, kv := range kvs {
		s.Put(kv)
	}
	return s
}

// Put inserts or replaces the value for kv.Key.
func (s *Set) Put(kv KeyValue) {
	for i := range s.kvs {
		if s.kvs[i].Key == kv.Key {
			s.kvs[i].Value = kv.Value
			return
		}
	}
	s.kvs = append(s.kvs, kv)
}

// PutAll inserts or replaces every pair in order.
func (s *Set) PutAll(kvs ...KeyValue) {
	for _, kv := range kvs {
		s.Put(kv)
	}
}

// Get returns the value for key and whether it is present.
func (s *Set) Get(key string) (Value, bool) {
	for i := range s.kvs {
		if s.kvs[i].Key == key {
			return s.kvs[i].Value, true
		}
	}
	return Value{}, false
}

// Len returns the number of entries.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.kvs)
}

// Range calls f for each entry in insertion order until f returns false.
func (s *Set) Range(f func(kv KeyValue) bool) {
	if s == nil {
		return
	}
	for i := range s.kvs {
		if !f(s.kvs[i]) {
			return
		}
	}
}

// Apply replaces each value with f(key, value). Attribute processors use it
// to rewrite string payloads without touching ordering.
func (s *Set) Apply(f func(key string, v Value) Value) {
	if s == nil {
		return
	}
	for i := range s.kvs {
		s.kvs[i].Value = f(s.kvs[i].Key, s.kvs[i].Value)
	}
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	if s == nil {
		return NewSet()
	}
	cp := &Set{kvs: make([]KeyValue, len(s.kvs))}
	copy(cp.kvs, s.kvs)
	return cp
}

// KeyValues exposes the backing entries in insertion order. The slice is
// owned by the Set; callers treat it as read-only.
func (s *Set) KeyValues() []KeyValue {
	if s == nil {
		return nil
	}
	return s.kvs
}
