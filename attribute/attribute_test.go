package attribute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueKinds(t *testing.T) {
	assert.Equal(t, KindString, StringValue("x").Kind())
	assert.Equal(t, "x", StringValue("x").Str())

	assert.Equal(t, KindInt64, Int64Value(-7).Kind())
	assert.Equal(t, int64(-7), Int64Value(-7).Int64())

	assert.Equal(t, KindFloat64, Float64Value(2.5).Kind())
	assert.Equal(t, 2.5, Float64Value(2.5).Float64())

	assert.Equal(t, KindBool, BoolValue(true).Kind())
	assert.True(t, BoolValue(true).Bool())
	assert.False(t, BoolValue(false).Bool())

	v := StringSliceValue([]string{"a", "b"})
	assert.Equal(t, KindStringSlice, v.Kind())
	assert.Equal(t, []string{"a", "b"}, v.StringSlice())
}

func TestStringSliceValueCopies(t *testing.T) {
	src := []string{"a", "b"}
	v := StringSliceValue(src)
	src[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, v.StringSlice())
}

func TestAsString(t *testing.T) {
	assert.Equal(t, "hello", StringValue("hello").AsString())
	assert.Equal(t, "42", Int64Value(42).AsString())
	assert.Equal(t, "1.5", Float64Value(1.5).AsString())
	assert.Equal(t, "true", BoolValue(true).AsString())
	assert.Equal(t, "[a,b]", StringSliceValue([]string{"a", "b"}).AsString())
	assert.Equal(t, "", Value{}.AsString())
}

func TestValueEqual(t *testing.T) {
	assert.True(t, StringValue("a").Equal(StringValue("a")))
	assert.False(t, StringValue("a").Equal(StringValue("b")))
	assert.False(t, StringValue("1").Equal(Int64Value(1)))
	assert.True(t, StringSliceValue([]string{"a"}).Equal(StringSliceValue([]string{"a"})))
	assert.False(t, StringSliceValue([]string{"a"}).Equal(StringSliceValue([]string{"a", "b"})))
	assert.True(t, Float64Value(0.25).Equal(Float64Value(0.25)))
}

func TestSetPutReplacesInPlace(t *testing.T) {
	s := NewSet(String("a", "1"), String("b", "2"))
	s.Put(String("a", "updated"))

	assert.Equal(t, 2, s.Len())
	got, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "updated", got.Str())

	// Replacement keeps the original position.
	kvs := s.KeyValues()
	assert.Equal(t, "a", kvs[0].Key)
	assert.Equal(t, "b", kvs[1].Key)
}

func TestSetRangeOrder(t *testing.T) {
	s := NewSet(String("first", "1"), Int("second", 2), Bool("third", true))

	var keys []string
	s.Range(func(kv KeyValue) bool {
		keys = append(keys, kv.Key)
		return true
	})
	assert.Equal(t, []string{"first", "second", "third"}, keys)
}

func TestSetApply(t *testing.T) {
	s := NewSet(String("a", "keep"), Int("n", 1))
	s.Apply(func(key string, v Value) Value {
		if v.Kind() == KindString {
			return StringValue("rewritten")
		}
		return v
	})

	got, _ := s.Get("a")
	assert.Equal(t, "rewritten", got.Str())
	n, _ := s.Get("n")
	assert.Equal(t, int64(1), n.Int64())
}

func TestSetClone(t *testing.T) {
	s := NewSet(String("a", "1"))
	cp := s.Clone()
	cp.Put(String("a", "2"))

	orig, _ := s.Get("a")
	assert.Equal(t, "1", orig.Str())
}

func TestNilSetSafe(t *testing.T) {
	var s *Set
	assert.Equal(t, 0, s.Len())
	s.Range(func(KeyValue) bool { t.Fatal("must not be called"); return false })
	assert.Nil(t, s.KeyValues())
}
