package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/deepaksharma/signalpipe/attribute"
	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/metric"
	"github.com/deepaksharma/signalpipe/trace"
)

// Truncate caps string attribute values and log bodies at a maximum rune
// count. It belongs after Redact in the chain: the cut point is adjusted so
// a redaction placeholder is dropped whole rather than clipped mid-token.
type Truncate struct {
	max int
}

// NewTruncate returns a truncator capping values at max runes. A max of
// zero or less disables truncation.
func NewTruncate(max int) *Truncate {
	return &Truncate{max: max}
}

func (t *Truncate) Name() string { return "truncate" }

func (t *Truncate) cut(s string) string {
	if t.max <= 0 || utf8.RuneCountInString(s) <= t.max {
		return s
	}
	idx := 0
	for i := 0; i < t.max; i++ {
		_, size := utf8.DecodeRuneInString(s[idx:])
		idx += size
	}
	for _, ph := range redactionPlaceholders {
		from := 0
		for {
			i := strings.Index(s[from:], ph)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(ph)
			if start < idx && idx < end {
				idx = start
			}
			from = end
		}
	}
	return s[:idx]
}

func (t *Truncate) cutValue(v attribute.Value) attribute.Value {
	switch v.Kind() {
	case attribute.KindString:
		if cut := t.cut(v.Str()); cut != v.Str() {
			return attribute.StringValue(cut)
		}
		return v
	case attribute.KindStringSlice:
		elems := v.StringSlice()
		out := make([]string, len(elems))
		for i, e := range elems {
			out[i] = t.cut(e)
		}
		return attribute.StringSliceValue(out)
	default:
		return v
	}
}

func (t *Truncate) cutSet(set *attribute.Set) {
	set.Apply(func(_ string, v attribute.Value) attribute.Value {
		return t.cutValue(v)
	})
}

func (t *Truncate) ProcessSpan(s *trace.Span) bool {
	t.cutSet(s.Attributes())
	for _, ev := range s.Events() {
		t.cutSet(ev.Attributes)
	}
	return true
}

func (t *Truncate) ProcessMetric(p *metric.Point) bool {
	t.cutSet(p.Attributes)
	return true
}

func (t *Truncate) ProcessLog(r *logs.Record) bool {
	r.Body = t.cut(r.Body)
	t.cutSet(r.Attributes)
	return true
}
