package processor

import (
	"regexp"

	"github.com/deepaksharma/signalpipe/attribute"
	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/metric"
	"github.com/deepaksharma/signalpipe/trace"
)

// Placeholders substituted for matched PII. They contain no digits or "@",
// so running redaction twice never double-masks.
const (
	PlaceholderEmail = "[REDACTED-EMAIL]"
	PlaceholderCard  = "[REDACTED-CARD]"
	PlaceholderPhone = "[REDACTED-PHONE]"
)

var redactionPlaceholders = []string{PlaceholderEmail, PlaceholderCard, PlaceholderPhone}

type redactRule struct {
	re          *regexp.Regexp
	placeholder string
}

// Card runs before phone: a card number with separators would otherwise
// partially match the phone pattern.
var defaultRedactRules = []redactRule{
	{regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), PlaceholderEmail},
	{regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`), PlaceholderCard},
	{regexp.MustCompile(`\+\d{7,15}\b|\b\d{3}[ .-]\d{3,4}[ .-]\d{4}\b`), PlaceholderPhone},
}

// Redact masks email addresses, payment card numbers, and phone numbers in
// string attribute values and log bodies. Matches are replaced with fixed
// placeholders, so value lengths change but keys survive.
type Redact struct {
	rules []redactRule
}

// NewRedact returns a redactor with the built-in rule set.
func NewRedact() *Redact {
	return &Redact{rules: defaultRedactRules}
}

func (r *Redact) Name() string { return "redact" }

func (r *Redact) scrubString(s string) string {
	for _, rule := range r.rules {
		s = rule.re.ReplaceAllString(s, rule.placeholder)
	}
	return s
}

func (r *Redact) scrubValue(v attribute.Value) attribute.Value {
	switch v.Kind() {
	case attribute.KindString:
		return attribute.StringValue(r.scrubString(v.Str()))
	case attribute.KindStringSlice:
		elems := v.StringSlice()
		out := make([]string, len(elems))
		for i, e := range elems {
			out[i] = r.scrubString(e)
		}
		return attribute.StringSliceValue(out)
	default:
		return v
	}
}

func (r *Redact) scrubSet(set *attribute.Set) {
	set.Apply(func(_ string, v attribute.Value) attribute.Value {
		return r.scrubValue(v)
	})
}

func (r *Redact) ProcessSpan(s *trace.Span) bool {
	r.scrubSet(s.Attributes())
	for _, ev := range s.Events() {
		r.scrubSet(ev.Attributes)
	}
	return true
}

func (r *Redact) ProcessMetric(p *metric.Point) bool {
	r.scrubSet(p.Attributes)
	return true
}

func (r *Redact) ProcessLog(rec *logs.Record) bool {
	rec.Body = r.scrubString(rec.Body)
	r.scrubSet(rec.Attributes)
	return true
}
