package processor

import (
	"github.com/deepaksharma/signalpipe/attribute"
	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/metric"
	"github.com/deepaksharma/signalpipe/trace"
)

// Enrich stamps a fixed attribute set onto every signal, upserting over
// producer-set values of the same key.
type Enrich struct {
	attrs []attribute.KeyValue
}

// NewEnrich returns an enricher adding the given attributes.
func NewEnrich(kvs ...attribute.KeyValue) *Enrich {
	return &Enrich{attrs: kvs}
}

func (e *Enrich) Name() string { return "enrich" }

func (e *Enrich) ProcessSpan(s *trace.Span) bool {
	s.Attributes().PutAll(e.attrs...)
	return true
}

func (e *Enrich) ProcessMetric(p *metric.Point) bool {
	p.Attributes.PutAll(e.attrs...)
	return true
}

func (e *Enrich) ProcessLog(r *logs.Record) bool {
	r.Attributes.PutAll(e.attrs...)
	return true
}
