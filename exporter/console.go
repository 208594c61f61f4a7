package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/metric"
	"github.com/deepaksharma/signalpipe/trace"
)

// Console writes one line per signal to a writer, for local development
// and examples. It implements all three exporter interfaces.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a console exporter writing to w, or stdout when w is
// nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func (c *Console) ExportSpans(_ context.Context, spans []*trace.Span) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range spans {
		_, err := fmt.Fprintf(c.w, "span %s trace=%s span=%s kind=%s dur=%s status=%s attrs=%d\n",
			s.Name(), s.Context().TraceID, s.Context().SpanID, s.SpanKind(),
			s.Duration(), s.Status().Code, s.Attributes().Len())
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) ExportMetrics(_ context.Context, points []metric.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range points {
		var err error
		switch p.Kind {
		case metric.KindHistogram:
			_, err = fmt.Fprintf(c.w, "metric %s/%s %s count=%d sum=%g\n",
				p.Meter, p.Instrument, p.Kind, p.Count, p.Sum)
		default:
			_, err = fmt.Fprintf(c.w, "metric %s/%s %s value=%g\n",
				p.Meter, p.Instrument, p.Kind, p.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) ExportLogs(_ context.Context, records []*logs.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		line := fmt.Sprintf("log %s %s", r.Severity, r.Body)
		if r.TraceID.IsValid() {
			line += fmt.Sprintf(" trace=%s span=%s", r.TraceID, r.SpanID)
		}
		if _, err := fmt.Fprintln(c.w, line); err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) Shutdown(context.Context) error { return nil }
