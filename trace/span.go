package trace

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/deepaksharma/signalpipe/attribute"
)

// Kind describes the role a span plays in a request path.
type Kind int

const (
	KindInternal Kind = iota
	KindServer
	KindClient
	KindProducer
	KindConsumer
)

func (k Kind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindProducer:
		return "producer"
	case KindConsumer:
		return "consumer"
	default:
		return "internal"
	}
}

// StatusCode is the outcome recorded on a span.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// Status pairs an outcome code with an optional message.
type Status struct {
	Code    StatusCode
	Message string
}

// Event is a timestamped annotation attached to a span.
type Event struct {
	Name       string
	Time       time.Time
	Attributes *attribute.Set
}

// Scope names the instrumentation that produced a span.
type Scope struct {
	Name    string
	Version string
}

// Span is a single timed operation. It is mutable until End is called,
// after which every mutator is a silent no-op. All methods are safe for
// concurrent use, though a span is normally owned by one goroutine.
//
// Spans dropped by the sampler still measure time and accept attributes so
// calling code needs no branches, but they are discarded on End.
type Span struct {
	scope    Scope
	sc       SpanContext
	parent   SpanID
	recorded bool
	onEnd    func(*Span)

	ended atomic.Bool

	mu     sync.Mutex
	name   string
	kind   Kind
	start  time.Time
	end    time.Time
	attrs  *attribute.Set
	events []Event
	status Status
}

// Scope returns the instrumentation scope that created the span.
func (s *Span) Scope() Scope { return s.scope }

// Context returns the span's propagatable identity.
func (s *Span) Context() SpanContext { return s.sc }

// ParentSpanID returns the parent span id, zero for a root span.
func (s *Span) ParentSpanID() SpanID { return s.parent }

// IsRecording reports whether the span survived sampling and will be
// exported when ended.
func (s *Span) IsRecording() bool { return s.recorded && !s.ended.Load() }

// Name returns the operation name.
func (s *Span) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetName renames the operation.
func (s *Span) SetName(name string) {
	if s.ended.Load() {
		return
	}
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// SpanKind returns the span kind.
func (s *Span) SpanKind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// StartTime returns when the span began.
func (s *Span) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start
}

// EndTime returns when the span ended, zero while still open.
func (s *Span) EndTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end
}

// SetAttributes upserts the given attributes on the span.
func (s *Span) SetAttributes(kvs ...attribute.KeyValue) {
	if s.ended.Load() {
		return
	}
	s.mu.Lock()
	s.attrs.PutAll(kvs...)
	s.mu.Unlock()
}

// Attributes returns the span's attribute set. Processors mutate it in
// place; producers should use SetAttributes.
func (s *Span) Attributes() *attribute.Set {
	return s.attrs
}

// AddEvent appends a timestamped annotation.
func (s *Span) AddEvent(name string, kvs ...attribute.KeyValue) {
	if s.ended.Load() {
		return
	}
	set := &attribute.Set{}
	set.PutAll(kvs...)
	s.mu.Lock()
	s.events = append(s.events, Event{Name: name, Time: time.Now(), Attributes: set})
	s.mu.Unlock()
}

// Events returns the annotations recorded so far.
func (s *Span) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// SetStatus records the span outcome. A later call overwrites an earlier
// one.
func (s *Span) SetStatus(code StatusCode, message string) {
	if s.ended.Load() {
		return
	}
	s.mu.Lock()
	s.status = Status{Code: code, Message: message}
	s.mu.Unlock()
}

// Status returns the recorded outcome.
func (s *Span) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RecordException marks the span failed and attaches the error as an
// exception event.
func (s *Span) RecordException(err error) {
	if err == nil || s.ended.Load() {
		return
	}
	s.AddEvent("exception",
		attribute.String("exception.type", fmt.Sprintf("%T", err)),
		attribute.String("exception.message", err.Error()),
	)
	s.SetStatus(StatusError, err.Error())
}

// End closes the span at the current time.
func (s *Span) End() {
	s.EndAt(time.Now())
}

// EndAt closes the span at the given time. The first call wins; later
// calls are no-ops. An end time before the start time is clamped to the
// start time so duration never goes negative. A recorded span is handed
// to the pipeline exactly once.
func (s *Span) EndAt(t time.Time) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	if t.Before(s.start) {
		t = s.start
	}
	s.end = t
	s.mu.Unlock()
	if s.recorded && s.onEnd != nil {
		s.onEnd(s)
	}
}

// Duration returns end minus start, zero while the span is open.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		return 0
	}
	return s.end.Sub(s.start)
}
