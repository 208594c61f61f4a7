package processor

import (
	"fmt"
	"regexp"

	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/metric"
	"github.com/deepaksharma/signalpipe/trace"
)

// ExcludeOperations vetoes spans and metric points whose operation name
// matches any pattern, dropping health checks and other noise before it is
// buffered. Log records carry no operation name and always pass.
type ExcludeOperations struct {
	patterns []*regexp.Regexp
}

// NewExcludeOperations compiles the given patterns. Spans match on span
// name, metric points on instrument name.
func NewExcludeOperations(patterns ...string) (*ExcludeOperations, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		res = append(res, re)
	}
	return &ExcludeOperations{patterns: res}, nil
}

func (e *ExcludeOperations) Name() string { return "exclude_operations" }

func (e *ExcludeOperations) matches(name string) bool {
	for _, re := range e.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (e *ExcludeOperations) ProcessSpan(s *trace.Span) bool {
	return !e.matches(s.Name())
}

func (e *ExcludeOperations) ProcessMetric(p *metric.Point) bool {
	return !e.matches(p.Instrument)
}

func (e *ExcludeOperations) ProcessLog(*logs.Record) bool { return true }
