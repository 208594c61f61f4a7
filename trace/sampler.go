package trace

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// SampleParams carries what a sampler may inspect when deciding whether a
// root span is recorded. Child spans never reach the sampler; they inherit
// the parent decision so a trace is kept or dropped whole.
type SampleParams struct {
	TraceID TraceID
	Name    string
	Kind    Kind
}

// Sampler decides at root-span creation whether a trace is recorded.
type Sampler interface {
	ShouldSample(p SampleParams) bool
	Description() string
}

type alwaysOnSampler struct{}

func (alwaysOnSampler) ShouldSample(SampleParams) bool { return true }
func (alwaysOnSampler) Description() string            { return "always_on" }

// AlwaysOn returns a sampler that records every trace.
func AlwaysOn() Sampler { return alwaysOnSampler{} }

type alwaysOffSampler struct{}

func (alwaysOffSampler) ShouldSample(SampleParams) bool { return false }
func (alwaysOffSampler) Description() string            { return "always_off" }

// AlwaysOff returns a sampler that records no traces.
func AlwaysOff() Sampler { return alwaysOffSampler{} }

type ratioSampler struct {
	ratio     float64
	threshold uint64
}

// TraceIDRatio returns a sampler that records the given fraction of traces.
// The decision hashes only the trace id, so every process holding the same
// id reaches the same verdict. Ratios outside [0, 1] are clamped.
func TraceIDRatio(ratio float64) Sampler {
	if ratio <= 0 {
		return alwaysOffSampler{}
	}
	if ratio >= 1 {
		return alwaysOnSampler{}
	}
	return ratioSampler{
		ratio:     ratio,
		threshold: uint64(ratio * math.MaxUint64),
	}
}

func (s ratioSampler) ShouldSample(p SampleParams) bool {
	return xxhash.Sum64(p.TraceID[:]) < s.threshold
}

func (s ratioSampler) Description() string {
	return fmt.Sprintf("traceid_ratio{%g}", s.ratio)
}
