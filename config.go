package signalpipe

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Export protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
	// ProtocolConsole prints batches to stdout instead of exporting,
	// for local development.
	ProtocolConsole = "console"
)

// Built-in processor names accepted in Config.Processors.
const (
	ProcessorRedact   = "redact"
	ProcessorTruncate = "truncate"
)

// Environment variables honored by ApplyEnv. Resource attributes
// (OTEL_RESOURCE_ATTRIBUTES) are read by the resource package directly.
const (
	envServiceName = "OTEL_SERVICE_NAME"
	envEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envProtocol    = "OTEL_EXPORTER_OTLP_PROTOCOL"
	envHeaders     = "OTEL_EXPORTER_OTLP_HEADERS"
	envSamplerArg  = "OTEL_TRACES_SAMPLER_ARG"
)

// Config is the whole configuration surface of the pipeline. Durations are
// strings so the struct round-trips through YAML; Validate parses them.
// Zero numeric fields fall back to defaults, negative values are rejected.
// Build from DefaultConfig rather than a bare literal, otherwise a zero
// SamplingRatio drops every trace.
type Config struct {
	// ServiceName identifies this process in every exported signal.
	// Empty falls back to "unknown_service".
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is optional.
	ServiceVersion string `yaml:"service_version"`

	// Environment fills deployment.environment when set.
	Environment string `yaml:"environment"`

	// ResourceAttributes are merged into the detected resource and win
	// over detected values.
	ResourceAttributes map[string]string `yaml:"resource_attributes"`

	// Endpoint is the collector address, host:port for grpc or a URL for
	// http. Required unless Protocol is "console".
	Endpoint string `yaml:"endpoint"`

	// Protocol selects the exporter: "grpc", "http", or "console".
	Protocol string `yaml:"protocol"`

	// Headers are added to every export request.
	Headers map[string]string `yaml:"headers"`

	// BearerToken, when set, authenticates exports with an
	// Authorization: Bearer header.
	BearerToken string `yaml:"bearer_token"`

	// Compression is "gzip" or "none".
	Compression string `yaml:"compression"`

	// Insecure uses plaintext instead of TLS.
	Insecure bool `yaml:"insecure"`

	// ExportTimeout bounds each export attempt. Default 30s.
	ExportTimeout string `yaml:"export_timeout"`

	// MaxBatchSize releases a batch as soon as this many signals are
	// buffered. Default 512.
	MaxBatchSize int `yaml:"max_batch_size"`

	// MaxBatchDelay releases a partial batch after this long. Default 5s.
	MaxBatchDelay string `yaml:"max_batch_delay"`

	// MaxQueueSize bounds each per-signal buffer; the newest signal is
	// dropped when full. Default 2048.
	MaxQueueSize int `yaml:"max_queue_size"`

	// MaxRetries bounds retry attempts after a failed export. Default 0,
	// DefaultConfig sets 3.
	MaxRetries int `yaml:"max_retries"`

	// MaxInFlight bounds concurrently outstanding export calls per
	// signal. Default 2.
	MaxInFlight int `yaml:"max_in_flight"`

	// SamplingRatio is the root-trace sampling probability in [0, 1].
	SamplingRatio float64 `yaml:"sampling_ratio"`

	// MetricInterval is the aggregation collection period. Default 30s.
	MetricInterval string `yaml:"metric_interval"`

	// Processors enables built-in attribute processors. Nil enables the
	// default set (redact, truncate); an explicit empty list disables
	// both. Chain order is fixed regardless of list order: redaction
	// always runs before truncation.
	Processors []string `yaml:"processors"`

	// MaxAttributeLength caps string attribute values in runes, applied
	// by the truncate processor. Default 4096.
	MaxAttributeLength int `yaml:"max_attribute_length"`

	// ExtraAttributes are stamped onto every signal before redaction.
	ExtraAttributes map[string]string `yaml:"extra_attributes"`

	// ExcludedOperations drops signals whose operation name matches any
	// of these patterns before buffering, typically health checks.
	ExcludedOperations []string `yaml:"excluded_operations"`

	// SpillPath enables the shutdown spill store at this file path.
	// Batches undeliverable before the shutdown deadline are persisted
	// there and re-exported on the next start.
	SpillPath string `yaml:"spill_path"`

	// SpillPurgeSchedule is a cron expression for purging spilled batches
	// older than SpillRetention. Empty disables scheduled purging.
	SpillPurgeSchedule string `yaml:"spill_purge_schedule"`

	// SpillRetention is how long spilled batches are kept. Default 24h.
	SpillRetention string `yaml:"spill_retention"`

	batchDelay     time.Duration
	exportTimeout  time.Duration
	metricInterval time.Duration
	spillRetention time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden:
// gRPC to a local collector, full sampling, redact+truncate processing.
func DefaultConfig() Config {
	return Config{
		Endpoint:           "localhost:4317",
		Protocol:           ProtocolGRPC,
		ExportTimeout:      "30s",
		MaxBatchSize:       512,
		MaxBatchDelay:      "5s",
		MaxQueueSize:       2048,
		MaxRetries:         3,
		MaxInFlight:        2,
		SamplingRatio:      1.0,
		MetricInterval:     "30s",
		Processors:         []string{ProcessorRedact, ProcessorTruncate},
		MaxAttributeLength: 4096,
		SpillRetention:     "24h",
	}
}

// LoadFile reads a YAML config file over DefaultConfig, so absent keys keep
// their defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the standard OTEL_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(envServiceName); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv(envEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv(envProtocol); v != "" {
		// OTEL_EXPORTER_OTLP_PROTOCOL names protobuf-over-HTTP "http/protobuf".
		if strings.HasPrefix(v, "http") {
			c.Protocol = ProtocolHTTP
		} else {
			c.Protocol = v
		}
	}
	if v := os.Getenv(envHeaders); v != "" {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		for _, pair := range strings.Split(v, ",") {
			k, val, ok := strings.Cut(pair, "=")
			k = strings.TrimSpace(k)
			if !ok || k == "" {
				continue
			}
			c.Headers[k] = strings.TrimSpace(val)
		}
	}
	if v := os.Getenv(envSamplerArg); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil {
			c.SamplingRatio = ratio
		}
	}
}

// Validate checks the configuration, fills defaults for zero fields, and
// parses duration strings. It must be called before the config is used.
func (c *Config) Validate() error {
	if c.Protocol == "" {
		c.Protocol = ProtocolGRPC
	}
	switch c.Protocol {
	case ProtocolGRPC, ProtocolHTTP:
		if c.Endpoint == "" {
			return fmt.Errorf("endpoint is required for %s export", c.Protocol)
		}
	case ProtocolConsole:
	default:
		return fmt.Errorf("unknown protocol %q (supported: grpc, http, console)", c.Protocol)
	}

	switch c.Compression {
	case "", "none", "gzip":
	default:
		return fmt.Errorf("unknown compression %q (supported: gzip, none)", c.Compression)
	}

	if c.MaxBatchSize < 0 {
		return fmt.Errorf("max_batch_size must not be negative, got %d", c.MaxBatchSize)
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 512
	}
	if c.MaxQueueSize < 0 {
		return fmt.Errorf("max_queue_size must not be negative, got %d", c.MaxQueueSize)
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = 2048
	}
	if c.MaxBatchSize > c.MaxQueueSize {
		return fmt.Errorf("max_batch_size %d exceeds max_queue_size %d", c.MaxBatchSize, c.MaxQueueSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("max_in_flight must not be negative, got %d", c.MaxInFlight)
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = 2
	}
	if c.MaxAttributeLength < 0 {
		return fmt.Errorf("max_attribute_length must not be negative, got %d", c.MaxAttributeLength)
	}
	if c.MaxAttributeLength == 0 {
		c.MaxAttributeLength = 4096
	}

	if c.SamplingRatio < 0 || c.SamplingRatio > 1 {
		return fmt.Errorf("sampling_ratio must be between 0 and 1, got %g", c.SamplingRatio)
	}

	var err error
	if c.batchDelay, err = parseDurationField("max_batch_delay", c.MaxBatchDelay, 5*time.Second); err != nil {
		return err
	}
	if c.exportTimeout, err = parseDurationField("export_timeout", c.ExportTimeout, 30*time.Second); err != nil {
		return err
	}
	if c.metricInterval, err = parseDurationField("metric_interval", c.MetricInterval, 30*time.Second); err != nil {
		return err
	}
	if c.spillRetention, err = parseDurationField("spill_retention", c.SpillRetention, 24*time.Hour); err != nil {
		return err
	}

	for _, name := range c.Processors {
		switch name {
		case ProcessorRedact, ProcessorTruncate:
		default:
			return fmt.Errorf("unknown processor %q (supported: redact, truncate)", name)
		}
	}

	for _, pattern := range c.ExcludedOperations {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid excluded_operations pattern %q: %w", pattern, err)
		}
	}

	if c.SpillPurgeSchedule != "" {
		if _, err := cron.ParseStandard(c.SpillPurgeSchedule); err != nil {
			return fmt.Errorf("invalid spill_purge_schedule %q: %w", c.SpillPurgeSchedule, err)
		}
	}

	return nil
}

func parseDurationField(field, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, raw)
	}
	return d, nil
}

// processorEnabled reports whether name is in the enabled list, treating a
// nil list as the default set.
func (c *Config) processorEnabled(name string) bool {
	if c.Processors == nil {
		return name == ProcessorRedact || name == ProcessorTruncate
	}
	for _, p := range c.Processors {
		if p == name {
			return true
		}
	}
	return false
}
