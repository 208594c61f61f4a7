// Package resource describes the process producing telemetry. A Resource is
// built once at pipeline construction and shared read-only by every exported
// batch.
package resource

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"
	conventions "go.opentelemetry.io/collector/semconv/v1.27.0"

	"github.com/deepaksharma/signalpipe/attribute"
)

// envResourceAttributes is the standard comma-separated k=v list merged into
// every detected resource.
const envResourceAttributes = "OTEL_RESOURCE_ATTRIBUTES"

const (
	sdkName     = "signalpipe"
	sdkLanguage = "go"
	sdkVersion  = "0.1.0"
)

// Resource is an immutable set of identifying attributes.
type Resource struct {
	attrs *attribute.Set
}

// Options configure resource detection.
type Options struct {
	// ServiceName is required; empty falls back to "unknown_service".
	ServiceName string
	// ServiceVersion is optional.
	ServiceVersion string
	// Environment fills deployment.environment when set.
	Environment string
	// Attributes are merged last and win over detected values.
	Attributes []attribute.KeyValue
	// DisableHostDetection skips host.name / process.pid / os.type lookup.
	DisableHostDetection bool
}

// New detects process identity and merges the configured attributes on top.
// Detection order: SDK identity, host facts, OTEL_RESOURCE_ATTRIBUTES, then
// explicit options, so explicit configuration always wins.
func New(opts Options) *Resource {
	set := attribute.NewSet(
		attribute.String(conventions.AttributeTelemetrySDKName, sdkName),
		attribute.String(conventions.AttributeTelemetrySDKLanguage, sdkLanguage),
		attribute.String(conventions.AttributeTelemetrySDKVersion, sdkVersion),
	)

	if !opts.DisableHostDetection {
		if host, err := os.Hostname(); err == nil && host != "" {
			set.Put(attribute.String(conventions.AttributeHostName, host))
		}
		set.Put(attribute.String(conventions.AttributeOSType, runtime.GOOS))
		set.Put(attribute.Int(conventions.AttributeProcessPID, os.Getpid()))
	}

	for _, kv := range parseEnvAttributes(os.Getenv(envResourceAttributes)) {
		set.Put(kv)
	}

	name := opts.ServiceName
	if name == "" {
		name = "unknown_service"
	}
	set.Put(attribute.String(conventions.AttributeServiceName, name))
	if opts.ServiceVersion != "" {
		set.Put(attribute.String(conventions.AttributeServiceVersion, opts.ServiceVersion))
	}
	if opts.Environment != "" {
		set.Put(attribute.String(conventions.AttributeDeploymentEnvironment, opts.Environment))
	}
	if _, ok := set.Get(conventions.AttributeServiceInstanceID); !ok {
		set.Put(attribute.String(conventions.AttributeServiceInstanceID, uuid.NewString()))
	}

	set.PutAll(opts.Attributes...)

	return &Resource{attrs: set}
}

// Empty returns a resource with no attributes, useful in tests.
func Empty() *Resource {
	return &Resource{attrs: attribute.NewSet()}
}

// Attributes exposes the resource attributes. Callers must treat the set as
// read-only; the Resource is shared by reference across all workers.
func (r *Resource) Attributes() *attribute.Set {
	if r == nil {
		return nil
	}
	return r.attrs
}

// ServiceName returns the service.name attribute.
func (r *Resource) ServiceName() string {
	if r == nil {
		return ""
	}
	v, _ := r.attrs.Get(conventions.AttributeServiceName)
	return v.Str()
}

// String renders the resource for diagnostics.
func (r *Resource) String() string {
	if r == nil {
		return "resource{}"
	}
	parts := make([]string, 0, r.attrs.Len())
	r.attrs.Range(func(kv attribute.KeyValue) bool {
		parts = append(parts, kv.String())
		return true
	})
	return fmt.Sprintf("resource{%s}", strings.Join(parts, " "))
}

// parseEnvAttributes splits a comma-separated k=v list, ignoring malformed
// entries rather than failing startup for a cosmetic env var.
func parseEnvAttributes(raw string) []attribute.KeyValue {
	if raw == "" {
		return nil
	}
	var kvs []attribute.KeyValue
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if !ok || k == "" {
			continue
		}
		kvs = append(kvs, attribute.String(k, v))
	}
	return kvs
}
