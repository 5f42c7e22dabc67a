package metrics

import (
	"time"

	obserrors "github.com/hredge/portal/internal/observability/errors"
	"github.com/hredge/portal/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultStale   = "stale"
	ResultNoop    = "noop"
)

// ProfileFetchMetric captures one completed profile fetch.
type ProfileFetchMetric struct {
	Result   string
	Duration time.Duration
	Err      error
}

// EmitProfileFetch emits profile resolution metrics.
func EmitProfileFetch(sink statsd.Sink, in ProfileFetchMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": in.Result}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("profile.fetch", 1, tags)
	if in.Duration > 0 {
		sink.Timing("profile.fetch.duration", in.Duration, CloneTags(tags))
	}
}

// GuardMetric captures a single guard evaluation.
type GuardMetric struct {
	Route    string
	Decision string
	Reason   string
	// Waited is how long the guard held the request for a pending resolution.
	Waited time.Duration
}

// EmitGuardDecision emits route guard metrics.
func EmitGuardDecision(sink statsd.Sink, in GuardMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"route":    in.Route,
		"decision": in.Decision,
	}
	if in.Reason != "" {
		tags["reason"] = in.Reason
	}

	sink.Count("guard.decision", 1, tags)
	if in.Waited > 0 {
		sink.Timing("guard.pending_wait", in.Waited, CloneTags(tags))
	}
}

// BackendCallMetric captures one outbound backend request.
type BackendCallMetric struct {
	Endpoint string
	Status   int
	Duration time.Duration
	Err      error
}

// EmitBackendCall emits backend client metrics.
func EmitBackendCall(sink statsd.Sink, in BackendCallMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	if in.Err != nil || in.Status >= 400 {
		result = ResultError
	}
	tags := map[string]string{
		"endpoint": in.Endpoint,
		"result":   result,
	}
	if in.Status > 0 {
		tags["status_class"] = statusClass(in.Status)
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("backend.request", 1, tags)
	if in.Duration > 0 {
		sink.Timing("backend.request.duration", in.Duration, CloneTags(tags))
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
