package telemetry

import (
	"context"
	"maps"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys. Kept low-cardinality on purpose; plan and item ids
// never become labels.
const (
	ProfilingLabelAgent     = "agent_type"
	ProfilingLabelAction    = "action"
	ProfilingLabelMode      = "mode"
	ProfilingLabelOperation = "operation"
)

// MaxLabelValueLength caps label values before they reach Pyroscope.
const MaxLabelValueLength = 128

// highCardinalityLabels are keys that would explode series counts and are
// silently dropped.
var highCardinalityLabels = map[string]bool{
	"plan_id":    true,
	"item_id":    true,
	"request_id": true,
	"trace_id":   true,
	"span_id":    true,
}

// WithProfilingLabels runs fn with the labels attached to its CPU samples,
// so agent runs can be sliced apart in the Pyroscope UI. With no labels it
// just calls fn.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// RunLabels builds the standard label set for one agent run.
func RunLabels(agentType, action, mode string) map[string]string {
	labels := make(map[string]string, 3)
	if agentType != "" {
		labels[ProfilingLabelAgent] = agentType
	}
	if action != "" {
		labels[ProfilingLabelAction] = action
	}
	if mode != "" {
		labels[ProfilingLabelMode] = mode
	}
	return labels
}

// OperationLabels builds labels for a named operation plus any extras.
func OperationLabels(operation string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	labels[ProfilingLabelOperation] = operation
	maps.Copy(labels, extra)
	return labels
}

// sanitizeLabels drops empty and high-cardinality entries, truncates long
// values and returns a deterministic key-value slice.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if key == "" || value == "" {
			continue
		}
		if highCardinalityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		key = sanitizeLabelKey(key)
		if key == "" {
			continue
		}
		pairs = append(pairs, key, value)
	}
	return pairs
}

// sanitizeLabelKey normalizes keys to snake_case alphanumerics.
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")

	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			out = append(out, c)
		}
	}
	return string(out)
}
