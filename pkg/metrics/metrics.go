// Package metrics records pipeline counters and stage durations behind a
// small interface so the orchestrator never depends on a vendor SDK.
package metrics

import (
	"sort"
	"strings"
	"time"
)

// Metric names emitted by the pipeline.
const (
	WorkflowStage         = "workflow.stage"
	WorkflowStageDuration = "workflow.stage.duration"
	WorkflowFinished      = "workflow.finished"
)

// Labels are low-cardinality dimensions attached to a metric.
type Labels map[string]string

// Tags renders labels as sorted "key:value" strings.
func (l Labels) Tags() []string {
	if len(l) == 0 {
		return nil
	}
	tags := make([]string, 0, len(l))
	for k, v := range l {
		if v == "" {
			v = "unknown"
		}
		tags = append(tags, k+":"+v)
	}
	sort.Strings(tags)
	return tags
}

// Key is a stable identity for a metric name plus labels.
func Key(name string, labels Labels) string {
	return name + "|" + strings.Join(labels.Tags(), ",")
}

// Recorder is implemented by every metrics backend. Implementations must be
// safe for concurrent use.
type Recorder interface {
	IncCounter(name string, labels Labels)
	ObserveDuration(name string, d time.Duration, labels Labels)
	Close() error
}

// Noop discards everything.
type Noop struct{}

func (Noop) IncCounter(string, Labels) {}

func (Noop) ObserveDuration(string, time.Duration, Labels) {}

func (Noop) Close() error { return nil }

var _ Recorder = Noop{}
