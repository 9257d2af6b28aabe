// Package datadog submits pipeline metrics to Datadog.
//
// Counters and duration samples are buffered in memory and submitted on a
// fixed interval and once more on Close, so long-running invocations produce
// a time series instead of a single spike at exit.
package datadog

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/ekaya-inc/ekaya-etl/pkg/metrics"
)

const (
	defaultFlushEvery = 60 * time.Second
	defaultPrefix     = "ekaya_etl."
)

// Options controls the Datadog backend.
type Options struct {
	// Prefix is prepended to every metric name. Defaults to "ekaya_etl.".
	Prefix string
	// Tags are attached to every series, e.g. "env:prod".
	Tags []string
	// FlushEvery defaults to 60s.
	FlushEvery time.Duration

	clock     clock.WithTicker
	submitter metricsSubmitter
}

// metricsSubmitter is the subset of *datadogV2.MetricsApi used here; tests
// replace it with a fake.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

type series struct {
	name string
	tags []string
}

// Backend implements metrics.Recorder.
type Backend struct {
	api    metricsSubmitter
	ctx    context.Context
	clock  clock.WithTicker
	logger *zap.Logger

	prefix     string
	baseTags   []string
	flushEvery time.Duration

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	counters  map[string]float64
	durations map[string][]float64
	meta      map[string]series
}

var _ metrics.Recorder = (*Backend)(nil)

// New builds a backend and starts its flush loop. Credentials come from the
// standard DD_API_KEY / DD_SITE environment variables read by the client.
func New(parent context.Context, opts Options, logger *zap.Logger) *Backend {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = defaultFlushEvery
	}
	if opts.clock == nil {
		opts.clock = clock.RealClock{}
	}

	ctx := dd.NewDefaultContext(parent)
	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        ctx,
		clock:      opts.clock,
		logger:     logger.Named("datadog"),
		prefix:     opts.Prefix,
		baseTags:   append([]string(nil), opts.Tags...),
		flushEvery: opts.FlushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		counters:   make(map[string]float64),
		durations:  make(map[string][]float64),
		meta:       make(map[string]series),
	}
	go b.loop()
	return b
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.clock.NewTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C():
			if err := b.Flush(); err != nil {
				b.logger.Warn("Failed to submit metrics", zap.Error(err))
			}
		case <-b.stopCh:
			return
		}
	}
}

// IncCounter adds one to the named counter.
func (b *Backend) IncCounter(name string, labels metrics.Labels) {
	key := metrics.Key(name, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.remember(key, name, labels)
	b.counters[key]++
}

// ObserveDuration buffers a duration sample in seconds.
func (b *Backend) ObserveDuration(name string, d time.Duration, labels metrics.Labels) {
	if d < 0 {
		return
	}
	key := metrics.Key(name, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.remember(key, name, labels)
	b.durations[key] = append(b.durations[key], d.Seconds())
}

// remember must be called with mu held.
func (b *Backend) remember(key, name string, labels metrics.Labels) {
	if _, ok := b.meta[key]; ok {
		return
	}
	b.meta[key] = series{name: name, tags: labels.Tags()}
}

// Flush submits everything buffered since the previous flush. Buffers are
// reset even when submission fails.
func (b *Backend) Flush() error {
	b.mu.Lock()
	counters, durations, meta := b.counters, b.durations, b.meta
	b.counters = make(map[string]float64)
	b.durations = make(map[string][]float64)
	b.meta = make(map[string]series)
	b.mu.Unlock()

	if len(counters) == 0 && len(durations) == 0 {
		return nil
	}

	payload := datadogV2.MetricPayload{
		Series: b.buildSeries(counters, durations, meta, b.clock.Now().Unix()),
	}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// Close stops the flush loop and submits what is left. Safe to call more
// than once.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
		err = b.Flush()
	})
	return err
}

func (b *Backend) buildSeries(counters map[string]float64, durations map[string][]float64, meta map[string]series, now int64) []datadogV2.MetricSeries {
	out := make([]datadogV2.MetricSeries, 0, len(counters)+4*len(durations))

	for key, v := range counters {
		m := meta[key]
		out = append(out, point(b.prefix+m.name, datadogV2.METRICINTAKETYPE_COUNT, v, b.tags(m.tags), now))
	}

	for key, samples := range durations {
		if len(samples) == 0 {
			continue
		}
		m := meta[key]
		sorted := append([]float64(nil), samples...)
		sort.Float64s(sorted)
		tags := b.tags(m.tags)
		name := b.prefix + m.name
		out = append(out,
			point(name+".p50", datadogV2.METRICINTAKETYPE_GAUGE, percentile(sorted, 0.50), tags, now),
			point(name+".p95", datadogV2.METRICINTAKETYPE_GAUGE, percentile(sorted, 0.95), tags, now),
			point(name+".max", datadogV2.METRICINTAKETYPE_GAUGE, sorted[len(sorted)-1], tags, now),
			point(name+".samples", datadogV2.METRICINTAKETYPE_GAUGE, float64(len(sorted)), tags, now),
		)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Metric != out[j].Metric {
			return out[i].Metric < out[j].Metric
		}
		return strings.Join(out[i].Tags, ",") < strings.Join(out[j].Tags, ",")
	})
	return out
}

func (b *Backend) tags(extra []string) []string {
	out := make([]string, 0, len(b.baseTags)+len(extra))
	out = append(out, b.baseTags...)
	return append(out, extra...)
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, now int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(now), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

// percentile uses nearest rank on an already sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// ParseTags splits "env:prod, service:etl" into tags, dropping blanks.
func ParseTags(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
