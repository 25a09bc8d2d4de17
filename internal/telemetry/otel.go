// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const outcomeKey = "outcome"

var fetchLatencyDistribution = metric.WithExplicitBucketBoundaries(
	1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100,
	130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000, 20000,
)

var fetchMeter = otel.Meter("lazycopy/fetch")

var outcomeAttributeSet sync.Map

func getOutcomeAttributeSet(outcome string) metric.MeasurementOption {
	if v, ok := outcomeAttributeSet.Load(outcome); ok {
		return v.(metric.MeasurementOption)
	}
	v, _ := outcomeAttributeSet.LoadOrStore(outcome, metric.WithAttributeSet(attribute.NewSet(attribute.String(outcomeKey, outcome))))
	return v.(metric.MeasurementOption)
}

type otelMetrics struct {
	fetchCount         metric.Int64Counter
	fetchLatency       metric.Float64Histogram
	bytesCopied        metric.Int64Counter
	lockWaitLatency    metric.Float64Histogram
	sampledAccessCount metric.Int64Counter
}

// NewOTelMetrics constructs an OTel-backed MetricHandle. The returned
// error joins every instrument-registration failure so the caller can
// decide whether to fall back to NewNoopMetrics.
func NewOTelMetrics() (MetricHandle, error) {
	fetchCount, err1 := fetchMeter.Int64Counter("lazycopy/fetch_count",
		metric.WithDescription("The cumulative number of completed materializations, by outcome."))
	fetchLatency, err2 := fetchMeter.Float64Histogram("lazycopy/fetch_latency",
		metric.WithDescription("The distribution of end-to-end fetch latencies."),
		metric.WithUnit("ms"), fetchLatencyDistribution)
	bytesCopied, err3 := fetchMeter.Int64Counter("lazycopy/bytes_copied",
		metric.WithDescription("The cumulative number of bytes materialized from remote sources."),
		metric.WithUnit("By"))
	lockWaitLatency, err4 := fetchMeter.Float64Histogram("lazycopy/lock_wait_latency",
		metric.WithDescription("The distribution of time non-fetching accessors spent waiting on a peer's fetch."),
		metric.WithUnit("ms"), fetchLatencyDistribution)
	sampledAccessCount, err5 := fetchMeter.Int64Counter("lazycopy/sampled_access_count",
		metric.WithDescription("The cumulative number of sampled file-access events emitted."))

	if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
		return nil, err
	}

	return &otelMetrics{
		fetchCount:         fetchCount,
		fetchLatency:       fetchLatency,
		bytesCopied:        bytesCopied,
		lockWaitLatency:    lockWaitLatency,
		sampledAccessCount: sampledAccessCount,
	}, nil
}

func (o *otelMetrics) FetchCount(ctx context.Context, inc int64, outcome string) {
	o.fetchCount.Add(ctx, inc, getOutcomeAttributeSet(outcome))
}

func (o *otelMetrics) FetchLatency(ctx context.Context, latency time.Duration, outcome string) {
	o.fetchLatency.Record(ctx, float64(latency.Milliseconds()), getOutcomeAttributeSet(outcome))
}

func (o *otelMetrics) BytesCopied(ctx context.Context, inc int64) {
	o.bytesCopied.Add(ctx, inc)
}

func (o *otelMetrics) LockWaitLatency(ctx context.Context, latency time.Duration) {
	o.lockWaitLatency.Record(ctx, float64(latency.Milliseconds()))
}

func (o *otelMetrics) SampledAccessCount(ctx context.Context, inc int64) {
	o.sampledAccessCount.Add(ctx, inc)
}
