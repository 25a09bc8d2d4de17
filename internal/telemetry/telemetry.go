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

// Package telemetry provides the MetricHandle the fetch path reports
// through. Telemetry is named an out-of-scope external collaborator,
// so the core only ever depends on this interface; NewNoopMetrics is
// the default, NewOTelMetrics the real backend.
package telemetry

import (
	"context"
	"time"
)

// MetricHandle is the set of fetch-path measurements a backend records.
type MetricHandle interface {
	// FetchCount increments the number of completed materializations,
	// tagged with outcome ("success" or "error").
	FetchCount(ctx context.Context, inc int64, outcome string)
	// FetchLatency records how long one fetch (source open through stub
	// clear, after the lock is taken) took.
	FetchLatency(ctx context.Context, latency time.Duration, outcome string)
	// BytesCopied accumulates materialized bytes across all fetches.
	BytesCopied(ctx context.Context, inc int64)
	// LockWaitLatency records how long a non-fetching accessor blocked
	// on a peer's in-flight fetch.
	LockWaitLatency(ctx context.Context, latency time.Duration)
	// SampledAccessCount increments the number of sampled-access-report
	// events emitted.
	SampledAccessCount(ctx context.Context, inc int64)
}

// ShutdownFn flushes and releases whatever resources a MetricHandle
// implementation holds.
type ShutdownFn func(ctx context.Context) error
