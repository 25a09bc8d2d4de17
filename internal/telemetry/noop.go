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
	"time"
)

// NewNoopMetrics returns a MetricHandle that discards every measurement.
func NewNoopMetrics() MetricHandle {
	var n noopMetrics
	return &n
}

type noopMetrics struct{}

func (*noopMetrics) FetchCount(_ context.Context, _ int64, _ string)           {}
func (*noopMetrics) FetchLatency(_ context.Context, _ time.Duration, _ string) {}
func (*noopMetrics) BytesCopied(_ context.Context, _ int64)                    {}
func (*noopMetrics) LockWaitLatency(_ context.Context, _ time.Duration)        {}
func (*noopMetrics) SampledAccessCount(_ context.Context, _ int64)             {}
