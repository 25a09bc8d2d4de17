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

package interception

import (
	"context"
	"os"

	"github.com/lazycopy/lazycopy/clock"
	"github.com/lazycopy/lazycopy/internal/copier"
	"github.com/lazycopy/lazycopy/internal/fetchlock"
	"github.com/lazycopy/lazycopy/internal/policy"
	"github.com/lazycopy/lazycopy/internal/telemetry"
)

// Engine is the single aggregated core-context value: one value,
// constructed once at startup, passed to every operation, so the
// pipeline never relies on package-level globals.
type Engine struct {
	Policy *policy.Store

	locks    *fetchlock.Table
	copier   *copier.Copier
	resolver *Resolver
	fetch    *FetchCoordinator
}

// NewEngine wires the interception pipeline's subsystems together.
// reporter receives sampled access events; pass
// interception.NoopReporter{} when telemetry is unconfigured. metrics
// defaults to telemetry.NewNoopMetrics() if nil.
func NewEngine(pol *policy.Store, clk clock.Clock, reporter Reporter, metrics telemetry.MetricHandle) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	locks := fetchlock.NewTable()
	cp := copier.New(clk)
	resolver := NewResolver(reporter, newSampler(clk), metrics)
	return &Engine{
		Policy:   pol,
		locks:    locks,
		copier:   cp,
		resolver: resolver,
		fetch:    NewFetchCoordinator(locks, cp, resolver, metrics, clk),
	}
}

// PreOpen runs the pre-open gate against req.
func (e *Engine) PreOpen(req OpenRequest) *PostOpenContext {
	return PreOpen(e.Policy, req)
}

// PostOpen resolves one completed open into a stream marker, re-issuing
// the open or clearing the stub as required.
func (e *Engine) PostOpen(ctx *PostOpenContext, id StreamID, res OpenResult, reissue Reissuer) error {
	return e.resolver.Resolve(ctx, id, res, reissue)
}

// Access runs the pre-access fetch coordination for one read, write,
// or mapping-acquire against an already-resolved stream.
func (e *Engine) Access(ctx context.Context, id StreamID, localPath string, initiator policy.ProcessID, target *os.File, source RemoteSource) error {
	return e.fetch.PreAccess(ctx, e.Policy, id, localPath, initiator, target, source)
}

// CloseStream destroys id's marker, if any, on stream close.
func (e *Engine) CloseStream(id StreamID) {
	e.resolver.Release(id)
}

// SpoofQueryInformation applies size/attribute spoofing using id's
// installed marker, if any.
func (e *Engine) SpoofQueryInformation(id StreamID, info *FileInfo) {
	marker, _ := e.resolver.marker(id)
	SpoofQueryInformation(info, marker)
}
