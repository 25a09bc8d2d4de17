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

	"github.com/pkg/errors"

	"github.com/lazycopy/lazycopy/clock"
	"github.com/lazycopy/lazycopy/internal/copier"
	"github.com/lazycopy/lazycopy/internal/fetchlock"
	"github.com/lazycopy/lazycopy/internal/policy"
	"github.com/lazycopy/lazycopy/internal/stub"
	"github.com/lazycopy/lazycopy/internal/telemetry"
)

// FetchCoordinator implements the pre-read/write/mapping-acquire hook
// that materializes a stub on first touch and lets every concurrent
// accessor observe the same outcome.
type FetchCoordinator struct {
	locks    *fetchlock.Table
	copier   *copier.Copier
	resolver *Resolver
	metrics  telemetry.MetricHandle
	clk      clock.Clock
}

// NewFetchCoordinator constructs a FetchCoordinator over the given
// lock table, copier, and resolver (so it can re-check and destroy
// stream markers). metrics defaults to telemetry.NewNoopMetrics() if
// nil.
func NewFetchCoordinator(locks *fetchlock.Table, c *copier.Copier, resolver *Resolver, metrics telemetry.MetricHandle, clk clock.Clock) *FetchCoordinator {
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &FetchCoordinator{locks: locks, copier: c, resolver: resolver, metrics: metrics, clk: clk}
}

// PreAccess runs the full fetch-coordination algorithm for one read,
// write, or mapping-acquire against a stream that post-open resolution
// marked as an open stub stream. target is the local stub file, opened
// for writing; source opens the remote bytes the marker describes.
//
// A trusted initiator, or a stream with no installed marker, is a
// no-op: the original I/O proceeds unchanged.
func (f *FetchCoordinator) PreAccess(ctx context.Context, pol *policy.Store, id StreamID, localPath string, initiator policy.ProcessID, target *os.File, source RemoteSource) error {
	if pol.IsTrusted(initiator) {
		return nil
	}
	marker, ok := f.resolver.marker(id)
	if !ok {
		return nil
	}

	handle := f.locks.Get(localPath)
	defer f.locks.Release(handle)

	if !handle.TryAcquire() {
		// A peer is fetching; block until it finishes, then let the
		// original I/O proceed without fetching again.
		waitStart := f.clk.Now()
		handle.Wait()
		f.metrics.LockWaitLatency(ctx, f.clk.Now().Sub(waitStart))
		return nil
	}

	isStub, err := stub.IsStub(localPath)
	if err != nil {
		return errors.Wrap(err, "re-verifying stub before fetch")
	}
	if !isStub {
		// A racing thread already completed the fetch between the
		// try-acquire and this check; nothing left to do.
		return nil
	}

	fetchStart := f.clk.Now()
	err = f.fetch(ctx, marker, target, source)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	f.metrics.FetchCount(ctx, 1, outcome)
	f.metrics.FetchLatency(ctx, f.clk.Now().Sub(fetchStart), outcome)
	if err != nil {
		return err
	}
	f.resolver.Release(id)
	return nil
}

func (f *FetchCoordinator) fetch(ctx context.Context, marker *StreamMarker, target *os.File, source RemoteSource) error {
	src, err := source.Open(ctx, marker)
	if err != nil {
		return err
	}
	defer src.Close()

	result, err := f.copier.Copy(ctx, src, target, marker.RemoteSize)
	if err != nil {
		return err
	}
	f.metrics.BytesCopied(ctx, result.BytesCopied)
	return errors.Wrap(stub.Clear(target.Name()), "clearing stub after fetch")
}
