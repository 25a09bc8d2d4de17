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

	"github.com/pkg/errors"

	"github.com/lazycopy/lazycopy/internal/policyconfig"
	"github.com/lazycopy/lazycopy/internal/stub"
	"github.com/lazycopy/lazycopy/internal/telemetry"
)

// Reissuer re-issues an open synchronously with decorator bits forced
// on. The pipeline never performs raw opens itself; the host
// filesystem layer supplies this.
type Reissuer interface {
	Reissue(path string, options OpenOptions, shareMode ShareMode) (OpenResult, error)
}

// Resolver implements post-open resolution.
type Resolver struct {
	markers  *markerTable
	reporter Reporter
	sampler  *sampler
	metrics  telemetry.MetricHandle
}

// NewResolver constructs a Resolver. reporter defaults to NoopReporter
// and metrics to telemetry.NewNoopMetrics() if nil.
func NewResolver(reporter Reporter, samp *sampler, metrics telemetry.MetricHandle) *Resolver {
	if reporter == nil {
		reporter = NoopReporter{}
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Resolver{markers: newMarkerTable(), reporter: reporter, sampler: samp, metrics: metrics}
}

// Resolve evaluates the ordered resolution cases against one open's
// outcome. id identifies the stream for marker installation; reissue
// is consulted only if decorator bits are missing on a recognized
// stub open.
func (r *Resolver) Resolve(ctx *PostOpenContext, id StreamID, res OpenResult, reissue Reissuer) error {
	// Trusted-process relaxation (gate step 2) already decided this
	// open needs no further interception work.
	if ctx.SkipFurtherWork {
		return nil
	}

	// Case 1.
	if res.TeardownInProgress || res.Failed || res.MarkedForDeletion {
		return nil
	}

	// Case 2.
	if !res.ReparseSurfaced {
		if ctx.Mode&policyconfig.WatchEnabled != 0 {
			r.maybeReport(ctx)
		}
		return nil
	}

	// Case 3.
	if res.ReparseTag != stub.Tag {
		return nil
	}

	// Case 4.
	if ctx.Mode&policyconfig.FetchEnabled == 0 {
		return nil
	}

	// Case 5.
	if !isDefaultStream(res.StreamSuffix) {
		return nil
	}

	// Case 6.
	missingOptions := MandatoryOptions &^ res.AppliedOptions
	missingShare := MandatoryShareMode &^ res.AppliedShareMode
	if missingOptions != 0 || missingShare != 0 {
		reissued, err := reissue.Reissue(ctx.Path, res.AppliedOptions|missingOptions, res.AppliedShareMode|missingShare)
		if err != nil {
			return errors.Wrap(err, "re-issuing open with decorator bits")
		}
		res = reissued
	}

	// Case 7.
	if res.ContentReplaced {
		if err := stub.Clear(ctx.Path); err != nil {
			return errors.Wrap(err, "clearing stub after content replacement")
		}
		return nil
	}

	// Case 8.
	record, err := stub.Read(ctx.Path)
	if err != nil {
		return errors.Wrap(err, "reading stub metadata on resolve")
	}
	r.markers.installIfAbsent(id, markerFromRecord(record))
	return nil
}

func (r *Resolver) maybeReport(ctx *PostOpenContext) {
	if r.sampler == nil {
		return
	}
	if r.sampler.shouldReport(ctx.ReportRate) {
		r.reporter.ReportAccess(AccessEvent{Path: ctx.Path})
		r.metrics.SampledAccessCount(context.Background(), 1)
	}
}

// Release destroys id's marker, if any, on stream close.
func (r *Resolver) Release(id StreamID) {
	r.markers.remove(id)
}

// marker exposes id's installed marker for the fetch coordinator.
func (r *Resolver) marker(id StreamID) (*StreamMarker, bool) {
	return r.markers.get(id)
}
