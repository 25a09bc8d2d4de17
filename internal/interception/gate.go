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
	"github.com/lazycopy/lazycopy/internal/policy"
	"github.com/lazycopy/lazycopy/internal/policyconfig"
)

// PostOpenContext is what the pre-open gate hands to post-open
// resolution: everything it computed before the underlying filesystem
// actually performed the open.
type PostOpenContext struct {
	Path       string
	Mode       policyconfig.Mode
	ReportRate uint32
	Initiator  policy.ProcessID

	// RequiredOptions/RequiredShareMode are non-zero only for the
	// trusted-process relaxation path (step 2): the gate has already
	// decided interception is done, but the caller must still apply
	// these decorator bits to the open before issuing it.
	RequiredOptions   OpenOptions
	RequiredShareMode ShareMode
	SkipFurtherWork   bool
}

// PreOpen decides whether an open needs further interception work. It
// returns nil when the open should be skipped entirely: the caller
// performs no further interception work for this open.
func PreOpen(pol *policy.Store, req OpenRequest) *PostOpenContext {
	if req.IsDirectory || !hasPathIntent(req) || req.IsVolumeOpen || req.IsPagingIO ||
		req.IsSelfIssued || req.IsReissue || req.Disposition == DispositionCreate ||
		pol.GetMode() == policyconfig.Disabled {
		return nil
	}

	if pol.IsTrusted(req.Initiator) {
		return &PostOpenContext{
			Path:              req.Path,
			Initiator:         req.Initiator,
			RequiredOptions:   MandatoryOptions &^ req.Options,
			RequiredShareMode: MandatoryShareMode &^ req.ShareMode,
			SkipFurtherWork:   true,
		}
	}

	mode := pol.GetMode()
	var rate uint32
	if mode&policyconfig.WatchEnabled != 0 {
		rate = pol.ReportRateFor(req.Path)
	}

	return &PostOpenContext{
		Path:       req.Path,
		Mode:       mode,
		ReportRate: rate,
		Initiator:  req.Initiator,
	}
}

// hasPathIntent reports whether the open carries a real path, as
// opposed to e.g. an open-by-numeric-id that never named this stub.
func hasPathIntent(req OpenRequest) bool {
	return req.Path != ""
}
