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
	"math/rand"
	"sync"

	"github.com/lazycopy/lazycopy/clock"
)

// AccessEvent is what a sampled draw reports upstream; Reporter
// implementations turn this into a metric or log line.
type AccessEvent struct {
	Path string
}

// Reporter receives sampled file-access events. Telemetry is an
// out-of-scope external collaborator, so the pipeline only ever calls
// through this interface.
type Reporter interface {
	ReportAccess(AccessEvent)
}

// NoopReporter discards every event; it is the default when no
// telemetry backend is configured.
type NoopReporter struct{}

func (NoopReporter) ReportAccess(AccessEvent) {}

// sampler draws a pseudo-random value from a process-wide seed updated
// per draw, shared by every sampled report regardless of which path
// triggered it.
type sampler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// scale converts a report rate in [0, 10000] into the equivalent
// threshold against a 31-bit draw.
const scale = (1<<31 - 1) / 10000

func newSampler(clk clock.Clock) *sampler {
	return &sampler{rnd: rand.New(rand.NewSource(clk.Now().UnixNano()))}
}

// shouldReport reports whether a single draw against rate r fires.
// r >= 10000 always fires; r == 0 never does.
func (s *sampler) shouldReport(r uint32) bool {
	if r >= 10000 {
		return true
	}
	if r == 0 {
		return false
	}
	s.mu.Lock()
	x := s.rnd.Int31n(1<<31 - 1)
	s.mu.Unlock()
	return x < int32(uint32(r)*scale)
}
