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
	"sync"

	"github.com/lazycopy/lazycopy/internal/stub"
)

// StreamMarker is the in-memory record attached to a stream the first
// time post-open resolution recognizes it as an open stub stream. It
// is copied from the StubRecord at install time so later
// reads never need to re-decode the on-disk blob just to learn the
// remote size or path.
type StreamMarker struct {
	RemoteSize int64
	RemotePath string
	UseHelper  bool
}

func markerFromRecord(r stub.Record) *StreamMarker {
	return &StreamMarker{RemoteSize: r.RemoteSize, RemotePath: r.RemotePath, UseHelper: r.UseHelper}
}

// markerTable installs at most one StreamMarker per StreamID, even if
// two threads race to resolve the same freshly opened stream.
type markerTable struct {
	mu      sync.Mutex
	markers map[StreamID]*StreamMarker
}

func newMarkerTable() *markerTable {
	return &markerTable{markers: make(map[StreamID]*StreamMarker)}
}

// installIfAbsent installs m for id unless a marker is already present,
// in which case the existing one wins and m is discarded.
func (t *markerTable) installIfAbsent(id StreamID, m *StreamMarker) *StreamMarker {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.markers[id]; ok {
		return existing
	}
	t.markers[id] = m
	return m
}

func (t *markerTable) get(id StreamID) (*StreamMarker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.markers[id]
	return m, ok
}

// remove destroys the marker for id, e.g. once a fetch clears the
// stub, or when the stream's cleanup callback fires on close.
func (t *markerTable) remove(id StreamID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.markers, id)
}

func (t *markerTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.markers)
}
