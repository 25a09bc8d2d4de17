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

// Package fetchlock implements the per-file fetch lock table: a
// process-global, path-keyed, reference-counted table that guarantees
// at most one concurrent fetch per file path.
package fetchlock

import (
	"strings"
	"sync"
)

// permit is a single-permit signaling primitive: a buffered channel of
// capacity 1, initially holding a token ("signaled"). Acquiring it
// consumes the token; signaling puts the token back (or is a no-op if
// a token is already present), matching Win32 auto-reset-event
// semantics.
type permit chan struct{}

func newSignaledPermit() permit {
	p := make(permit, 1)
	p <- struct{}{}
	return p
}

// tryAcquire attempts a non-blocking take of the permit.
func (p permit) tryAcquire() bool {
	select {
	case <-p:
		return true
	default:
		return false
	}
}

// wait blocks until the permit becomes signaled, without consuming it.
// The caller here is a non-owner peer: it only observes the signal, so
// it puts the token straight back for the next waiter or acquirer.
func (p permit) wait() {
	<-p
	p.signal()
}

// signal sets the permit to signaled, waking at most one blocked waiter.
func (p permit) signal() {
	select {
	case p <- struct{}{}:
	default:
	}
}

type entry struct {
	event    permit
	refcount int
}

// Table is the process-global fetch-lock table. The zero value is ready
// to use.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewTable constructs an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Handle is returned by Get and must be released exactly once via
// Table.Release, whether or not the holder actually took the permit.
type Handle struct {
	key   string
	entry *entry
	// acquired records whether this handle's owner took the permit via
	// TryAcquire, so Release knows whether to signal for a peer.
	acquired bool
}

// normalize performs the case-insensitive path comparison used for the
// table key.
func normalize(path string) string {
	return strings.ToLower(path)
}

// Get returns a handle to the entry for path, creating it with
// refcount 1 and a signaled permit if absent, or incrementing the
// refcount of an existing entry.
func (t *Table) Get(path string) *Handle {
	key := normalize(path)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries == nil {
		t.entries = make(map[string]*entry)
	}
	e, ok := t.entries[key]
	if !ok {
		e = &entry{event: newSignaledPermit(), refcount: 0}
		t.entries[key] = e
	}
	e.refcount++
	return &Handle{key: key, entry: e}
}

// TryAcquire performs a non-blocking try-take on the path's permit.
// On success h becomes the fetcher for its path; h.acquired is recorded
// so Release can decide whether the caller owes the permit back.
func (h *Handle) TryAcquire() bool {
	ok := h.entry.event.tryAcquire()
	h.acquired = ok
	return ok
}

// Wait blocks, uninterruptibly and without a timeout, until the current
// fetcher releases the permit. It does not itself take the permit.
func (h *Handle) Wait() {
	h.entry.event.wait()
}

// Release drops this handle's reference. If it was the fetcher, the
// permit is signaled so a blocked peer (or the next acquirer) proceeds.
// If the refcount drops to zero the entry is removed from the table.
func (t *Table) Release(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h.acquired {
		h.entry.event.signal()
	}

	h.entry.refcount--
	if h.entry.refcount == 0 {
		delete(t.entries, h.key)
	}
}

// Len reports the number of distinct paths currently locked; used by
// tests to assert the table returns to empty after paired Get/Release.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
