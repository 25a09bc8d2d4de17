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

// Package policy implements the process-wide policy state: operation
// mode, report rate, the trusted-process set, and the watch-path
// prefix list, all guarded by a single multi-reader/single-writer lock.
package policy

import (
	"strings"
	"sync"

	"github.com/lazycopy/lazycopy/internal/policyconfig"
)

// ConfigLoader re-reads persisted policy settings, e.g. from a
// viper-backed store treated as an out-of-scope external collaborator.
type ConfigLoader interface {
	Load() (policyconfig.Config, error)
}

// ProcessID is an opaque identifier for an initiating process; on the
// engine's native platform this is a PID or process-handle-equivalent.
type ProcessID uint64

// Store is the guarded PolicyState. The zero value is Disabled, rate 0,
// no trusted processes, no watch paths — fail-closed by construction.
type Store struct {
	mu sync.RWMutex

	mode       policyconfig.Mode
	reportRate uint32
	trusted    map[ProcessID]struct{}
	watchPaths []string // each ends in a path separator; order preserved

	loader ConfigLoader
}

// New constructs a Store that reloads from loader on ReloadFromConfig.
func New(loader ConfigLoader) *Store {
	return &Store{
		trusted: make(map[ProcessID]struct{}),
		loader:  loader,
	}
}

func (s *Store) SetMode(m policyconfig.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

func (s *Store) GetMode() policyconfig.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetReportRate clamps r to [0, 10000].
func (s *Store) SetReportRate(r uint32) {
	if r > 10000 {
		r = 10000
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportRate = r
}

func (s *Store) ReportRate() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reportRate
}

// ReportRateFor returns the configured rate if any ordered watch-path
// prefix matches path case-insensitively, else 0.
func (s *Store) ReportRateFor(path string) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowerPath := strings.ToLower(path)
	for _, p := range s.watchPaths {
		if strings.HasPrefix(lowerPath, strings.ToLower(p)) {
			return s.reportRate
		}
	}
	return 0
}

// AddWatchPath rejects p unless it's non-empty and ends in a path
// separator, then de-duplicates case-insensitively.
func (s *Store) AddWatchPath(p string) error {
	if p == "" {
		return errEmptyWatchPath
	}
	last := p[len(p)-1]
	if last != '/' && last != '\\' {
		return errWatchPathSeparator
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lowerP := strings.ToLower(p)
	for _, existing := range s.watchPaths {
		if strings.ToLower(existing) == lowerP {
			return nil
		}
	}
	s.watchPaths = append(s.watchPaths, p)
	return nil
}

func (s *Store) ClearWatchPaths() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchPaths = nil
}

func (s *Store) WatchPaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.watchPaths))
	copy(out, s.watchPaths)
	return out
}

func (s *Store) AddTrustedProcess(id ProcessID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted[id] = struct{}{}
}

func (s *Store) RemoveTrustedProcess(id ProcessID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trusted, id)
}

func (s *Store) IsTrusted(id ProcessID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.trusted[id]
	return ok
}

// ReloadFromConfig re-reads report rate, operation mode, and watch paths
// atomically. On failure it forces the fail-closed state: Disabled,
// report rate 0, no watch paths.
func (s *Store) ReloadFromConfig() error {
	cfg, err := s.loader.Load()
	if err != nil {
		s.mu.Lock()
		s.mode = policyconfig.Disabled
		s.reportRate = 0
		s.watchPaths = nil
		s.mu.Unlock()
		return err
	}

	if err := policyconfig.Validate(&cfg); err != nil {
		s.mu.Lock()
		s.mode = policyconfig.Disabled
		s.reportRate = 0
		s.watchPaths = nil
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = cfg.OperationMode
	s.reportRate = cfg.ReportRate
	s.watchPaths = append([]string(nil), cfg.WatchPaths...)
	return nil
}
