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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazycopy/lazycopy/clock"
	"github.com/lazycopy/lazycopy/internal/policyconfig"
	"github.com/lazycopy/lazycopy/internal/stub"
)

func stubFile(t *testing.T, record stub.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub.bin")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	require.NoError(t, stub.Write(path, record))
	return path
}

type fakeReissuer struct {
	result OpenResult
	err    error
	called bool
}

func (f *fakeReissuer) Reissue(path string, options OpenOptions, shareMode ShareMode) (OpenResult, error) {
	f.called = true
	return f.result, f.err
}

func TestResolveNoOpOnTeardownOrFailure(t *testing.T) {
	r := NewResolver(nil, newSampler(clock.RealClock{}), nil)
	err := r.Resolve(&PostOpenContext{}, 1, OpenResult{TeardownInProgress: true}, &fakeReissuer{})
	assert.NoError(t, err)
	_, ok := r.marker(1)
	assert.False(t, ok)
}

func TestResolveReportsSampledEventWhenWatched(t *testing.T) {
	reported := make(chan AccessEvent, 1)
	r := NewResolver(reporterFunc(func(e AccessEvent) { reported <- e }), newSampler(clock.RealClock{}), nil)

	ctx := &PostOpenContext{Path: "x", Mode: policyconfig.WatchEnabled, ReportRate: 10000}
	err := r.Resolve(ctx, 1, OpenResult{ReparseSurfaced: false}, &fakeReissuer{})

	require.NoError(t, err)
	select {
	case e := <-reported:
		assert.Equal(t, "x", e.Path)
	default:
		t.Fatal("expected a sampled event at rate 10000")
	}
}

func TestResolveNoOpOnForeignReparseTag(t *testing.T) {
	r := NewResolver(nil, newSampler(clock.RealClock{}), nil)
	ctx := &PostOpenContext{Mode: policyconfig.AllModeFlags}
	err := r.Resolve(ctx, 1, OpenResult{ReparseSurfaced: true, ReparseTag: 0xdead}, &fakeReissuer{})
	assert.NoError(t, err)
	_, ok := r.marker(1)
	assert.False(t, ok)
}

func TestResolveNoOpWhenFetchDisabled(t *testing.T) {
	r := NewResolver(nil, newSampler(clock.RealClock{}), nil)
	ctx := &PostOpenContext{Mode: policyconfig.WatchEnabled}
	err := r.Resolve(ctx, 1, OpenResult{ReparseSurfaced: true, ReparseTag: stub.Tag}, &fakeReissuer{})
	assert.NoError(t, err)
}

func TestResolveNoOpOnNamedStream(t *testing.T) {
	r := NewResolver(nil, newSampler(clock.RealClock{}), nil)
	ctx := &PostOpenContext{Mode: policyconfig.FetchEnabled}
	err := r.Resolve(ctx, 1, OpenResult{ReparseSurfaced: true, ReparseTag: stub.Tag, StreamSuffix: ":alt:$DATA"}, &fakeReissuer{})
	assert.NoError(t, err)
}

func TestResolveReissuesWhenDecoratorsMissing(t *testing.T) {
	path := stubFile(t, stub.Record{RemoteSize: 10, RemotePath: "r"})
	reissuer := &fakeReissuer{result: OpenResult{
		ReparseSurfaced:  true,
		ReparseTag:       stub.Tag,
		AppliedOptions:   MandatoryOptions,
		AppliedShareMode: MandatoryShareMode,
	}}

	r := NewResolver(nil, newSampler(clock.RealClock{}), nil)
	ctx := &PostOpenContext{Path: path, Mode: policyconfig.FetchEnabled}
	err := r.Resolve(ctx, 1, OpenResult{ReparseSurfaced: true, ReparseTag: stub.Tag}, reissuer)

	require.NoError(t, err)
	assert.True(t, reissuer.called)
	marker, ok := r.marker(1)
	require.True(t, ok)
	assert.EqualValues(t, 10, marker.RemoteSize)
}

func TestResolveClearsStubOnContentReplaced(t *testing.T) {
	path := stubFile(t, stub.Record{RemoteSize: 10, RemotePath: "r"})

	r := NewResolver(nil, newSampler(clock.RealClock{}), nil)
	ctx := &PostOpenContext{Path: path, Mode: policyconfig.FetchEnabled}
	res := OpenResult{
		ReparseSurfaced:  true,
		ReparseTag:       stub.Tag,
		ContentReplaced:  true,
		AppliedOptions:   MandatoryOptions,
		AppliedShareMode: MandatoryShareMode,
	}
	err := r.Resolve(ctx, 1, res, &fakeReissuer{})

	require.NoError(t, err)
	isStub, err := stub.IsStub(path)
	require.NoError(t, err)
	assert.False(t, isStub)
	_, ok := r.marker(1)
	assert.False(t, ok)
}

func TestResolveInstallsMarkerOnlyOnce(t *testing.T) {
	path := stubFile(t, stub.Record{RemoteSize: 99, RemotePath: "r"})

	r := NewResolver(nil, newSampler(clock.RealClock{}), nil)
	ctx := &PostOpenContext{Path: path, Mode: policyconfig.FetchEnabled}
	res := OpenResult{
		ReparseSurfaced:  true,
		ReparseTag:       stub.Tag,
		AppliedOptions:   MandatoryOptions,
		AppliedShareMode: MandatoryShareMode,
	}

	require.NoError(t, r.Resolve(ctx, 1, res, &fakeReissuer{}))
	first, _ := r.marker(1)

	require.NoError(t, r.Resolve(ctx, 1, res, &fakeReissuer{}))
	second, _ := r.marker(1)

	assert.Same(t, first, second)
}

type reporterFunc func(AccessEvent)

func (f reporterFunc) ReportAccess(e AccessEvent) { f(e) }
