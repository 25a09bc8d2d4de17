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

package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazycopy/lazycopy/internal/helper"
	"github.com/lazycopy/lazycopy/internal/policy"
	"github.com/lazycopy/lazycopy/internal/policyconfig"
)

type staticLoader struct{ cfg policyconfig.Config }

func (s staticLoader) Load() (policyconfig.Config, error) { return s.cfg, nil }

func startTestServer(t *testing.T) *policy.Store {
	t.Helper()
	pol := policy.New(staticLoader{})
	srv := helper.NewServer(pol, nil)

	sockPath := filepath.Join(t.TempDir(), "engine.sock")
	require.NoError(t, srv.Listen("unix", sockPath))
	t.Cleanup(func() { srv.Close() })

	channelNet = "unix"
	channelAddr = sockPath
	return pol
}

func TestParseModeAcceptsFlagNamesAndRawBitset(t *testing.T) {
	cases := map[string]policyconfig.Mode{
		"disabled":                    policyconfig.Disabled,
		"fetch-enabled":               policyconfig.FetchEnabled,
		"watch-enabled":               policyconfig.WatchEnabled,
		"fetch-enabled|watch-enabled": policyconfig.AllModeFlags,
		"3":                           policyconfig.AllModeFlags,
	}
	for input, want := range cases {
		got, err := parseMode(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := parseMode("bogus")
	assert.Error(t, err)
}

func TestSetModeCommandRoundTripsThroughHelperChannel(t *testing.T) {
	pol := startTestServer(t)

	err := sendStatusCommand(helper.MsgSetOperationMode, helper.EncodeUint32(uint32(policyconfig.FetchEnabled)))

	require.NoError(t, err)
	assert.Equal(t, policyconfig.FetchEnabled, pol.GetMode())
}

func TestSetReportRateCommandRoundTrips(t *testing.T) {
	pol := startTestServer(t)

	err := sendStatusCommand(helper.MsgSetReportRate, helper.EncodeUint32(750))

	require.NoError(t, err)
	assert.EqualValues(t, 750, pol.ReportRate())
}

func TestWatchPathCommandReplacesTheList(t *testing.T) {
	pol := startTestServer(t)
	require.NoError(t, pol.AddWatchPath(`C:\old\`))

	err := sendStatusCommand(helper.MsgSetWatchPaths, helper.EncodeNulSeparatedUTF16Paths([]string{"/new/data/"}))

	require.NoError(t, err)
	assert.Equal(t, []string{"/new/data/"}, pol.WatchPaths())
}

func TestVersionCommandReturnsServerVersion(t *testing.T) {
	startTestServer(t)

	client, err := dialControlClient()
	require.NoError(t, err)
	defer client.Close()

	reply, err := client.SendCommand(helper.MsgGetVersion, nil, commandTimeout)
	require.NoError(t, err)

	v, err := helper.DecodeVersion(reply.Data)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.Major)
}
