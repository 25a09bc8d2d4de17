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

package policyconfig

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViperLoaderFallsBackToDefaultsWhenUnset(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := ViperLoader{}.Load()

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestViperLoaderReadsModeAsPipeSeparatedFlags(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("operation-mode", "fetch-enabled|watch-enabled")
	viper.Set("report-rate", 500)
	viper.Set("watch-paths", []string{"/mnt/data/"})

	cfg, err := ViperLoader{}.Load()

	require.NoError(t, err)
	assert.Equal(t, AllModeFlags, cfg.OperationMode)
	assert.EqualValues(t, 500, cfg.ReportRate)
	assert.Equal(t, []string{"/mnt/data/"}, cfg.WatchPaths)
}

func TestViperLoaderRejectsOutOfRangeReportRate(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("report-rate", 20000)

	_, err := ViperLoader{}.Load()

	assert.Error(t, err)
}
