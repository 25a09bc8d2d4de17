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

import "github.com/spf13/viper"

// ViperLoader implements policy.ConfigLoader by unmarshalling the
// process's global viper instance into a Config, the same source
// cmd/root.go's initConfig populates from flags and/or a config file.
type ViperLoader struct{}

// Load reads the current viper state (keys operation-mode, report-rate,
// watch-paths, absent keys falling back to Disabled/0/empty) into a
// validated Config.
func (ViperLoader) Load() (Config, error) {
	cfg := Default()
	if err := viper.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return Config{}, err
	}
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
