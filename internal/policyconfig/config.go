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
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags registers the CLI flags that mirror Config and binds each to
// viper, following cfg.BindFlags's pattern of one flagSet.XxxP call plus
// one viper.BindPFlag call per field.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.Uint32P("operation-mode", "", uint32(Disabled), "Bitset: 1=fetch-enabled, 2=watch-enabled.")
	if err := viper.BindPFlag("operation-mode", flagSet.Lookup("operation-mode")); err != nil {
		return err
	}

	flagSet.Uint32P("report-rate", "", 0, "Sampled file-access report rate, in [0, 10000].")
	if err := viper.BindPFlag("report-rate", flagSet.Lookup("report-rate")); err != nil {
		return err
	}

	flagSet.StringSliceP("watch-paths", "", nil, "Directory prefixes to sample file-access events for.")
	if err := viper.BindPFlag("watch-paths", flagSet.Lookup("watch-paths")); err != nil {
		return err
	}

	return nil
}

// Default returns the fail-closed configuration used before any config
// file or flags have been parsed: Disabled / 0 / empty.
func Default() Config {
	return Config{
		OperationMode: Disabled,
		ReportRate:    0,
		WatchPaths:    nil,
	}
}

// Validate rejects a config with an out-of-range report rate or a
// watch path that doesn't end in a path separator, mirroring
// cfg.ValidateConfig's per-field validator composition.
func Validate(c *Config) error {
	if c.ReportRate > 10000 {
		return fmt.Errorf("report-rate %d exceeds maximum of 10000", c.ReportRate)
	}
	for _, p := range c.WatchPaths {
		if p == "" {
			return fmt.Errorf("watch-paths entries must be non-empty")
		}
		if p[len(p)-1] != '/' && p[len(p)-1] != '\\' {
			return fmt.Errorf("watch path %q must end in a path separator", p)
		}
	}
	return nil
}
