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
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// hookFunc lets an operation-mode be written in a config file as a
// pipe-separated list of flag names ("fetch-enabled|watch-enabled")
// instead of a raw bitset integer, the same string-to-domain-type
// translation cfg.hookFunc does for its Octal/LogSeverity/Protocol types.
func hookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(Mode(0)) {
			return data, nil
		}
		s := data.(string)
		var mode Mode
		for _, part := range strings.Split(s, "|") {
			switch strings.TrimSpace(part) {
			case "", "disabled":
				// no bits
			case "fetch-enabled":
				mode |= FetchEnabled
			case "watch-enabled":
				mode |= WatchEnabled
			default:
				return nil, fmt.Errorf("invalid operation-mode flag: %q", part)
			}
		}
		return mode, nil
	}
}

// DecodeHook is the mapstructure hook chain used to unmarshal viper's
// settings map into a Config.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		hookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
