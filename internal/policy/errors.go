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

package policy

import "github.com/lazycopy/lazycopy/internal/lzerr"

var (
	errEmptyWatchPath     = wrapInvalid("watch path must be non-empty")
	errWatchPathSeparator = wrapInvalid("watch path must end in a path separator")
)

func wrapInvalid(msg string) error {
	return &invalidInputError{msg: msg}
}

type invalidInputError struct{ msg string }

func (e *invalidInputError) Error() string { return e.msg }
func (e *invalidInputError) Unwrap() error  { return lzerr.ErrInvalidInput }
