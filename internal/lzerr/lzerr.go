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

// Package lzerr defines the sentinel error kinds shared across the
// interception pipeline, the stub codec, and the helper channel.
package lzerr

import "errors"

var (
	// ErrInvalidInput means a caller-supplied argument failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotAStub means the file lacks the recognized reparse metadata.
	// Callers treat this as "no work", not a failure.
	ErrNotAStub = errors.New("not a stub")

	// ErrInvalidStubData means reparse metadata was present but malformed.
	ErrInvalidStubData = errors.New("invalid stub data")

	// ErrBufferTooSmall means a channel message's declared data length
	// didn't fit the buffer that carried it.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrMisalignedBuffer means a caller-supplied pointer/slice violated
	// the channel's alignment contract.
	ErrMisalignedBuffer = errors.New("misaligned buffer")

	// ErrPortDisconnected means the helper channel has no connected client.
	ErrPortDisconnected = errors.New("helper channel disconnected")

	// ErrTimeout means a bounded wait (chunk I/O, helper round trip)
	// exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrIoFailure wraps a generic propagated I/O error from the source
	// or target of a fetch.
	ErrIoFailure = errors.New("i/o failure")

	// ErrResourceExhausted means an allocation (chunk buffer, lock table
	// entry) failed.
	ErrResourceExhausted = errors.New("resource exhausted")
)
