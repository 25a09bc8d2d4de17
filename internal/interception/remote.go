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
	"context"
	"io"
	"time"

	"github.com/lazycopy/lazycopy/internal/helper"
)

// RemoteSource opens the bytes a StreamMarker points at. The direct,
// in-process opener is tried first; a helper-backed implementation is
// used only for markers with UseHelper set, or as a fallback.
type RemoteSource interface {
	Open(ctx context.Context, marker *StreamMarker) (io.ReadCloser, error)
}

// LocalOpener opens marker.RemotePath directly, e.g. against a mounted
// network share the core's own security context can reach.
type LocalOpener func(path string) (io.ReadCloser, error)

func (f LocalOpener) Open(ctx context.Context, marker *StreamMarker) (io.ReadCloser, error) {
	return f(marker.RemotePath)
}

// HelperTimeout bounds a single OpenRemote/CloseRemote round trip.
const HelperTimeout = 15 * time.Second

// helperHandle adapts a helper-duplicated file handle into an
// io.ReadCloser. Resolving the opaque handle into bytes the copier can
// read is host-specific (the handle-duplication step the demand helper
// performs); readAt is supplied by the platform layer that owns the
// handle.
type helperHandle struct {
	srv    *helper.Server
	handle uint64
	readAt func(handle uint64, p []byte, off int64) (int, error)
	offset int64
}

func (h *helperHandle) Read(p []byte) (int, error) {
	n, err := h.readAt(h.handle, p, h.offset)
	h.offset += int64(n)
	return n, err
}

func (h *helperHandle) Close() error {
	return h.srv.CloseRemote(context.Background(), h.handle, HelperTimeout)
}

// HelperOpener asks the connected helper process to open a marker's
// remote path and adapts the returned handle into an io.ReadCloser via
// readAt.
type HelperOpener struct {
	Server *helper.Server
	ReadAt func(handle uint64, p []byte, off int64) (int, error)
}

func (o HelperOpener) Open(ctx context.Context, marker *StreamMarker) (io.ReadCloser, error) {
	handle, err := o.Server.OpenRemote(ctx, marker.RemotePath, HelperTimeout)
	if err != nil {
		return nil, err
	}
	return &helperHandle{srv: o.Server, handle: handle, readAt: o.ReadAt}, nil
}

// FallbackSource tries Primary first; only on failure, and only when
// the marker requests it, does it fall back to Helper. Per spec
// scenario 4, a disconnected helper channel must not mask the
// primary's error (typically access-denied) with ErrPortDisconnected.
type FallbackSource struct {
	Primary RemoteSource
	Helper  RemoteSource
}

func (f FallbackSource) Open(ctx context.Context, marker *StreamMarker) (io.ReadCloser, error) {
	src, err := f.Primary.Open(ctx, marker)
	if err == nil {
		return src, nil
	}
	if !marker.UseHelper || f.Helper == nil {
		return nil, err
	}
	helperSrc, helperErr := f.Helper.Open(ctx, marker)
	if helperErr != nil {
		return nil, err
	}
	return helperSrc, nil
}
