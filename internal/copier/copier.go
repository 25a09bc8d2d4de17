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

// Package copier implements a chunked pipelined copier: a bounded
// producer/consumer pipeline that streams bytes from a source reader
// into a target file, with read/write overlap and adaptive buffer
// growth up to MaxChunks outstanding buffers.
//
// A single-threaded implementation would poll completion events on a
// hand-rolled ring of chunks. Go already has a natural idiom for that
// shape: a bounded channel of filled chunks plus a bounded pool of free
// buffers, with one goroutine filling chunks and another draining them.
// Channel FIFO ordering gives the "writes traverse chunks in the same
// cyclic order reads filled them" property for free.
package copier

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lazycopy/lazycopy/clock"
	"github.com/lazycopy/lazycopy/internal/lzerr"
)

const (
	// ChunkSize is the size of a single I/O buffer.
	ChunkSize = 128 * 1024
	// MaxChunks bounds how many buffers may be outstanding (allocated but
	// not yet both filled and drained) at once.
	MaxChunks = 4
	// Timeout bounds a single chunk's read or write.
	Timeout = 15 * time.Second
)

// Result reports what a Copy call actually did, for the caller to log
// or feed into telemetry.
type Result struct {
	BytesCopied int64
}

// Copier streams a declared-size source into a target file.
type Copier struct {
	clk clock.Clock
}

// New constructs a Copier. clk defaults to clock.RealClock{} if nil.
func New(clk clock.Clock) *Copier {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Copier{clk: clk}
}

type chunk struct {
	data []byte // the filled prefix
	buf  []byte // the full backing buffer, returned to the free pool
}

// Copy extends dst to remoteSize bytes, then streams exactly
// remoteSize bytes (or more, if src misreports its length) from src
// into dst in ascending offset order. On any I/O failure the copy
// aborts, dst is left with whatever was written so far, and the error
// is returned — the caller must not clear the stub in that case.
func (c *Copier) Copy(ctx context.Context, src io.Reader, dst *os.File, remoteSize int64) (Result, error) {
	if remoteSize < 0 {
		return Result{}, fmt.Errorf("%w: negative remote size %d", lzerr.ErrInvalidInput, remoteSize)
	}

	if err := dst.Truncate(remoteSize); err != nil {
		return Result{}, fmt.Errorf("%w: extending target: %v", lzerr.ErrIoFailure, err)
	}

	if remoteSize == 0 {
		// Spec scenario "empty stub": no chunk allocated, no read or write
		// issued.
		return Result{}, nil
	}

	free := make(chan []byte, MaxChunks)
	filled := make(chan chunk, MaxChunks)
	allocated := 0

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(filled)
		return c.read(gctx, src, remoteSize, free, filled, &allocated)
	})

	var result Result
	g.Go(func() error {
		written, err := c.write(gctx, dst, filled, free)
		result.BytesCopied = written
		return err
	})

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (c *Copier) read(ctx context.Context, src io.Reader, remoteSize int64, free chan []byte, filled chan<- chunk, allocated *int) error {
	remaining := remoteSize

	nextBuffer := func() ([]byte, error) {
		select {
		case buf := <-free:
			return buf, nil
		default:
		}
		if *allocated < MaxChunks {
			size := ChunkSize
			if remaining > 0 && remaining < int64(size) {
				size = int(remaining)
			}
			*allocated++
			return make([]byte, size), nil
		}
		select {
		case buf := <-free:
			return buf, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for {
		buf, err := nextBuffer()
		if err != nil {
			return err
		}

		n, readErr := c.timedRead(ctx, src, buf)
		eof := readErr == io.EOF
		if readErr != nil && !eof {
			return fmt.Errorf("%w: reading source: %v", lzerr.ErrIoFailure, readErr)
		}

		select {
		case filled <- chunk{data: buf[:n], buf: buf}:
		case <-ctx.Done():
			return ctx.Err()
		}

		remaining -= int64(n)
		// Declared size under-reported the source: absorb the overrun with
		// another full-size chunk instead of stopping early.
		if remaining <= 0 && !eof {
			remaining = ChunkSize
		}
		if eof || (n < len(buf) && remaining <= 0) {
			return nil
		}
	}
}

func (c *Copier) write(ctx context.Context, dst *os.File, filled <-chan chunk, free chan<- []byte) (int64, error) {
	var offset int64
	for {
		select {
		case ch, ok := <-filled:
			if !ok {
				return offset, nil
			}
			if len(ch.data) > 0 {
				if err := c.timedWriteAt(ctx, dst, ch.data, offset); err != nil {
					return offset, fmt.Errorf("%w: writing target: %v", lzerr.ErrIoFailure, err)
				}
				offset += int64(len(ch.data))
			}
			select {
			case free <- ch.buf:
			default:
				// Pool already holds MaxChunks buffers; drop this one.
			}
		case <-ctx.Done():
			return offset, ctx.Err()
		}
	}
}

// timedRead runs src.Read in a goroutine and fails with ErrTimeout if it
// doesn't complete within Timeout. The underlying read is not itself
// cancellable — this bounds how long the copier waits on it, treating a
// per-chunk timeout breach as a fatal copy error.
func (c *Copier) timedRead(ctx context.Context, src io.Reader, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := src.Read(buf)
		done <- result{n, err}
	}()

	select {
	case r := <-done:
		return r.n, r.err
	case <-c.clk.After(Timeout):
		return 0, lzerr.ErrTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *Copier) timedWriteAt(ctx context.Context, dst *os.File, p []byte, offset int64) error {
	done := make(chan error, 1)
	go func() {
		_, err := dst.WriteAt(p, offset)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-c.clk.After(Timeout):
		return lzerr.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
