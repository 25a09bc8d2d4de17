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

package copier

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazycopy/lazycopy/clock"
)

func tempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "target"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestCopyColdFetch300KiB(t *testing.T) {
	const size = 307200
	content := make([]byte, size)
	_, err := rand.Read(content)
	require.NoError(t, err)

	dst := tempFile(t)
	c := New(clock.RealClock{})

	res, err := c.Copy(context.Background(), bytes.NewReader(content), dst, size)

	require.NoError(t, err)
	assert.EqualValues(t, size, res.BytesCopied)

	got, err := os.ReadFile(dst.Name())
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestCopyEmptyStub(t *testing.T) {
	dst := tempFile(t)
	c := New(clock.RealClock{})

	res, err := c.Copy(context.Background(), bytes.NewReader(nil), dst, 0)

	require.NoError(t, err)
	assert.EqualValues(t, 0, res.BytesCopied)
	info, err := dst.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, 0, info.Size())
}

func TestCopySourceMisreportsSize(t *testing.T) {
	const declared = 12
	actual := make([]byte, 25)
	_, err := rand.Read(actual)
	require.NoError(t, err)

	dst := tempFile(t)
	c := New(clock.RealClock{})

	res, err := c.Copy(context.Background(), bytes.NewReader(actual), dst, declared)

	require.NoError(t, err)
	assert.EqualValues(t, len(actual), res.BytesCopied)
	got, err := os.ReadFile(dst.Name())
	require.NoError(t, err)
	assert.Equal(t, actual, got)
}

func TestCopyAbortsOnSourceError(t *testing.T) {
	dst := tempFile(t)
	c := New(clock.RealClock{})

	_, err := c.Copy(context.Background(), errReader{}, dst, 1024)

	assert.Error(t, err)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, assertErr }

var assertErr = os.ErrClosed
