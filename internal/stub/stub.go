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

// Package stub implements the encode/decode/clear lifecycle of the
// reparse-style StubRecord attached to a lazily materialized file.
package stub

import (
	"encoding/binary"
	"os"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pkg/xattr"

	"github.com/lazycopy/lazycopy/internal/lzerr"
)

// Tag is the 32-bit reparse tag this implementation owns. A file is
// recognized as a stub only if both Tag and GUID match.
const Tag uint32 = 0x00000340

// GUID is the 16-byte identifier bound to every stub this engine writes.
// It is implementation-specific, not a protocol constant.
var GUID = uuid.MustParse("8f3b9e2a-3c3f-4e9b-9a3c-2f6a4b1d7c90")

// xattrName is the extended attribute the StubRecord blob is stored
// under; it is the nearest portable analogue of a reparse point.
const xattrName = "user.lazycopy.stub"

// Record is the remote-pointer metadata attached to a stub file.
type Record struct {
	RemoteSize int64
	RemotePath string
	UseHelper  bool
}

// header precedes the variable-length body in the on-disk blob.
type header struct {
	Tag        uint32
	DataLength uint16
	Reserved   uint16
	GUID       [16]byte
}

const headerSize = 4 + 2 + 2 + 16

// Encode serializes r into the on-disk blob: header + i64 remote_size LE +
// NUL-terminated UTF-16LE remote_path + u8 use_helper.
func Encode(r Record) []byte {
	path16 := utf16.Encode([]rune(r.RemotePath))

	body := make([]byte, 8+ (len(path16)+1)*2+1)
	binary.LittleEndian.PutUint64(body[0:8], uint64(r.RemoteSize))
	off := 8
	for _, u := range path16 {
		binary.LittleEndian.PutUint16(body[off:off+2], u)
		off += 2
	}
	binary.LittleEndian.PutUint16(body[off:off+2], 0) // NUL terminator
	off += 2
	if r.UseHelper {
		body[off] = 1
	}

	guidBytes, _ := GUID.MarshalBinary()
	var g [16]byte
	copy(g[:], guidBytes)

	h := header{Tag: Tag, DataLength: uint16(len(body)), GUID: g}
	buf := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], h.Tag)
	binary.LittleEndian.PutUint16(buf[4:6], h.DataLength)
	binary.LittleEndian.PutUint16(buf[6:8], h.Reserved)
	copy(buf[8:24], h.GUID[:])
	copy(buf[24:], body)
	return buf
}

// Decode parses a raw blob previously produced by Encode. It fails with
// lzerr.ErrNotAStub if the tag or GUID don't match, and
// lzerr.ErrInvalidStubData if the declared payload is shorter than the
// path it claims to carry.
func Decode(blob []byte) (Record, error) {
	if len(blob) < headerSize {
		return Record{}, lzerr.ErrNotAStub
	}
	tag := binary.LittleEndian.Uint32(blob[0:4])
	dataLen := binary.LittleEndian.Uint16(blob[4:6])
	var g [16]byte
	copy(g[:], blob[8:24])

	guidBytes, _ := GUID.MarshalBinary()
	var wantG [16]byte
	copy(wantG[:], guidBytes)

	if tag != Tag || g != wantG {
		return Record{}, lzerr.ErrNotAStub
	}

	body := blob[headerSize:]
	if len(body) < int(dataLen) {
		return Record{}, lzerr.ErrInvalidStubData
	}
	body = body[:dataLen]

	if len(body) < 8 {
		return Record{}, lzerr.ErrInvalidStubData
	}
	remoteSize := int64(binary.LittleEndian.Uint64(body[0:8]))

	rest := body[8:]
	var path16 []uint16
	i := 0
	for {
		if i+2 > len(rest) {
			return Record{}, lzerr.ErrInvalidStubData
		}
		u := binary.LittleEndian.Uint16(rest[i : i+2])
		i += 2
		if u == 0 {
			break
		}
		path16 = append(path16, u)
	}

	useHelper := false
	if i < len(rest) {
		useHelper = rest[i] != 0
	}

	return Record{
		RemoteSize: remoteSize,
		RemotePath: string(utf16.Decode(path16)),
		UseHelper:  useHelper,
	}, nil
}

// Read loads and decodes the StubRecord attached to path.
func Read(path string) (Record, error) {
	blob, err := xattr.LGet(path, xattrName)
	if err != nil {
		if xattr.IsNotExist(err) {
			return Record{}, lzerr.ErrNotAStub
		}
		return Record{}, errors.Wrap(err, "reading stub metadata")
	}
	return Decode(blob)
}

// Write attaches a StubRecord to path. Used by the external tagger, not
// by the core fetch path, which only consumes and clears stubs.
func Write(path string, r Record) error {
	return xattr.LSet(path, xattrName, Encode(r))
}

// Clear removes the stub metadata from path in sequence: strip
// read-only, remove the stub extended attribute, restore read-only. It
// clears no other attribute bits; the stub attribute is the only
// offline signal this package stores.
func Clear(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return errors.Wrap(err, "stat before clear")
	}
	wasReadOnly := info.Mode()&0200 == 0
	if wasReadOnly {
		if err := os.Chmod(path, info.Mode()|0200); err != nil {
			return errors.Wrap(err, "clearing read-only bit")
		}
	}

	err = xattr.LRemove(path, xattrName)
	if err != nil && !xattr.IsNotExist(err) {
		return errors.Wrap(err, "removing stub metadata")
	}

	if wasReadOnly {
		if err := os.Chmod(path, info.Mode()); err != nil {
			return errors.Wrap(err, "restoring read-only bit")
		}
	}
	return nil
}

// IsStub reports whether path currently carries a StubRecord.
func IsStub(path string) (bool, error) {
	_, err := Read(path)
	if errors.Is(err, lzerr.ErrNotAStub) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
