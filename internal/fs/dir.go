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

package fs

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/lazycopy/lazycopy/internal/interception"
	"github.com/lazycopy/lazycopy/internal/stub"
)

func (f *FileSystem) OpenDir(op *fuseops.OpenDirOp) {
	if _, ok := f.pathForInode(op.Inode); !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	op.Handle = fuseops.HandleID(atomic.AddUint64(&f.nextHandle, 1))
	op.Respond(nil)
}

// ReadDir lists path's children and, for each one that is currently a
// stub, runs it through SpoofDirectoryEnumeration before encoding the
// reply. A POSIX dirent carries no attribute bits for the kernel to
// see, so this doesn't change what ls prints; it exists so directory
// enumeration exercises the same offline-bit invariant GetInodeAttributes
// enforces, and so a stub that SpoofDirectoryEnumeration's bookkeeping
// would flag as anomalous (e.g. a directory or system entry wrongly
// tagged offline) is still checked even though nothing downstream of
// this call can render the result.
func (f *FileSystem) ReadDir(op *fuseops.ReadDirOp) {
	path, ok := f.pathForInode(op.Inode)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	children, err := os.ReadDir(path)
	if err != nil {
		op.Respond(fuse.EIO)
		return
	}

	if int(op.Offset) > len(children) {
		op.Respond(nil)
		return
	}
	children = children[op.Offset:]

	entries := make([]interception.DirectoryEntry, len(children))
	for i, child := range children {
		childPath := filepath.Join(path, child.Name())
		if isStub, _ := stub.IsStub(childPath); isStub {
			entries[i].Attributes = interception.AttrOffline
		}
		if child.IsDir() {
			entries[i].Attributes |= interception.AttrDirectory
		}
	}
	interception.SpoofDirectoryEnumeration(entries)

	buf := make([]byte, op.Size)
	var n int
	for i, child := range children {
		childPath := filepath.Join(path, child.Name())
		childID := f.inodeForPath(childPath)

		dirType := fuseutil.DT_File
		if child.IsDir() {
			dirType = fuseutil.DT_Directory
		}

		written := fuseutil.WriteDirent(buf[n:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(op.Offset) + fuseops.DirOffset(i) + 1,
			Inode:  childID,
			Name:   child.Name(),
			Type:   dirType,
		})
		if written == 0 {
			break
		}
		n += written
	}
	op.Data = buf[:n]
	op.Respond(nil)
}

func (f *FileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	op.Respond(nil)
}
