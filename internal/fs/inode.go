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
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"

	"github.com/lazycopy/lazycopy/internal/interception"
	"github.com/lazycopy/lazycopy/internal/stub"
)

func (f *FileSystem) LookUpInode(op *fuseops.LookUpInodeOp) {
	parentPath, ok := f.pathForInode(op.Parent)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	childPath := filepath.Join(parentPath, op.Name)
	info, err := os.Lstat(childPath)
	if err != nil {
		op.Respond(fuse.ENOENT)
		return
	}

	id := f.inodeForPath(childPath)
	attrs, expiration := f.attributesFor(childPath, info, id)
	op.Entry.Child = id
	op.Entry.Attributes = attrs
	op.Entry.AttributesExpiration = expiration
	op.Entry.EntryExpiration = expiration
	op.Respond(nil)
}

func (f *FileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	path, ok := f.pathForInode(op.Inode)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	info, err := os.Lstat(path)
	if err != nil {
		op.Respond(fuse.ENOENT)
		return
	}

	attrs, expiration := f.attributesFor(path, info, op.Inode)
	op.Attributes = attrs
	op.AttributesExpiration = expiration
	op.Respond(nil)
}

// attributesFor builds the inode attributes the kernel sees for path,
// running them through SpoofQueryInformation so a stub still under
// fetch reports its declared remote size rather than its on-disk
// (possibly still-truncated) size.
//
// GetInodeAttributesOp carries no handle, so there is nothing to key
// an installed StreamMarker on unless some other open of this inode
// is already in flight. When one is, the live marker (which the fetch
// coordinator keeps current) is authoritative; otherwise the on-disk
// stub record, if any, stands in for it.
func (f *FileSystem) attributesFor(path string, info os.FileInfo, id fuseops.InodeID) (fuseops.InodeAttributes, time.Time) {
	attrs := fuseops.InodeAttributes{
		Size:  uint64(info.Size()),
		Nlink: 1,
		Mode:  info.Mode(),
		Mtime: info.ModTime(),
		Uid:   uint32(os.Getuid()),
		Gid:   uint32(os.Getgid()),
	}

	fileInfo := interception.FileInfo{Class: interception.FileAll, EndOfFile: int64(attrs.Size)}

	f.mu.Lock()
	streamID, hasStream := f.streamOf[id]
	f.mu.Unlock()

	if hasStream {
		f.engine.SpoofQueryInformation(streamID, &fileInfo)
	} else if record, err := stub.Read(path); err == nil {
		marker := &interception.StreamMarker{RemoteSize: record.RemoteSize, RemotePath: record.RemotePath, UseHelper: record.UseHelper}
		interception.SpoofQueryInformation(&fileInfo, marker)
	}

	attrs.Size = uint64(fileInfo.EndOfFile)

	// Never cache: a stub's reported size changes under the kernel's
	// feet as soon as the fetch completes, and the kernel must re-query
	// rather than trust a previous answer.
	return attrs, time.Time{}
}
