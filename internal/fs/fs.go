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

// Package fs mounts a loopback FUSE file system over a backing
// directory and drives every operation that touches it through
// interception.Engine, so a stub file mounted underneath materializes
// on first read or write instead of needing an out-of-process hook to notice
// it. It plays the same role the platform-specific minifilter or
// kernel-extension hook plays elsewhere: the thing that actually calls
// PreOpen/PostOpen/Access/SpoofQueryInformation against a real file
// operation.
package fs

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/lazycopy/lazycopy/internal/interception"
)

// FileSystem is a fuseutil.FileSystem that mirrors backingRoot and
// routes opens, reads, writes and attribute queries through engine.
// Everything not named explicitly falls through to
// fuseutil.NotImplementedFileSystem (ENOSYS): this mirrors, it doesn't
// let callers create, remove or rename anything on the backing tree.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	backingRoot string
	engine      *interception.Engine
	source      interception.RemoteSource

	mu          sync.Mutex
	pathToInode map[string]fuseops.InodeID
	inodeToPath map[fuseops.InodeID]string
	nextInode   uint64
	// streamOf tracks the most recently resolved stream for an inode.
	// GetInodeAttributesOp carries no handle, so a bare stat of a file
	// nobody currently has open falls back to reading the on-disk stub
	// record directly instead.
	streamOf map[fuseops.InodeID]interception.StreamID

	nextHandle uint64
	nextStream uint64
	files      map[fuseops.HandleID]*openFile
}

type openFile struct {
	file     *os.File
	path     string
	inode    fuseops.InodeID
	streamID interception.StreamID
}

var _ fuseutil.FileSystem = &FileSystem{}

// New constructs a FileSystem rooted at backingRoot. source resolves a
// stub's remote path into readable bytes on first fetch.
func New(backingRoot string, engine *interception.Engine, source interception.RemoteSource) *FileSystem {
	root := filepath.Clean(backingRoot)
	f := &FileSystem{
		backingRoot: root,
		engine:      engine,
		source:      source,
		pathToInode: map[string]fuseops.InodeID{root: fuseops.RootInodeID},
		inodeToPath: map[fuseops.InodeID]string{fuseops.RootInodeID: root},
		streamOf:    make(map[fuseops.InodeID]interception.StreamID),
		files:       make(map[fuseops.HandleID]*openFile),
	}
	return f
}

func (f *FileSystem) Init(op *fuseops.InitOp) {
	op.Respond(nil)
}

func (f *FileSystem) pathForInode(id fuseops.InodeID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.inodeToPath[id]
	return p, ok
}

// inodeForPath returns the inode already assigned to path, minting a
// new one if this is the first time the path has been named.
func (f *FileSystem) inodeForPath(path string) fuseops.InodeID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.pathToInode[path]; ok {
		return id
	}
	f.nextInode++
	id := fuseops.InodeID(uint64(fuseops.RootInodeID) + f.nextInode)
	f.pathToInode[path] = id
	f.inodeToPath[id] = path
	return id
}
