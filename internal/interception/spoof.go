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

// AttributeBits is the portable stand-in for the NTFS attribute flags
// the stub scheme overloads as an offline signal.
type AttributeBits uint32

const (
	AttrReadOnly AttributeBits = 1 << iota
	AttrDirectory
	AttrSystem
	AttrOffline
	AttrReparsePoint
	AttrNotContentIndexed
)

// offlineSignalBits is the set of bits the stub scheme uses to mark a
// file offline; they must be cleared from any metadata a caller
// observes, and must read clear after a successful fetch.
const offlineSignalBits = AttrOffline | AttrReparsePoint | AttrNotContentIndexed

// InfoClass identifies query-information classes by the spoofing
// behavior they get, not the literal NT enum.
type InfoClass int

const (
	FileAll InfoClass = iota
	FileStandard
	FileEndOfFile
	FileNetworkOpen
	FileBasic
	FileAttributeTag
)

// NeedsSynchronization reports whether cls is one of the four classes
// the pre-hook requests synchronization for.
func NeedsSynchronization(cls InfoClass) bool {
	switch cls {
	case FileAll, FileStandard, FileEndOfFile, FileNetworkOpen:
		return true
	default:
		return false
	}
}

// FileInfo is the subset of a query-information result the spoofer
// touches.
type FileInfo struct {
	Class         InfoClass
	EndOfFile     int64
	Attributes    AttributeBits
	HasStreamMark bool // a StreamMarker exists for the stream this info describes
}

// SpoofQueryInformation applies the post-hook to one query-information
// result, mutating info in place.
func SpoofQueryInformation(info *FileInfo, marker *StreamMarker) {
	switch info.Class {
	case FileAll, FileStandard, FileEndOfFile, FileNetworkOpen:
		if info.EndOfFile == 0 && marker != nil {
			info.EndOfFile = marker.RemoteSize
		}
	}
	switch info.Class {
	case FileAll, FileBasic, FileNetworkOpen, FileAttributeTag:
		info.Attributes &^= offlineSignalBits
	}
}

// DirectoryEntry is one record in a directory-enumeration result.
type DirectoryEntry struct {
	Attributes AttributeBits
}

// isStubSignature reports whether attrs matches the attribute pattern
// the stub scheme marks entries with.
func isStubSignature(attrs AttributeBits) bool {
	return attrs&AttrOffline != 0
}

// SpoofDirectoryEnumeration walks entries and clears the offline bit on
// every one that carries the stub signature and is neither a directory
// nor a system file.
func SpoofDirectoryEnumeration(entries []DirectoryEntry) {
	for i := range entries {
		e := &entries[i]
		if !isStubSignature(e.Attributes) {
			continue
		}
		if e.Attributes&(AttrDirectory|AttrSystem) != 0 {
			continue
		}
		e.Attributes &^= AttrOffline
	}
}
