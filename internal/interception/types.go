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

// Package interception implements the staged operation filter: it
// gates opens, resolves them into stream markers, drives the fetch on
// first touch, and spoofs metadata and directory entries for files
// that are still stubs.
package interception

import (
	"github.com/lazycopy/lazycopy/internal/policy"
)

// OpenOptions is the decorator/creation option bitset carried on an
// open request, modeled after NTFS create-options; only the bits this
// pipeline inspects or forces are named.
type OpenOptions uint32

const (
	OpenReparsePoint OpenOptions = 1 << iota
	OpenForBackupIntent
	RandomAccess
	WriteThrough
	PagingFile
)

// ShareMode is the share-access bitset an open requests for concurrent
// openers.
type ShareMode uint32

const (
	ShareRead ShareMode = 1 << iota
	ShareWrite
)

// MandatoryOptions and MandatoryShareMode are the "decorator bits" the
// glossary describes: every open the pipeline lets through on a stub
// must carry them so the eventual fetch can read and rewrite the file
// while the original caller still holds it open.
const MandatoryOptions = OpenReparsePoint | OpenForBackupIntent | RandomAccess | WriteThrough
const MandatoryShareMode = ShareRead | ShareWrite

// Disposition mirrors the NT create-disposition enum the gate inspects.
type Disposition int

const (
	DispositionOpen Disposition = iota
	DispositionCreate
	DispositionOpenIf
	DispositionOverwrite
	DispositionOverwriteIf
	DispositionSupersede
)

// replacesContent reports whether a successful open with this
// disposition necessarily discarded any prior content.
func (d Disposition) replacesContent() bool {
	switch d {
	case DispositionOverwrite, DispositionOverwriteIf, DispositionSupersede:
		return true
	default:
		return false
	}
}

// OpenRequest is the proposed open the pre-open gate inspects.
type OpenRequest struct {
	Path          string
	Disposition   Disposition
	Options       OpenOptions
	ShareMode     ShareMode
	Initiator     policy.ProcessID
	IsDirectory   bool
	IsVolumeOpen  bool
	IsPagingIO    bool
	IsReissue     bool
	IsSelfIssued  bool // generated by this pipeline's own re-issue (step 6)
}

// StreamID opaquely identifies one open instance of a file's data
// stream; the pipeline never inspects its value, only uses it as a map
// key across the open/read/close lifecycle of a single handle.
type StreamID uint64

// DefaultStreamSuffix is the only named-stream suffix the pipeline lets
// through post-open (the literal synonym for the unnamed data stream).
const DefaultStreamSuffix = "::$DATA"

// OpenResult is what the underlying filesystem actually did, fed back
// into post-open resolution.
type OpenResult struct {
	Failed             bool
	TeardownInProgress bool
	MarkedForDeletion  bool
	ReparseSurfaced    bool
	ReparseTag         uint32
	ContentReplaced    bool
	StreamSuffix       string
	CanonicalName      string
	AppliedOptions     OpenOptions
	AppliedShareMode   ShareMode
}

// isDefaultStream reports whether suffix names the unnamed data stream.
func isDefaultStream(suffix string) bool {
	return suffix == "" || suffix == DefaultStreamSuffix
}
