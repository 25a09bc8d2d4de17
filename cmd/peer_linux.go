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

//go:build linux

package cmd

import "golang.org/x/sys/unix"

type unixCred struct {
	pid int32
}

// peerCred reads the connecting process's credentials off a
// unix-domain socket via SO_PEERCRED, the same mechanism azcopy and
// rclone use to attribute local-socket peers on Linux.
func peerCred(fd uintptr) *unixCred {
	ucred, err := unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return nil
	}
	return &unixCred{pid: ucred.Pid}
}
