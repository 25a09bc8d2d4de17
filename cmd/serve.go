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

package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	jacobsafuse "github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/lazycopy/lazycopy/clock"
	"github.com/lazycopy/lazycopy/internal/fs"
	"github.com/lazycopy/lazycopy/internal/helper"
	"github.com/lazycopy/lazycopy/internal/interception"
	"github.com/lazycopy/lazycopy/internal/logger"
	"github.com/lazycopy/lazycopy/internal/policy"
	"github.com/lazycopy/lazycopy/internal/policyconfig"
	"github.com/lazycopy/lazycopy/internal/telemetry"
)

var crashLogPath string
var mountPoint string
var backingRoot string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interception engine and its demand helper channel",
	Long: `serve constructs the core-context Engine (policy store, fetch-lock
table, copier, resolver) and listens on the demand helper channel until
interrupted. When --mount is set, it also mounts a loopback FUSE file
system at that path over --backing-root, driving every open, read,
write and attribute query on it through the Engine, so a stub planted
under the backing root materializes the first time something touches
it through the mount.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&crashLogPath, "crash-log", "", "If set, panics are appended to this file instead of stderr")
	serveCmd.Flags().StringVar(&mountPoint, "mount", "", "Directory to mount the interception file system on; leave unset to run the helper channel only")
	serveCmd.Flags().StringVar(&backingRoot, "backing-root", "", "Directory the mount mirrors; required with --mount")
}

func runServe() (err error) {
	if crashLogPath != "" {
		cw := &CrashWriter{fileName: crashLogPath}
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(cw, "panic: %v\n%s", r, debug.Stack())
				err = fmt.Errorf("serve: panic: %v", r)
			}
		}()
	}

	pol := policy.New(policyconfig.ViperLoader{})
	if err := pol.ReloadFromConfig(); err != nil {
		logger.Warnf("serve: initial policy load failed, starting fail-closed: %v", err)
	}

	metrics, err := telemetry.NewOTelMetrics()
	if err != nil {
		logger.Warnf("serve: OTel metrics unavailable, falling back to noop: %v", err)
		metrics = telemetry.NewNoopMetrics()
	}

	reporter := interception.NoopReporter{}
	engine := interception.NewEngine(pol, clock.RealClock{}, reporter, metrics)

	srv := helper.NewServer(pol, identifyPeerProcess)
	if channelNet == "unix" {
		_ = os.Remove(channelAddr)
	}
	if err := srv.Listen(channelNet, channelAddr); err != nil {
		return fmt.Errorf("starting helper channel: %w", err)
	}
	defer srv.Close()

	logger.Infof("serve: listening on %s %s, mode=%s", channelNet, channelAddr, pol.GetMode())

	if mountPoint != "" {
		if backingRoot == "" {
			return fmt.Errorf("serve: --backing-root is required with --mount")
		}

		source := interception.RemoteSource(interception.LocalOpener(func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		}))
		source = interception.FallbackSource{
			Primary: source,
			Helper: interception.HelperOpener{
				Server: srv,
				ReadAt: func(handle uint64, p []byte, off int64) (int, error) {
					return 0, fmt.Errorf("serve: helper-backed remote reads are not implemented by this host")
				},
			},
		}

		fsImpl := fs.New(backingRoot, engine, source)
		mfs, err := jacobsafuse.Mount(mountPoint, fuseutil.NewFileSystemServer(fsImpl), &jacobsafuse.MountConfig{})
		if err != nil {
			return fmt.Errorf("mounting interception file system at %s: %w", mountPoint, err)
		}
		logger.Infof("serve: mounted interception file system at %s (backing %s)", mountPoint, backingRoot)

		defer func() {
			if uerr := unix.Unmount(mountPoint, 0); uerr != nil {
				logger.Warnf("serve: unmounting %s: %v", mountPoint, uerr)
			}
		}()
		go func() {
			if joinErr := mfs.Join(context.Background()); joinErr != nil {
				logger.Errorf("serve: fuse connection for %s exited: %v", mountPoint, joinErr)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if err := pol.ReloadFromConfig(); err != nil {
				logger.Warnf("serve: SIGHUP reload failed, now fail-closed: %v", err)
			} else {
				logger.Infof("serve: policy reloaded")
			}
			continue
		}
		logger.Infof("serve: received %s, shutting down", sig)
		return nil
	}
	return nil
}

// identifyPeerProcess extracts the connecting process's credential from
// a unix-domain socket connection, where the kernel enforces SO_PEERCRED;
// it returns 0 (no attribution) for any other transport.
func identifyPeerProcess(conn net.Conn) policy.ProcessID {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0
	}
	var cred *unixCred
	_ = raw.Control(func(fd uintptr) {
		cred = peerCred(fd)
	})
	if cred == nil {
		return 0
	}
	return policy.ProcessID(cred.pid)
}

// ensure viper's config-file-driven defaults stay consistent even when
// serve runs with no config file at all.
func init() {
	viper.SetDefault("operation-mode", uint32(policyconfig.Disabled))
	viper.SetDefault("report-rate", uint32(0))
}
