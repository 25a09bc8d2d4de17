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
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lazycopy/lazycopy/internal/helper"
	"github.com/lazycopy/lazycopy/internal/policyconfig"
)

// sendStatusCommand issues msgType with payload and turns a non-zero
// status reply into an error, mirroring how internal/helper.Server's
// replyStatus encodes its status byte.
func sendStatusCommand(msgType helper.MessageType, payload []byte) error {
	client, err := dialControlClient()
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := client.SendCommand(msgType, payload, commandTimeout)
	if err != nil {
		return err
	}
	status, err := helper.DecodeUint32(reply.Data)
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("engine rejected the command")
	}
	return nil
}

var reloadPolicyCmd = &cobra.Command{
	Use:   "reload-policy",
	Short: "Ask the running engine to re-read its policy config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendStatusCommand(helper.MsgReloadPolicy, nil)
	},
}

var setModeCmd = &cobra.Command{
	Use:   "set-mode {disabled|fetch-enabled|watch-enabled|<bitset>}",
	Short: "Set the engine's operation mode bitset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseMode(args[0])
		if err != nil {
			return err
		}
		return sendStatusCommand(helper.MsgSetOperationMode, helper.EncodeUint32(uint32(mode)))
	},
}

// parseMode accepts either a raw bitset integer or one of the
// pipe-separated flag-name spellings policyconfig.DecodeHook accepts
// from a config file, so the CLI and the config file use one syntax.
func parseMode(s string) (policyconfig.Mode, error) {
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return policyconfig.Mode(n), nil
	}
	switch s {
	case "disabled":
		return policyconfig.Disabled, nil
	case "fetch-enabled":
		return policyconfig.FetchEnabled, nil
	case "watch-enabled":
		return policyconfig.WatchEnabled, nil
	case "fetch-enabled|watch-enabled", "watch-enabled|fetch-enabled":
		return policyconfig.AllModeFlags, nil
	default:
		return 0, fmt.Errorf("invalid operation mode %q", s)
	}
}

var setReportRateCmd = &cobra.Command{
	Use:   "set-report-rate <rate>",
	Short: "Set the sampled file-access report rate, in [0, 10000]",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rate, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid report rate %q: %w", args[0], err)
		}
		return sendStatusCommand(helper.MsgSetReportRate, helper.EncodeUint32(uint32(rate)))
	},
}

var watchPathCmd = &cobra.Command{
	Use:   "watch-path",
	Short: "Manage the engine's watch-path prefix list",
}

var watchPathAddCmd = &cobra.Command{
	Use:   "add <path> [path...]",
	Short: "Replace the watch-path list with the given prefixes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendStatusCommand(helper.MsgSetWatchPaths, helper.EncodeNulSeparatedUTF16Paths(args))
	},
}

var watchPathClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the watch-path list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendStatusCommand(helper.MsgSetWatchPaths, helper.EncodeNulSeparatedUTF16Paths(nil))
	},
}

func init() {
	watchPathCmd.AddCommand(watchPathAddCmd)
	watchPathCmd.AddCommand(watchPathClearCmd)
}
