// Copyright 2024 Google Inc. All Rights Reserved.
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

// Package cmd implements lazycopyctl's command tree: a root cobra
// command plus a "serve" subcommand that runs the engine, and a
// handful of policy-mutating subcommands that are, from the wire's
// point of view, ordinary short-lived clients of the same demand
// helper channel (internal/helper) a real out-of-band helper process
// would use.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lazycopy/lazycopy/internal/helper"
	"github.com/lazycopy/lazycopy/internal/policyconfig"
)

const (
	// DefaultChannelNetwork and DefaultChannelAddress name the one
	// well-known channel: a single listener the serve subcommand binds
	// and every other subcommand dials as a throwaway client.
	DefaultChannelNetwork = "unix"
	DefaultChannelAddress = "/var/run/lazycopy/engine.sock"

	// commandTimeout bounds a CLI subcommand's single request/reply
	// round trip over the helper channel.
	commandTimeout = 5 * time.Second
)

var (
	cfgFile       string
	channelNet    string
	channelAddr   string
	bindErr       error
	configFileErr error
)

var rootCmd = &cobra.Command{
	Use:   "lazycopyctl",
	Short: "Inspect and control a running lazycopy interception engine",
	Long: `lazycopyctl talks to a running lazycopy engine over its demand
helper channel: the same request/reply protocol the engine uses for
remote-open brokering, used here for policy inspection and mutation
instead.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		return nil
	},
}

// Execute runs the command tree, printing any error and exiting
// non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a policy config file")
	rootCmd.PersistentFlags().StringVar(&channelNet, "channel-network", DefaultChannelNetwork, "Transport for the helper channel (unix, tcp)")
	rootCmd.PersistentFlags().StringVar(&channelAddr, "channel-address", DefaultChannelAddress, "Address of the running engine's helper channel")

	bindErr = policyconfig.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(reloadPolicyCmd)
	rootCmd.AddCommand(setModeCmd)
	rootCmd.AddCommand(setReportRateCmd)
	rootCmd.AddCommand(watchPathCmd)
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
	}
}

// dialControlClient opens a short-lived connection to the running
// engine's helper channel for a single command. It never answers
// OpenRemote/CloseRemote notifications (nil callbacks): the channel
// permits only one connected client, so a CLI invocation and a real
// helper process contend for the same slot, by design.
func dialControlClient() (*helper.Client, error) {
	return helper.Dial(channelNet, channelAddr, nil, nil)
}
