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

	"github.com/spf13/cobra"

	"github.com/lazycopy/lazycopy/internal/helper"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the running engine's helper channel version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialControlClient()
		if err != nil {
			return err
		}
		defer client.Close()

		reply, err := client.SendCommand(helper.MsgGetVersion, nil, commandTimeout)
		if err != nil {
			return err
		}
		v, err := helper.DecodeVersion(reply.Data)
		if err != nil {
			return err
		}
		fmt.Printf("engine helper channel version %d.%d\n", v.Major, v.Minor)
		return nil
	},
}
