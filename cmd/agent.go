// Copyright 2026 The routedmx Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/routedmx/routedmx/common"
	"github.com/routedmx/routedmx/confengine"
	"github.com/routedmx/routedmx/controller"
	"github.com/routedmx/routedmx/internal/sigs"
	"github.com/routedmx/routedmx/logger"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run routedmx as a multicast receiver agent",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		ctr, err := controller.New(cfg, common.GetBuildInfo())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create controller: %v\n", err)
			os.Exit(1)
		}
		if err := ctr.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start controller: %v\n", err)
			os.Exit(1)
		}

		term := sigs.Terminate()
		reload := sigs.Reload()
		for {
			select {
			case <-reload:
				cfg, err := confengine.LoadConfigPath(configPath)
				if err != nil {
					logger.Errorf("reload config failed: %v", err)
					continue
				}
				if err := ctr.Reload(cfg); err != nil {
					logger.Errorf("reload controller failed: %v", err)
				}

			case <-term:
				ctr.Stop()
				return
			}
		}
	},
}

var configPath string

func init() {
	agentCmd.Flags().StringVar(&configPath, "config", "routedmx.yaml", "Configuration file path")
	rootCmd.AddCommand(agentCmd)
}
