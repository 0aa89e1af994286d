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
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/routedmx/routedmx/common"
	"github.com/routedmx/routedmx/confengine"
	"github.com/routedmx/routedmx/controller"
	"github.com/routedmx/routedmx/internal/sigs"
)

type replayCmdConfig struct {
	File    string
	Addr    string
	Port    int
	Profile string
	Mode    string
	Out     string
	Save    bool
}

// Yaml 由命令行参数生成等价的配置文件内容
func (c *replayCmdConfig) Yaml() []byte {
	text := `
controller:
  pollInterval: 1ms

logger:
  stdout: true
  level: info

route:
  dispatchMode: {{ .Mode }}
  sessions:
    - capture: {{ .File }}
      addr: "{{ .Addr }}"
      port: {{ .Port }}
      profile: {{ .Profile }}

exporter:
  objects:
    enabled: true
    console: true
  files:
    enabled: {{ .Save }}
    dir: {{ .Out }}
`
	tpl, err := template.New("replay").Parse(text)
	if err != nil {
		panic(err)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, c); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a pcap file and dump received objects",
	Run: func(cmd *cobra.Command, args []string) {
		if replayConfig.File == "" {
			fmt.Fprintln(os.Stderr, "--file is required")
			os.Exit(1)
		}

		cfg, err := confengine.LoadContent(replayConfig.Yaml())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build config: %v\n", err)
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

		<-sigs.Terminate()
		ctr.Stop()
	},
}

var replayConfig replayCmdConfig

func init() {
	replayCmd.Flags().StringVar(&replayConfig.File, "file", "", "pcap file to replay")
	replayCmd.Flags().StringVar(&replayConfig.Addr, "addr", "", "multicast address filter")
	replayCmd.Flags().IntVar(&replayConfig.Port, "port", 0, "destination port filter")
	replayCmd.Flags().StringVar(&replayConfig.Profile, "profile", "route", "payload profile (route / flute)")
	replayCmd.Flags().StringVar(&replayConfig.Mode, "mode", "full", "dispatch mode (full / progressive / out_of_order)")
	replayCmd.Flags().StringVar(&replayConfig.Out, "out", "objects", "output directory for received objects")
	replayCmd.Flags().BoolVar(&replayConfig.Save, "save", false, "write received objects to disk")
	rootCmd.AddCommand(replayCmd)
}
