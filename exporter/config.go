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

package exporter

type Config struct {
	Objects ObjectsConfig `config:"objects"`
	Files   FilesConfig   `config:"files"`
}

// ObjectsConfig 对象接收记录导出配置
type ObjectsConfig struct {
	Enabled    bool   `config:"enabled"`
	Console    bool   `config:"console"`
	Filename   string `config:"filename"`
	MaxSize    int    `config:"maxSize"`
	MaxBackups int    `config:"maxBackups"`
	MaxAge     int    `config:"maxAge"`
}

func (oc *ObjectsConfig) Validate() {
	if oc.Filename == "" {
		oc.Filename = "objects.log"
	}
	if oc.MaxSize <= 0 {
		oc.MaxSize = 100
	}
	if oc.MaxAge <= 0 {
		oc.MaxAge = 7
	}
	if oc.MaxBackups <= 0 {
		oc.MaxBackups = 10
	}
}

// FilesConfig 对象落盘导出配置
type FilesConfig struct {
	Enabled bool `config:"enabled"`
	// Dir 输出目录 对象按 <dir>/<service>/<filename> 写入
	Dir string `config:"dir"`
	// Partial 是否连残缺对象一并落盘
	Partial bool `config:"partial"`
}

func (fc *FilesConfig) Validate() {
	if fc.Dir == "" {
		fc.Dir = "objects"
	}
}
