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

package files

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/routedmx/routedmx/common"
	"github.com/routedmx/routedmx/exporter"
)

func init() {
	exporter.Register(common.RecordFiles, New)
}

// Sinker 对象落盘出口 按 <dir>/<service>/<filename> 组织
type Sinker struct {
	cfg *exporter.FilesConfig
}

func New(conf exporter.Config) (exporter.Sinker, error) {
	cfg := &conf.Files
	cfg.Validate()

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.WithMessagef(err, "exporter: mkdir %s", cfg.Dir)
	}
	return &Sinker{cfg: cfg}, nil
}

func (s *Sinker) Name() common.RecordType {
	return common.RecordFiles
}

func (s *Sinker) Sink(data any) error {
	fd, ok := data.(exporter.FileData)
	if !ok {
		return nil
	}
	if fd.Partial && !s.cfg.Partial {
		return nil
	}

	path := filepath.Join(s.cfg.Dir, strconv.FormatUint(uint64(fd.Service), 10), sanitize(fd.Filename))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, fd.Blob, 0o644)
}

func (s *Sinker) Close() {}

// sanitize 文件名来自网络信令 不允许逃出输出目录
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	parts := strings.Split(name, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return "unnamed"
	}
	return filepath.Join(kept...)
}
