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

import (
	"time"

	"github.com/routedmx/routedmx/common"
	"github.com/routedmx/routedmx/confengine"
	"github.com/routedmx/routedmx/logger"
	"github.com/routedmx/routedmx/route"
)

// Exporter 将对象事件写入配置的出口
//
// Export 在事件回调栈内同步执行 sinker 自身不做缓冲时
// 写入耗时会反压到解复用循环
type Exporter struct {
	conf Config

	objectsSinker Sinker
	filesSinker   Sinker
}

// FileData 对象落盘 sinker 的输入
type FileData struct {
	Service  uint32
	Filename string
	Blob     []byte
	Partial  bool
}

func New(conf *confengine.Config) (*Exporter, error) {
	var cfg Config
	if conf.Has("exporter") {
		if err := conf.UnpackChild("exporter", &cfg); err != nil {
			return nil, err
		}
	}

	var err error
	var objectsSinker Sinker
	if cfg.Objects.Enabled {
		f := Get(common.RecordObjects)
		if objectsSinker, err = f(cfg); err != nil {
			return nil, err
		}
	}

	var filesSinker Sinker
	if cfg.Files.Enabled {
		f := Get(common.RecordFiles)
		if filesSinker, err = f(cfg); err != nil {
			return nil, err
		}
	}

	return &Exporter{
		conf:          cfg,
		objectsSinker: objectsSinker,
		filesSinker:   filesSinker,
	}, nil
}

func (e *Exporter) Close() {
	if e.conf.Objects.Enabled {
		e.objectsSinker.Close()
	}
	if e.conf.Files.Enabled {
		e.filesSinker.Close()
	}
}

// Export 消费一次解复用事件
//
// 只关注对象完成类事件 中途分片与服务发现不导出
func (e *Exporter) Export(evt route.Event) {
	switch evt.Type {
	case route.EventMPD, route.EventHLSVariant, route.EventFile, route.EventDynSegment:
	default:
		return
	}
	fi := evt.FileInfo
	if fi == nil {
		return
	}

	if e.conf.Objects.Enabled {
		rec := ObjectRecord{
			Time:       time.Now().Format(time.RFC3339Nano),
			Event:      evt.Type.String(),
			Service:    evt.ServiceID,
			TSI:        fi.TSI,
			TOI:        fi.TOI,
			Filename:   fi.Filename,
			Mime:       fi.Mime,
			Size:       len(fi.Blob),
			TotalSize:  fi.TotalSize,
			DownloadUS: fi.DownloadUS,
			Partial:    fi.Partial.String(),
			NbFrags:    fi.NbFrags,
			Updated:    fi.Updated,
		}
		if err := e.objectsSinker.Sink(rec); err != nil {
			logger.Errorf("sink object record failed: %v", err)
		}
	}

	if e.conf.Files.Enabled {
		data := FileData{
			Service:  evt.ServiceID,
			Filename: fi.Filename,
			Blob:     fi.Blob,
			Partial:  fi.Partial != route.PartialNone,
		}
		if err := e.filesSinker.Sink(data); err != nil {
			logger.Errorf("sink object file failed: %v", err)
		}
	}
}
