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

package route

import (
	"fmt"
)

// 服务标识哨兵值
const (
	// ServiceIDNone 未选择任何服务
	ServiceIDNone uint32 = 0
	// ServiceIDAll 选择所有服务
	ServiceIDAll uint32 = 0xFFFFFFFF
	// ServiceIDFirst 选择发现的第一个服务
	ServiceIDFirst uint32 = 0xFFFFFFFE
)

// StaticKind 静态 TOI 登记对象的类别 决定分发事件类型
type StaticKind uint8

const (
	// StaticFile 普通静态文件
	StaticFile StaticKind = iota
	// StaticManifest MPD 或 HLS master playlist
	StaticManifest
	// StaticHLSVariant HLS variant playlist
	StaticHLSVariant
)

// staticDef 信令层登记的静态 TOI 关联
type staticDef struct {
	name string
	mime string
	kind StaticKind
}

// templateDef 信令层登记的 TSI 文件模板与质量标识
type templateDef struct {
	template string
	mime     string
	periodID string
	asID     int32
	repID    string
}

// qualityKey DASH Representation / HLS variant 的唯一标识
func qualityKey(periodID string, asID int32, repID string) string {
	return fmt.Sprintf("%s|%d|%s", periodID, asID, repID)
}

// serviceStats 服务聚合统计
type serviceStats struct {
	pkts      uint64
	bytes     uint64
	firstPkts uint64
	lastPkts  uint64
}

// Service 一个逻辑广播服务
//
// 独占其对象表 对象经 (TSI, TOI) 寻址
type Service struct {
	id    uint32
	tuned bool
	// manifestOnly tune_others 场景 只收 TSI 0 信令
	manifestOnly bool

	userData any

	objects map[objKey]*Object
	// receiving 每个 TSI 当前正在接收的对象
	receiving map[uint64]*Object
	// delivered 每个 TSI 最近一次完成分发的对象
	delivered map[uint64]*Object
	// firstTOIDone 每个 TSI 是否已有分段完成
	firstTOIDone map[uint64]bool

	statics   map[objKey]staticDef
	templates map[uint64]templateDef

	// activeQualities 被选中的质量集合 空集合表示不过滤
	activeQualities map[string]bool

	stats serviceStats
	seqno uint64
}

func newService(id uint32) *Service {
	return &Service{
		id:              id,
		objects:         make(map[objKey]*Object),
		receiving:       make(map[uint64]*Object),
		delivered:       make(map[uint64]*Object),
		firstTOIDone:    make(map[uint64]bool),
		statics:         make(map[objKey]staticDef),
		templates:       make(map[uint64]templateDef),
		activeQualities: make(map[string]bool),
	}
}

// ID 服务标识
func (s *Service) ID() uint32 {
	return s.id
}

// ObjectCount 当前装载的对象个数
func (s *Service) ObjectCount() int {
	return len(s.objects)
}

// findByName 按文件名查找对象
func (s *Service) findByName(name string) *Object {
	for _, obj := range s.objects {
		if obj.name == name {
			return obj
		}
	}
	return nil
}

// qualityActive 返回模板对应的质量是否被选中
//
// 未标记过任何质量时不过滤
func (s *Service) qualityActive(tpl templateDef) bool {
	if len(s.activeQualities) == 0 {
		return true
	}
	if tpl.repID == "" {
		return true
	}
	return s.activeQualities[qualityKey(tpl.periodID, tpl.asID, tpl.repID)]
}

// nextSeqno 对象创建序号
func (s *Service) nextSeqno() uint64 {
	s.seqno++
	return s.seqno
}
