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
	"github.com/routedmx/routedmx/internal/rangeset"
)

// EventType 解复用器向使用方通知的事件类型
type EventType uint8

const (
	// EventServiceFound 发现新服务 无文件信息
	EventServiceFound EventType = iota
	// EventServiceScan 服务扫描完成 无文件信息
	EventServiceScan
	// EventMPD 服务的 MPD 或 HLS master playlist 更新
	EventMPD
	// EventHLSVariant HLS variant playlist 更新
	EventHLSVariant
	// EventFile 静态 TOI 关联的文件更新
	EventFile
	// EventDynSegment 通过文件模板识别的媒体分段接收完成
	EventDynSegment
	// EventDynSegmentFrag 分段的部分数据可用 渐进模式携带从对象
	// 起始连续的前缀 乱序模式携带可能带洞的整块缓冲 以 FileInfo
	// 的 Partial 标记区分 (PartialBegin / PartialAny)
	EventDynSegmentFrag
	// EventFileDelete 对象被删除 通知缓存该对象不再可用
	EventFileDelete
	// EventLateData 对象完成分发后又收到数据
	EventLateData
)

func (e EventType) String() string {
	switch e {
	case EventServiceFound:
		return "service_found"
	case EventServiceScan:
		return "service_scan"
	case EventMPD:
		return "mpd"
	case EventHLSVariant:
		return "hls_variant"
	case EventFile:
		return "file"
	case EventDynSegment:
		return "dyn_segment"
	case EventDynSegmentFrag:
		return "dyn_segment_frag"
	case EventFileDelete:
		return "file_delete"
	case EventLateData:
		return "late_data"
	}
	return "unknown"
}

// Partial 部分分发状态标记
type Partial uint8

const (
	// PartialNone 对象接收完毕
	PartialNone Partial = iota
	// PartialBegin 本次通知的数据为对象从 0 开始的连续前缀
	PartialBegin
	// PartialAny 本次通知的数据为当前完整接收缓冲 可能带空洞
	PartialAny
)

func (p Partial) String() string {
	switch p {
	case PartialNone:
		return "none"
	case PartialBegin:
		return "begin"
	case PartialAny:
		return "any"
	}
	return "unknown"
}

// FileInfo 事件携带的对象属性
//
// Blob 与正在重组的对象共享内存 仅在回调期间有效
// 回调返回后引擎可能对其扩容或回收 使用方需要跨回调
// 持有数据时应当自行拷贝 或对该对象设置 force_keep
type FileInfo struct {
	// Filename 对象文件名 模板对象经 $TOI$ 替换得到
	Filename string
	// Mime MIME 类型 未知为空
	Mime string
	// Blob 共享数据缓冲
	Blob []byte
	// TotalSize 对象总大小 未知为 0
	TotalSize uint64
	TSI       uint64
	TOI       uint64
	// StartTime 首个分片到达时刻 (µs)
	StartTime uint64
	// DownloadUS 下载耗时 (µs)
	DownloadUS uint64
	// Updated 文件内容发生过变化 EventDynSegment 恒为 true 不单独设置
	Updated bool
	// FirstTOIReceived 该 TSI 上已有分段完成接收 init segment 不计入
	FirstTOIReceived bool

	// Frags 已接收区间视图 与重组状态共享 不允许并发修改
	// 修复后的重分配必须经 PatchFragInfo 完成
	Frags []rangeset.Range
	// NbFrags 区间个数
	NbFrags int

	// LateFragmentOffset 迟到数据的偏移 仅 EventLateData 有效
	LateFragmentOffset uint64

	// DashPeriodID DASH Period ID 非 DASH 为空
	DashPeriodID string
	// DashASID DASH AdaptationSet ID 缺省 -1
	DashASID int32
	// DashRepID DASH Representation ID 或 HLS variant 名称
	DashRepID string

	// Partial 分发状态 完成类事件上反映接收是否残缺
	Partial Partial

	// UserData 使用方在回调内设置 同一对象的后续事件原样带回
	// 这是引擎与使用方之间唯一的双向通道
	UserData any
}

// Event 一次不可变的事件通知
type Event struct {
	Type      EventType
	ServiceID uint32
	FileInfo  *FileInfo
}

// EventHandler 事件回调
//
// 回调在 Process / CheckTimeouts 调用栈内同步执行 不允许阻塞
type EventHandler func(evt Event)
