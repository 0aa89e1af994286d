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
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"

	"github.com/routedmx/routedmx/internal/rangeset"
	"github.com/routedmx/routedmx/lct"
)

// ObjectState 对象生命周期状态
type ObjectState uint8

const (
	// StateOpening 首个分片已出现 对象刚分配
	StateOpening ObjectState = iota
	// StateReceiving 持续接收中
	StateReceiving
	// StateCompleting 完成判定已触发 等待分发
	StateCompleting
	// StateDelivered 已分发 TSI/TOI 保留用于去重与修复
	StateDelivered
	// StateRemoved 已驱逐
	StateRemoved
)

func (s ObjectState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateReceiving:
		return "receiving"
	case StateCompleting:
		return "completing"
	case StateDelivered:
		return "delivered"
	case StateRemoved:
		return "removed"
	}
	return "unknown"
}

// objKey 服务内对象标识
type objKey struct {
	tsi uint64
	toi uint64
}

// maxObjectSize 单对象缓冲上限
//
// 面向未鉴权的网络输入 防止伪造 TOL/FTI 触发超量分配
const maxObjectSize = 512 << 20

// Object 服务内通过 (TSI, TOI) 标识的一次对象接收
//
// 对象独占其字节缓冲与分片列表 分发回调期间与使用方共享
type Object struct {
	tsi uint64
	toi uint64

	state ObjectState
	// seqno 创建顺序 remove_first 在 TOI 相同排序时使用
	seqno uint64

	// static 静态 TOI 约定 同一 TOI 的复写对象 始终整体分发
	static bool
	name   string
	mime   string
	kind   StaticKind

	// totalSize 已知对象总大小 0 为未知 一经得知不再减小
	// 只有修复补丁允许改写
	totalSize uint64

	frags *rangeset.Set
	buf   *bytebufferpool.ByteBuffer

	// startUS 首分片到达时刻 lastActivityUS 最近一次新分片时刻
	startUS        uint64
	lastActivityUS uint64
	downloadUS     uint64

	forceKeep bool
	updated   bool
	// prevSum 上一版本内容摘要 静态 TOI 复写时判定内容是否变化
	prevSum    uint64
	hasPrevSum bool

	// ordered 本对象的包携带过按序发送承诺
	ordered bool
	// closeSeen 收到过 close-object 标志
	closeSeen bool
	// corrupted 完成判定时数据仍有缺失
	corrupted bool

	// dispatchedPrefix 渐进分发已交付的前缀长度
	dispatchedPrefix uint64

	// fti FLUTE 下登记的 FEC 传输信息 用于兑现 SBN/ESI 偏移
	fti *lct.FTIExt

	periodID string
	asID     int32
	repID    string

	userData any
}

func newObject(tsi, toi, seqno, nowUS uint64) *Object {
	return &Object{
		tsi:            tsi,
		toi:            toi,
		seqno:          seqno,
		state:          StateOpening,
		frags:          rangeset.New(),
		buf:            bytebufferpool.Get(),
		startUS:        nowUS,
		lastActivityUS: nowUS,
		asID:           -1,
	}
}

// reset 静态 TOI 复写时就地重置 保留名字与保留标志
func (o *Object) reset(nowUS uint64) {
	o.frags.Reset()
	o.buf.Reset()
	o.state = StateOpening
	o.totalSize = 0
	o.startUS = nowUS
	o.lastActivityUS = nowUS
	o.downloadUS = 0
	o.closeSeen = false
	o.corrupted = false
	o.dispatchedPrefix = 0
}

// free 归还缓冲 对象进入终态
func (o *Object) free() {
	if o.buf != nil {
		bytebufferpool.Put(o.buf)
		o.buf = nil
	}
	o.state = StateRemoved
}

// write 将 payload 写入对象缓冲的指定偏移 必要时扩容
//
// 返回 false 表示超出单对象上限 调用方应丢弃该对象
func (o *Object) write(offset uint64, payload []byte) bool {
	end := offset + uint64(len(payload))
	if end > maxObjectSize {
		return false
	}
	if need := int(end); len(o.buf.B) < need {
		if cap(o.buf.B) >= need {
			o.buf.B = o.buf.B[:need]
		} else {
			grown := make([]byte, need)
			copy(grown, o.buf.B)
			o.buf.B = grown
		}
	}
	copy(o.buf.B[offset:end], payload)
	return true
}

// receiving 对象是否处于下载途中
func (o *Object) receiving() bool {
	return o.state == StateOpening || o.state == StateReceiving
}

// complete 是否已能断定接收完整
func (o *Object) complete() bool {
	if o.totalSize > 0 {
		return o.frags.CoversWhole(o.totalSize)
	}
	// 总大小从未被通告 只能依赖 close 标志加连续性
	if o.closeSeen {
		end := o.frags.End()
		return end > 0 && o.frags.ContiguousFromZero() == end
	}
	return false
}

// fileInfo 构造分发视图 blob 长度由分发模式决定
func (o *Object) fileInfo(partial Partial, firstTOI bool) *FileInfo {
	fi := &FileInfo{
		Filename:         o.name,
		Mime:             o.mime,
		TotalSize:        o.totalSize,
		TSI:              o.tsi,
		TOI:              o.toi,
		StartTime:        o.startUS,
		DownloadUS:       o.downloadUS,
		Updated:          o.updated,
		FirstTOIReceived: firstTOI,
		Frags:            o.frags.Ranges(),
		NbFrags:          o.frags.Len(),
		DashPeriodID:     o.periodID,
		DashASID:         o.asID,
		DashRepID:        o.repID,
		Partial:          partial,
		UserData:         o.userData,
	}
	if o.buf != nil {
		fi.Blob = o.buf.B
	}
	return fi
}

// tolName TOI 模板替换 未登记模板时生成默认名
func tolName(template string, toi uint64) string {
	if template == "" {
		return "toi-" + strconv.FormatUint(toi, 10)
	}
	return strings.ReplaceAll(template, "$TOI$", strconv.FormatUint(toi, 10))
}
