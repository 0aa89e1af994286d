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

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/routedmx/routedmx/common"
	"github.com/routedmx/routedmx/internal/fasttime"
	"github.com/routedmx/routedmx/lct"
	"github.com/routedmx/routedmx/logger"
)

// Demuxer ROUTE / DVB-MABR FLUTE 对象解复用器
//
// 单线程协作式驱动 由调用方轮询 Process 排空所有会话
// 引擎内部不加锁 多线程驱动时调用方需自行串行化所有调用
// (Process / CheckTimeouts / 生命周期操作 / 修复补丁 / 统计读取)
type Demuxer struct {
	handler  EventHandler
	sessions []*session
	services map[uint32]*Service

	mode      DispatchMode
	reorder   bool
	timeoutUS uint64

	// debugTSI 非 0 时只收集该 TSI 的对象
	debugTSI uint64

	// tuneSelection 当前调谐选择 含哨兵值
	tuneSelection uint32
	tuneOthers    bool
	scanDone      bool

	nbPkts    uint64
	nbBytes   uint64
	firstPkts uint64
	lastPkts  uint64
}

// NewDemuxer 按配置构建解复用器并打开组播会话
//
// 单条会话建立失败立即返回错误 对该会话致命 调用方可
// 修正配置重建 capture 会话由 AddSessionConn 另行挂载
func NewDemuxer(cfg Config, handler EventHandler) (*Demuxer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		handler = func(Event) {}
	}

	mode, _ := ParseDispatchMode(cfg.DispatchMode)
	d := &Demuxer{
		handler:       handler,
		services:      make(map[uint32]*Service),
		mode:          mode,
		reorder:       cfg.Reorder,
		timeoutUS:     cfg.TimeoutUS,
		tuneSelection: ServiceIDAll,
	}

	if cfg.ATSC {
		conn, err := openMulticast(common.ATSCMulticastAddr, common.ATSCMulticastPort, cfg.Interface, cfg.BufferSize)
		if err != nil {
			return nil, err
		}
		label := fmt.Sprintf("%s:%d", common.ATSCMulticastAddr, common.ATSCMulticastPort)
		d.sessions = append(d.sessions, newSession(conn, lct.ProfileROUTE, ServiceIDNone, label))
	}

	for _, sc := range cfg.Sessions {
		if sc.Capture != "" {
			continue
		}
		conn, err := openMulticast(sc.Addr, sc.Port, sc.Interface, sc.BufferSize)
		if err != nil {
			return nil, err
		}
		label := fmt.Sprintf("%s:%d", sc.Addr, sc.Port)
		d.sessions = append(d.sessions, newSession(conn, sc.LCTProfile(), sc.ServiceID, label))
	}
	return d, nil
}

// AddSessionConn 挂载一条外部构建的会话数据源
//
// capture 回放等场景使用 profile 语义同 SessionConfig.Profile
func (d *Demuxer) AddSessionConn(conn DatagramConn, profile lct.Profile, serviceID uint32, label string) {
	d.sessions = append(d.sessions, newSession(conn, profile, serviceID, label))
}

// Close 关闭所有会话 聚合每条会话的关闭错误
func (d *Demuxer) Close() error {
	var result *multierror.Error
	for _, s := range d.sessions {
		if err := s.conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Process 排空所有会话直到无数据可读
//
// 一轮下来没有读到任何数据报时返回 ErrNetworkEmpty
// 这是正常的预期返回 调用方应在首次观察到时执行一次
// CheckTimeouts 单个会话的 I/O 失败只灭活该会话
func (d *Demuxer) Process() error {
	read := false
	for {
		progress := false
		for _, s := range d.sessions {
			if !s.active {
				continue
			}
			data, err := s.conn.ReadDatagram()
			if err != nil {
				if errors.Is(err, ErrNetworkEmpty) {
					continue
				}
				logger.Errorf("session %s read failed, deactivated: %v", s.label, err)
				s.active = false
				continue
			}
			progress = true
			read = true
			d.processDatagram(s, data)
		}
		if !progress {
			break
		}
	}
	if !read {
		return ErrNetworkEmpty
	}
	return nil
}

// HasActiveMulticast 是否仍有活跃的组播会话
func (d *Demuxer) HasActiveMulticast() bool {
	for _, s := range d.sessions {
		if s.active {
			return true
		}
	}
	return false
}

// processDatagram 处理单个数据报
//
// 解码失败属于 Transient 错误 丢包继续 统计仍然更新
func (d *Demuxer) processDatagram(s *session, data []byte) {
	now := fasttime.UnixMicro()
	d.nbPkts++
	d.nbBytes += uint64(len(data))
	if d.firstPkts == 0 {
		d.firstPkts = now
	}
	d.lastPkts = now
	s.pkts++

	pkt, err := lct.DecodePacket(data, s.profile)
	if err != nil {
		logger.Debugf("session %s drop packet: %v", s.label, err)
		return
	}

	if d.debugTSI != 0 && pkt.Header.TSI != d.debugTSI {
		return
	}

	svc := d.getOrCreateService(s.serviceID)
	svc.stats.pkts++
	svc.stats.bytes += uint64(len(data))
	if svc.stats.firstPkts == 0 {
		svc.stats.firstPkts = now
	}
	svc.stats.lastPkts = now

	// close-session 当前包仍然有效 处理完后会话灭活
	if pkt.Header.CloseSession {
		defer func() { s.active = false }()
	}

	// repair 包由外部修复子系统消费 引擎只处理 source 数据
	if !pkt.Header.SourcePacket() {
		return
	}
	if !svc.tuned {
		return
	}

	d.gather(svc, pkt, now)
}

// getOrCreateService 服务发现 首次出现时通知使用方
func (d *Demuxer) getOrCreateService(id uint32) *Service {
	if svc, ok := d.services[id]; ok {
		return svc
	}

	svc := newService(id)
	d.applyTune(svc)
	d.services[id] = svc
	d.emit(Event{Type: EventServiceFound, ServiceID: id})

	if !d.scanDone {
		d.scanDone = true
		d.emit(Event{Type: EventServiceScan})
	}
	return svc
}

// applyTune 按当前调谐选择设置服务状态
func (d *Demuxer) applyTune(svc *Service) {
	switch d.tuneSelection {
	case ServiceIDNone:
		svc.tuned = false
	case ServiceIDAll:
		svc.tuned = true
		svc.manifestOnly = false
	case ServiceIDFirst:
		svc.tuned = true
		svc.manifestOnly = false
		// 第一个被发现的服务即为选择结果 后续服务按 others 处理
		d.tuneSelection = svc.id
	default:
		if svc.id == d.tuneSelection {
			svc.tuned = true
			svc.manifestOnly = false
		} else {
			svc.tuned = d.tuneOthers
			svc.manifestOnly = d.tuneOthers
		}
	}
}

// gather 将数据包并入对象重组状态
func (d *Demuxer) gather(svc *Service, pkt *lct.Packet, now uint64) {
	tsi, toi := pkt.Header.TSI, pkt.Header.TOI
	key := objKey{tsi: tsi, toi: toi}

	// 同一 TSI 上出现新 TOI 按完成策略收口前一个对象
	if prev := svc.receiving[tsi]; prev != nil && prev.toi != toi {
		switch {
		case !d.reorder && prev.ordered:
			// 按序模式 新对象的首字节意味着旧对象完结
			d.finalizeObject(svc, prev, now)
		case d.reorder && d.timeoutUS == 0:
			// 零超时 任何不延伸当前对象的包立即收口
			d.finalizeObject(svc, prev, now)
		}
	}

	obj := svc.objects[key]
	if obj == nil {
		obj = d.createObject(svc, key, now)
		if obj == nil {
			return
		}
	}

	// 静态 TOI 复写 就地重置而非新建
	if obj.static && obj.state == StateDelivered {
		obj.reset(now)
	}

	if pkt.FTI != nil {
		obj.fti = pkt.FTI
	}
	if pkt.TotalLength > 0 && obj.totalSize == 0 {
		obj.totalSize = pkt.TotalLength
	}
	if pkt.Header.Ordered() {
		obj.ordered = true
	}
	if pkt.Header.CloseObject {
		obj.closeSeen = true
	}

	offset, ok := resolveOffset(pkt, obj)
	if !ok {
		logger.Debugf("service %d tsi=%d toi=%d no fti yet, drop %d bytes", svc.id, tsi, toi, len(pkt.Payload))
		return
	}

	// 已分发的动态对象再收到新字节 迟到数据通道
	if obj.state == StateDelivered {
		if obj.frags.Merge(offset, uint64(len(pkt.Payload))) {
			if !obj.write(offset, pkt.Payload) {
				d.dropExhausted(svc, obj)
				return
			}
			d.emitLateData(svc, obj, offset)
		}
		return
	}

	if obj.state == StateOpening && len(pkt.Payload) > 0 {
		obj.state = StateReceiving
	}

	changed := obj.frags.Merge(offset, uint64(len(pkt.Payload)))
	if changed {
		if !obj.write(offset, pkt.Payload) {
			d.dropExhausted(svc, obj)
			return
		}
		obj.lastActivityUS = now
		svc.receiving[tsi] = obj
		d.dispatchPartial(svc, obj)
	}

	if obj.complete() {
		d.finalizeObject(svc, obj, now)
	}
}

// createObject 创建对象 应用调谐与质量过滤
func (d *Demuxer) createObject(svc *Service, key objKey, now uint64) *Object {
	static, isStatic := svc.statics[key]

	if !isStatic {
		if svc.manifestOnly && key.tsi != 0 {
			return nil
		}
		if tpl, ok := svc.templates[key.tsi]; ok && !svc.qualityActive(tpl) {
			return nil
		}
	}

	obj := newObject(key.tsi, key.toi, svc.nextSeqno(), now)
	if isStatic {
		obj.static = true
		obj.name = static.name
		obj.mime = static.mime
		obj.kind = static.kind
	} else if tpl, ok := svc.templates[key.tsi]; ok {
		obj.name = tolName(tpl.template, key.toi)
		obj.mime = tpl.mime
		obj.periodID = tpl.periodID
		obj.asID = tpl.asID
		obj.repID = tpl.repID
	} else {
		obj.name = tolName("", key.toi)
	}
	svc.objects[key] = obj
	return obj
}

// resolveOffset 兑现 payload 的对象内偏移
//
// FLUTE 包未携带 FTI 时回落到对象已登记的 FTI
func resolveOffset(pkt *lct.Packet, obj *Object) (uint64, bool) {
	if pkt.HasOffset {
		return pkt.StartOffset, true
	}
	if obj.fti != nil {
		return lct.ResolveOffset(pkt.PayloadID, obj.fti), true
	}
	return 0, false
}

// dropExhausted 缓冲增长超限 丢弃对象并让使用方视图保持一致
func (d *Demuxer) dropExhausted(svc *Service, obj *Object) {
	logger.Warnf("service %d object tsi=%d toi=%d exceeds buffer limit, dropped", svc.id, obj.tsi, obj.toi)
	d.removeObject(svc, obj, true)
}

// CheckTimeouts 执行一轮对象超时判定
//
// 仅应在 Process 首次返回 ErrNetworkEmpty 时调用一次
// 不允许与排空过程并发 以保证完成判定相对已处理的包是确定的
func (d *Demuxer) CheckTimeouts() {
	if !d.reorder {
		return
	}
	now := fasttime.UnixMicro()
	for _, svc := range d.services {
		// 同一 TSI 上可能有多个对象在途 被新 TOI 顶替的旧对象
		// 也要参与超时判定
		for _, obj := range collectObjects(svc) {
			if !obj.receiving() {
				continue
			}
			if now-obj.lastActivityUS >= d.timeoutUS {
				d.finalizeObject(svc, obj, now)
			}
		}
	}
}

// SetReorder 切换完成策略
//
// reorderNeeded 为 true 时忽略 LCT 按序标志 对象按静默超时
// 收口 timeoutUS 为 0 表示任何不延伸当前对象的包立即收口
func (d *Demuxer) SetReorder(reorderNeeded bool, timeoutUS uint64) {
	d.reorder = reorderNeeded
	d.timeoutUS = timeoutUS
}

// SetDispatchMode 切换分发模式 静态 TOI 对象不受影响
func (d *Demuxer) SetDispatchMode(mode DispatchMode) {
	d.mode = mode
}

// DebugTSI 只收集指定 TSI 的对象 0 取消过滤
func (d *Demuxer) DebugTSI(tsi uint64) {
	d.debugTSI = tsi
}

// TuneIn 选择要接收的服务
//
// serviceID 支持哨兵值 ServiceIDNone / ServiceIDAll / ServiceIDFirst
// tuneOthers 为 true 时未选中的服务仍接收 TSI 0 信令以获取清单
func (d *Demuxer) TuneIn(serviceID uint32, tuneOthers bool) {
	d.tuneSelection = serviceID
	d.tuneOthers = tuneOthers
	if serviceID == ServiceIDFirst {
		// 已发现多个服务时取编号最小的 结果与 map 遍历顺序无关
		if ids := d.Services(); len(ids) > 0 {
			d.tuneSelection = ids[0]
		}
	}
	for _, svc := range d.services {
		d.applyTune(svc)
	}
}

// FindService 服务是否已被发现
func (d *Demuxer) FindService(serviceID uint32) bool {
	_, ok := d.services[serviceID]
	return ok
}

// FirstPacketTime 首个数据报到达时刻 (µs)
func (d *Demuxer) FirstPacketTime() uint64 { return d.firstPkts }

// LastPacketTime 最近一个数据报到达时刻 (µs)
func (d *Demuxer) LastPacketTime() uint64 { return d.lastPkts }

// PacketCount 累计接收的数据报个数
func (d *Demuxer) PacketCount() uint64 { return d.nbPkts }

// RecvBytes 累计接收字节数
func (d *Demuxer) RecvBytes() uint64 { return d.nbBytes }
