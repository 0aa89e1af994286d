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
	"github.com/cespare/xxhash/v2"

	"github.com/routedmx/routedmx/internal/rescue"
)

// emit 同步调用事件回调 回调内的 panic 不允许击穿引擎
//
// 带文件信息的事件在回调返回后回收 UserData 这是使用方
// 向后续事件传递状态的唯一通道
func (d *Demuxer) emit(evt Event) {
	defer rescue.HandleCrash()
	d.handler(evt)

	if evt.FileInfo == nil {
		return
	}
	if svc, ok := d.services[evt.ServiceID]; ok {
		if obj, ok := svc.objects[objKey{tsi: evt.FileInfo.TSI, toi: evt.FileInfo.TOI}]; ok {
			obj.userData = evt.FileInfo.UserData
		}
	}
}

// dispatchPartial 新分片并入后的中途分发
//
// 静态 TOI 对象只做整体分发 不产生中途事件
func (d *Demuxer) dispatchPartial(svc *Service, obj *Object) {
	if obj.static {
		return
	}

	switch d.mode {
	case DispatchProgressive:
		// 仅当从 0 开始的连续前缀增长时通知 数据无空洞
		prefix := obj.frags.ContiguousFromZero()
		if prefix <= obj.dispatchedPrefix {
			return
		}
		obj.dispatchedPrefix = prefix
		fi := obj.fileInfo(PartialBegin, svc.firstTOIDone[obj.tsi])
		fi.Blob = fi.Blob[:prefix]
		d.emit(Event{Type: EventDynSegmentFrag, ServiceID: svc.id, FileInfo: fi})

	case DispatchOutOfOrder:
		fi := obj.fileInfo(PartialAny, svc.firstTOIDone[obj.tsi])
		d.emit(Event{Type: EventDynSegmentFrag, ServiceID: svc.id, FileInfo: fi})
	}
}

// emitLateData 已分发对象又收到新数据
func (d *Demuxer) emitLateData(svc *Service, obj *Object, offset uint64) {
	fi := obj.fileInfo(PartialNone, svc.firstTOIDone[obj.tsi])
	fi.LateFragmentOffset = offset
	d.emit(Event{Type: EventLateData, ServiceID: svc.id, FileInfo: fi})
}

// finalizeObject 对象完成判定通过或被超时收口 产生最终通知
//
// 同一个对象只会走到这里一次 残缺对象以 Partial 标记反映
func (d *Demuxer) finalizeObject(svc *Service, obj *Object, now uint64) {
	if !obj.receiving() && obj.state != StateCompleting {
		return
	}
	obj.state = StateCompleting
	obj.downloadUS = now - obj.startUS

	complete := obj.complete()
	obj.corrupted = !complete

	partial := PartialNone
	if !complete {
		if obj.frags.Len() <= 1 && obj.frags.ContiguousFromZero() > 0 {
			partial = PartialBegin
		} else {
			partial = PartialAny
		}
	}

	// 静态 TOI 复写 内容摘要变化才置 Updated
	if obj.static {
		sum := xxhash.Sum64(obj.buf.B)
		obj.updated = !obj.hasPrevSum || sum != obj.prevSum
		obj.prevSum = sum
		obj.hasPrevSum = true
	} else {
		obj.updated = true
	}

	firstTOI := svc.firstTOIDone[obj.tsi]
	fi := obj.fileInfo(partial, firstTOI)
	if partial == PartialBegin {
		fi.Blob = fi.Blob[:obj.frags.ContiguousFromZero()]
	}

	evtType := EventDynSegment
	if obj.static {
		switch obj.kind {
		case StaticManifest:
			evtType = EventMPD
		case StaticHLSVariant:
			evtType = EventHLSVariant
		default:
			evtType = EventFile
		}
	}

	obj.state = StateDelivered
	if svc.receiving[obj.tsi] == obj {
		delete(svc.receiving, obj.tsi)
	}
	svc.delivered[obj.tsi] = obj
	if !obj.static {
		svc.firstTOIDone[obj.tsi] = true
	}

	d.emit(Event{Type: evtType, ServiceID: svc.id, FileInfo: fi})
}

// removeObject 从服务驱逐对象并回收缓冲
//
// notify 为 true 时通知使用方该对象不再可用
func (d *Demuxer) removeObject(svc *Service, obj *Object, notify bool) {
	key := objKey{tsi: obj.tsi, toi: obj.toi}
	delete(svc.objects, key)
	if svc.receiving[obj.tsi] == obj {
		delete(svc.receiving, obj.tsi)
	}
	if svc.delivered[obj.tsi] == obj {
		delete(svc.delivered, obj.tsi)
	}

	if notify {
		fi := &FileInfo{
			Filename: obj.name,
			TSI:      obj.tsi,
			TOI:      obj.toi,
			UserData: obj.userData,
		}
		d.emit(Event{Type: EventFileDelete, ServiceID: svc.id, FileInfo: fi})
	}
	obj.free()
}
