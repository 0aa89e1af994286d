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
	"sort"
)

// 对象生命周期操作
//
// 引擎负责重组与分发 释放决策归使用方 以下操作全部
// 要求调用方与 Process / CheckTimeouts 串行执行

// RegisterStaticFile 登记静态 TOI 关联 信令层解析结果的落点
//
// 静态对象始终整体分发 复写时复用同一块缓冲
func (d *Demuxer) RegisterStaticFile(serviceID uint32, tsi, toi uint64, name, mime string, kind StaticKind) {
	svc := d.getOrCreateService(serviceID)
	svc.statics[objKey{tsi: tsi, toi: toi}] = staticDef{name: name, mime: mime, kind: kind}
}

// RegisterFileTemplate 登记 TSI 的文件名模板与质量标识
//
// 模板中的 $TOI$ 以对象 TOI 替换 repID 参与质量过滤
func (d *Demuxer) RegisterFileTemplate(serviceID uint32, tsi uint64, template, mime, periodID string, asID int32, repID string) {
	svc := d.getOrCreateService(serviceID)
	svc.templates[tsi] = templateDef{
		template: template,
		mime:     mime,
		periodID: periodID,
		asID:     asID,
		repID:    repID,
	}
}

// MarkActiveQuality 标记质量是否被选中
//
// 未选中质量的新对象直接丢弃 已装载对象不受影响
func (d *Demuxer) MarkActiveQuality(serviceID uint32, periodID string, asID int32, repID string, active bool) {
	svc, ok := d.services[serviceID]
	if !ok {
		return
	}
	key := qualityKey(periodID, asID, repID)
	if active {
		svc.activeQualities[key] = true
	} else {
		delete(svc.activeQualities, key)
	}
}

// RemoveObjectByName 按文件名移除对象
//
// purgePrevious 为 true 时同一 TSI 上 TOI 更小的对象一并移除
// force_keep 对象不受任何清除操作影响
func (d *Demuxer) RemoveObjectByName(serviceID uint32, name string, purgePrevious bool) error {
	svc, ok := d.services[serviceID]
	if !ok {
		return ErrNotFound
	}
	obj := svc.findByName(name)
	if obj == nil {
		return ErrNotFound
	}

	tsi, toi := obj.tsi, obj.toi
	if !obj.forceKeep {
		d.removeObject(svc, obj, false)
	}

	if purgePrevious {
		for _, o := range collectObjects(svc) {
			if o.tsi == tsi && o.toi < toi && !o.forceKeep {
				d.removeObject(svc, o, false)
			}
		}
	}
	return nil
}

// RemoveObject 按 (TSI, TOI) 移除对象 force_keep 对象不受影响
func (d *Demuxer) RemoveObject(serviceID uint32, tsi, toi uint64) error {
	svc, ok := d.services[serviceID]
	if !ok {
		return ErrNotFound
	}
	obj, ok := svc.objects[objKey{tsi: tsi, toi: toi}]
	if !ok {
		return ErrNotFound
	}
	if !obj.forceKeep {
		d.removeObject(svc, obj, false)
	}
	return nil
}

// ForceKeepObject 保护对象不被任何清除操作移除
func (d *Demuxer) ForceKeepObject(serviceID uint32, tsi, toi uint64, keep bool) error {
	svc, ok := d.services[serviceID]
	if !ok {
		return ErrNotFound
	}
	obj, ok := svc.objects[objKey{tsi: tsi, toi: toi}]
	if !ok {
		return ErrNotFound
	}
	obj.forceKeep = keep
	return nil
}

// ForceKeepObjectByName 按文件名设置保留标志
func (d *Demuxer) ForceKeepObjectByName(serviceID uint32, name string, keep bool) error {
	svc, ok := d.services[serviceID]
	if !ok {
		return ErrNotFound
	}
	obj := svc.findByName(name)
	if obj == nil {
		return ErrNotFound
	}
	obj.forceKeep = keep
	return nil
}

// RemoveFirstObject 移除最老的对象 腾出内存
//
// 按 TOI 再按创建顺序排序 下载途中与保留对象不参与
// 返回 ErrNotFound 表示没有可移除对象
func (d *Demuxer) RemoveFirstObject(serviceID uint32) error {
	svc, ok := d.services[serviceID]
	if !ok {
		return ErrNotFound
	}
	var oldest *Object
	for _, obj := range svc.objects {
		if obj.forceKeep || obj.receiving() {
			continue
		}
		if oldest == nil || obj.toi < oldest.toi ||
			(obj.toi == oldest.toi && obj.seqno < oldest.seqno) {
			oldest = obj
		}
	}
	if oldest == nil {
		return ErrNotFound
	}
	d.removeObject(svc, oldest, true)
	return nil
}

// PurgeObjects 清除服务内的非信令对象 约束内存占用
//
// 保留 TSI 0 信令 下载途中对象 每个 TSI 最近一次完成
// 分发的对象 以及 force_keep 对象 用于切清单或节目回环
func (d *Demuxer) PurgeObjects(serviceID uint32) {
	svc, ok := d.services[serviceID]
	if !ok {
		return
	}
	for _, obj := range collectObjects(svc) {
		if obj.forceKeep || obj.tsi == 0 || obj.receiving() {
			continue
		}
		if svc.delivered[obj.tsi] == obj {
			continue
		}
		d.removeObject(svc, obj, false)
	}
}

// ResetAll 清空所有服务的所有对象 包括保留对象
//
// 调谐选择与静态登记保留 用于跨节目边界的整体复位
func (d *Demuxer) ResetAll() {
	for _, svc := range d.services {
		for _, obj := range collectObjects(svc) {
			d.removeObject(svc, obj, false)
		}
		svc.firstTOIDone = make(map[uint64]bool)
	}
}

// ObjectCount 服务当前装载的对象个数 服务未发现返回 0
func (d *Demuxer) ObjectCount(serviceID uint32) int {
	if svc, ok := d.services[serviceID]; ok {
		return svc.ObjectCount()
	}
	return 0
}

// SetServiceUserData 绑定服务级使用方数据
func (d *Demuxer) SetServiceUserData(serviceID uint32, data any) error {
	svc, ok := d.services[serviceID]
	if !ok {
		return ErrNotFound
	}
	svc.userData = data
	return nil
}

// GetServiceUserData 取回服务级使用方数据
func (d *Demuxer) GetServiceUserData(serviceID uint32) (any, error) {
	svc, ok := d.services[serviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return svc.userData, nil
}

// Services 已发现的服务标识列表 升序
func (d *Demuxer) Services() []uint32 {
	ids := make([]uint32, 0, len(d.services))
	for id := range d.services {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ServiceStats 服务级计数快照
func (d *Demuxer) ServiceStats(serviceID uint32) (pkts, bytes uint64, ok bool) {
	svc, found := d.services[serviceID]
	if !found {
		return 0, 0, false
	}
	return svc.stats.pkts, svc.stats.bytes, true
}

// collectObjects 快照对象列表 避免边遍历边删除
func collectObjects(svc *Service) []*Object {
	objs := make([]*Object, 0, len(svc.objects))
	for _, obj := range svc.objects {
		objs = append(objs, obj)
	}
	return objs
}
