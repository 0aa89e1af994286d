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
	"github.com/routedmx/routedmx/internal/fasttime"
)

// 修复补丁接口
//
// 外部单播修复子系统直接写入对象共享缓冲后 通过这两个
// 操作让引擎的分片视图与缓冲尺寸保持一致 补丁必须与
// Process / CheckTimeouts 串行

// PatchFragInfo 登记一段经外部修复写入的区间
//
// 与既有分片重叠或相邻时合并 分片列表始终保持有序互不重叠
func (d *Demuxer) PatchFragInfo(serviceID uint32, tsi, toi uint64, offset, size uint64) error {
	svc, ok := d.services[serviceID]
	if !ok {
		return ErrNotFound
	}
	obj, ok := svc.objects[objKey{tsi: tsi, toi: toi}]
	if !ok {
		return ErrNotFound
	}

	// 分开判定避免 offset+size 回绕绕过上限
	if size > maxObjectSize || offset > maxObjectSize-size {
		return newError("patch range [%d, +%d) exceeds object limit", offset, size)
	}
	end := offset + size
	if need := int(end); obj.buf != nil && len(obj.buf.B) < need {
		// 修复写入发生在引擎缓冲之外时补齐长度
		if !obj.write(end-1, []byte{0}) {
			return newError("patch range [%d, %d) exceeds object limit", offset, end)
		}
	}

	obj.frags.Merge(offset, size)
	if obj.corrupted && obj.complete() {
		obj.corrupted = false
	}
	if obj.receiving() && obj.complete() {
		d.finalizeObject(svc, obj, fasttime.UnixMicro())
	}
	return nil
}

// PatchBlobSize 修复子系统重定对象总大小
//
// 这是唯一允许改写已知总大小的途径 缓冲同步扩展
func (d *Demuxer) PatchBlobSize(serviceID uint32, tsi, toi uint64, size uint64) error {
	svc, ok := d.services[serviceID]
	if !ok {
		return ErrNotFound
	}
	obj, ok := svc.objects[objKey{tsi: tsi, toi: toi}]
	if !ok {
		return ErrNotFound
	}
	if size > maxObjectSize {
		return newError("blob size %d exceeds object limit", size)
	}

	obj.totalSize = size
	if size > 0 && obj.buf != nil && uint64(len(obj.buf.B)) < size {
		if !obj.write(size-1, []byte{0}) {
			return newError("blob size %d exceeds object limit", size)
		}
	}
	if obj.receiving() && obj.complete() {
		d.finalizeObject(svc, obj, fasttime.UnixMicro())
	}
	return nil
}
