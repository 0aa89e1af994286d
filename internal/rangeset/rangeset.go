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

package rangeset

import (
	"fmt"
	"sort"
	"strings"
)

// Range 描述对象内一段已接收的连续字节区间
//
// 区间只描述收到的数据 永远不描述空洞
type Range struct {
	Offset uint64
	Size   uint64
}

// End 返回区间的结束偏移 (不含)
func (r Range) End() uint64 {
	return r.Offset + r.Size
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Offset, r.End())
}

// Set 维护有序且两两不相交的区间集合
//
// 所有操作均保证以下不变量
// * 区间按 Offset 升序排列
// * 任意两个区间既不重叠也不相邻 (相邻的会被合并成一个)
//
// Merge 对任意到达顺序满足交换律 对重复数据满足幂等性
type Set struct {
	ranges []Range
}

// New 创建空区间集合
func New() *Set {
	return &Set{}
}

// Merge 将 [offset, offset+size) 并入集合
//
// 与既有区间重叠或相邻时就地合并 复杂度 O(log n + k)
// k 为本次合并波及的区间个数
//
// 返回是否有新字节被覆盖 重传已收到的字节返回 false
func (s *Set) Merge(offset, size uint64) bool {
	if size == 0 {
		return false
	}
	end := offset + size
	n := len(s.ranges)

	// 定位第一个结束位置不早于 offset 的区间 即第一个可能参与合并的区间
	i := sort.Search(n, func(k int) bool {
		return s.ranges[k].End() >= offset
	})

	// 落在所有区间之后 直接追加
	if i == n {
		s.ranges = append(s.ranges, Range{Offset: offset, Size: size})
		return true
	}

	// 整体处于 ranges[i] 之前且不相邻 插入即可
	if end < s.ranges[i].Offset {
		s.ranges = append(s.ranges, Range{})
		copy(s.ranges[i+1:], s.ranges[i:])
		s.ranges[i] = Range{Offset: offset, Size: size}
		return true
	}

	// 与 ranges[i:j) 发生重叠或相邻 合并为单个区间
	newOff := offset
	if s.ranges[i].Offset < newOff {
		newOff = s.ranges[i].Offset
	}
	newEnd := end
	covered := false
	j := i
	for j < n && s.ranges[j].Offset <= end {
		if s.ranges[j].Offset <= offset && s.ranges[j].End() >= end {
			covered = true
		}
		if s.ranges[j].End() > newEnd {
			newEnd = s.ranges[j].End()
		}
		j++
	}

	s.ranges[i] = Range{Offset: newOff, Size: newEnd - newOff}
	s.ranges = append(s.ranges[:i+1], s.ranges[j:]...)
	return !covered
}

// Covers 返回 [offset, offset+size) 是否已全部接收
func (s *Set) Covers(offset, size uint64) bool {
	if size == 0 {
		return true
	}
	end := offset + size
	for _, r := range s.ranges {
		if r.Offset > offset {
			return false
		}
		if r.End() >= end {
			return true
		}
	}
	return false
}

// ContiguousFromZero 返回从偏移 0 开始连续可用的字节数
//
// 首个区间不从 0 开始时返回 0 该值是渐进式分发的依据
func (s *Set) ContiguousFromZero() uint64 {
	if len(s.ranges) == 0 || s.ranges[0].Offset != 0 {
		return 0
	}
	return s.ranges[0].Size
}

// CoversWhole 返回集合是否恰好覆盖 [0, total)
func (s *Set) CoversWhole(total uint64) bool {
	if total == 0 {
		return false
	}
	return len(s.ranges) == 1 && s.ranges[0].Offset == 0 && s.ranges[0].Size == total
}

// Total 返回已接收的字节总数
func (s *Set) Total() uint64 {
	var total uint64
	for _, r := range s.ranges {
		total += r.Size
	}
	return total
}

// Holes 返回 [0, total) 内尚未接收的区间 供修复方定位缺口
func (s *Set) Holes(total uint64) []Range {
	var holes []Range
	var pos uint64
	for _, r := range s.ranges {
		if r.Offset >= total {
			break
		}
		if r.Offset > pos {
			holes = append(holes, Range{Offset: pos, Size: r.Offset - pos})
		}
		if r.End() > pos {
			pos = r.End()
		}
	}
	if pos < total {
		holes = append(holes, Range{Offset: pos, Size: total - pos})
	}
	return holes
}

// Len 返回区间个数
func (s *Set) Len() int {
	return len(s.ranges)
}

// Ranges 返回内部区间切片 调用方不允许修改
func (s *Set) Ranges() []Range {
	return s.ranges
}

// End 返回最后一个区间的结束偏移 空集合返回 0
func (s *Set) End() uint64 {
	if len(s.ranges) == 0 {
		return 0
	}
	return s.ranges[len(s.ranges)-1].End()
}

// Reset 清空集合 保留底层容量
func (s *Set) Reset() {
	s.ranges = s.ranges[:0]
}

func (s *Set) String() string {
	var sb strings.Builder
	for i, r := range s.ranges {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(r.String())
	}
	return sb.String()
}
