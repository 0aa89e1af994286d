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

package lct

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Profile 载荷标识的线上变体
//
// ROUTE (ATSC3) 的 FEC Payload ID 直接携带字节偏移
// FLUTE (DVB-MABR) 携带 SBN/ESI 需结合 FTI 换算偏移
type Profile uint8

const (
	ProfileROUTE Profile = iota
	ProfileFLUTE
)

func (p Profile) String() string {
	switch p {
	case ProfileROUTE:
		return "route"
	case ProfileFLUTE:
		return "flute"
	}
	return "unknown"
}

// PayloadID FLUTE Compact No-Code 载荷标识
type PayloadID struct {
	// SBN Source Block Number
	SBN uint16
	// ESI Encoding Symbol ID
	ESI uint16
}

// Packet 单个 UDP 数据报解码结果
type Packet struct {
	Header     *Header
	Extensions []Extension

	// StartOffset payload 在对象内的字节偏移
	//
	// FLUTE 下当前包未携带 FTI 时无法换算 HasOffset 为 false
	// 由上层用对象已登记的 FTI 兑现
	StartOffset uint64
	HasOffset   bool

	// PayloadID 原始 SBN/ESI 仅 FLUTE 下有意义
	PayloadID PayloadID

	// TotalLength 对象总长 来源于 TOL 或 FTI 扩展 0 表示未知
	TotalLength uint64

	// FTI 本包携带的 FEC 传输信息 可能为空
	FTI *FTIExt
	// FDT 本包携带的 FDT Instance 标识 可能为空
	FDT *FDTExt

	// Payload 载荷字节 引用原数据报内存 不做拷贝
	Payload []byte
}

// DecodePacket 解码一个完整的 LCT 数据报
//
// 解析失败属于 Transient 错误 调用方丢弃该包继续处理后续数据报
func DecodePacket(data []byte, profile Profile) (*Packet, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	exts, err := ParseExtensions(data[h.ExtOffset:h.HeaderLen])
	if err != nil {
		return nil, err
	}

	pkt := &Packet{
		Header:     h,
		Extensions: exts,
	}
	for _, ext := range exts {
		switch e := ext.(type) {
		case FTIExt:
			fti := e
			pkt.FTI = &fti
			pkt.TotalLength = e.TransferLength
		case TOLExt:
			pkt.TotalLength = e.TransferLength
		case FDTExt:
			fdt := e
			pkt.FDT = &fdt
		}
	}

	payload := data[h.HeaderLen:]
	switch profile {
	case ProfileROUTE:
		// FEC Payload ID 为 32 bit start_offset
		if len(payload) < 4 {
			return nil, errors.WithMessagef(ErrPacketTooShort, "route payload id needs 4 bytes got %d", len(payload))
		}
		pkt.StartOffset = uint64(binary.BigEndian.Uint32(payload[:4]))
		pkt.HasOffset = true
		pkt.Payload = payload[4:]

	case ProfileFLUTE:
		// FEC Payload ID 为 SBN(16) + ESI(16)
		if len(payload) < 4 {
			return nil, errors.WithMessagef(ErrPacketTooShort, "flute payload id needs 4 bytes got %d", len(payload))
		}
		pkt.PayloadID = PayloadID{
			SBN: binary.BigEndian.Uint16(payload[:2]),
			ESI: binary.BigEndian.Uint16(payload[2:4]),
		}
		pkt.Payload = payload[4:]
		if pkt.FTI != nil {
			pkt.StartOffset = ResolveOffset(pkt.PayloadID, pkt.FTI)
			pkt.HasOffset = true
		}
	}
	return pkt, nil
}

// ResolveOffset 用 FTI 将 SBN/ESI 换算为字节偏移
//
// Compact No-Code 下除最后一个 source block 外均为满块
// offset = (SBN * MaxSourceBlockLength + ESI) * EncodingSymbolLength
func ResolveOffset(id PayloadID, fti *FTIExt) uint64 {
	symbols := uint64(id.SBN)*uint64(fti.MaxSourceBlockLength) + uint64(id.ESI)
	return symbols * uint64(fti.EncodingSymbolLength)
}
