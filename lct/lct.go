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

func newError(format string, args ...any) error {
	format = "lct: " + format
	return errors.Errorf(format, args...)
}

var (
	// ErrPacketTooShort 数据报长度不足以容纳声明的头部
	ErrPacketTooShort = newError("packet too short")

	// ErrUnsupportedVersion LCT 版本不受支持
	ErrUnsupportedVersion = newError("unsupported version")

	// ErrMalformedExtension 扩展头声明长度与剩余区域冲突
	ErrMalformedExtension = newError("malformed extension")
)

// Codepoint 取值 参照 ATSC A/331 对 LCT CP 字段的约定
//
// CP >= 8 表示媒体分片按序发送 解复用器可以借助该信息
// 在新 TOI 出现时立即判定前一个对象接收完毕
const (
	CPSignaling     = 0
	CPNRTFile       = 1
	CPNRTEntity     = 2
	CPMediaInOrder  = 8
	CPEntityInOrder = 9
)

// Header LCT 报文头 参照 RFC 5651 5.1
//
//	0                   1                   2                   3
//	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   V   | C |PSI|S| O |H|Res|A|B|   HDR_LEN     | Codepoint (CP)|
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	| Congestion Control Information (CCI, length = 32*(C+1) bits)  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|  Transport Session Identifier (TSI, length = 32*S+16*H bits)  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Transport Object Identifier (TOI, length = 32*O+16*H bits)  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                Header Extensions (if applicable)              |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// TSI/TOI 字段为变长 最长支持 64 bit 超出部分只取低 64 bit
type Header struct {
	Version uint8
	PSI     uint8
	// Sequence CCI 低 32 bit
	//
	// ALC 下 C=0 时发送端通常将 CCI 用作包序号
	Sequence  uint32
	TSI       uint64
	TOI       uint64
	Codepoint uint8

	// CloseSession A 标志位 会话即将关闭
	CloseSession bool
	// CloseObject B 标志位 当前对象不再有后续数据
	CloseObject bool

	// HeaderLen 整个 LCT 头长度 (字节 含扩展区域)
	HeaderLen int
	// ExtOffset 扩展头区域起始偏移
	ExtOffset int
}

// SourcePacket 返回是否为 source 数据包
//
// ROUTE 下 PSI 高位为 1 表示 source 低位保留
// repair 包由外部修复子系统处理 解复用器只透传判定
func (h *Header) SourcePacket() bool {
	return h.PSI&0x2 != 0
}

// Ordered 返回发送端是否承诺按序发送该对象
func (h *Header) Ordered() bool {
	return h.Codepoint == CPMediaInOrder || h.Codepoint == CPEntityInOrder
}

// DecodeHeader 从数据报起始位置解析 LCT 头
//
// 只做头部结构校验 扩展头由 ParseExtensions 单独解析
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < 4 {
		return nil, errors.WithMessagef(ErrPacketTooShort, "header needs 4 bytes got %d", len(data))
	}

	b0, b1 := data[0], data[1]
	version := b0 >> 4
	if version != 1 && version != 2 {
		return nil, errors.WithMessagef(ErrUnsupportedVersion, "version %d", version)
	}

	c := (b0 >> 2) & 0x3
	psi := b0 & 0x3
	s := (b1 >> 7) & 0x1
	o := (b1 >> 5) & 0x3
	h := (b1 >> 4) & 0x1
	a := (b1 >> 1) & 0x1
	b := b1 & 0x1

	hdrLen := int(data[2]) << 2
	cp := data[3]

	if hdrLen < 4 || hdrLen > len(data) {
		return nil, errors.WithMessagef(ErrPacketTooShort, "header len %d pkt len %d", hdrLen, len(data))
	}

	cciLen := (int(c) + 1) << 2
	tsiLen := int(s)<<2 + int(h)<<1
	tsiFrom := 4 + cciLen
	toiLen := int(o)<<2 + int(h)<<1
	toiFrom := tsiFrom + tsiLen
	extFrom := toiFrom + toiLen

	if extFrom > hdrLen {
		return nil, errors.WithMessagef(ErrPacketTooShort, "fields end %d beyond header len %d", extFrom, hdrLen)
	}

	var seq uint32
	if cciLen >= 4 {
		seq = binary.BigEndian.Uint32(data[4+cciLen-4 : 4+cciLen])
	}

	return &Header{
		Version:      version,
		PSI:          psi,
		Sequence:     seq,
		TSI:          decodeUint(data[tsiFrom : tsiFrom+tsiLen]),
		TOI:          decodeUint(data[toiFrom : toiFrom+toiLen]),
		Codepoint:    cp,
		CloseSession: a != 0,
		CloseObject:  b != 0,
		HeaderLen:    hdrLen,
		ExtOffset:    extFrom,
	}, nil
}

// decodeUint 大端解析变长无符号整数 超过 8 字节只取低 64 bit
func decodeUint(b []byte) uint64 {
	if len(b) > 8 {
		b = b[len(b)-8:]
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
