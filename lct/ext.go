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

// 扩展头类型 HET 取值
//
// HET >= 128 为定长扩展 (固定 4 字节 无 HEL 字段)
// HET < 128 为变长扩展 第二字节 HEL 以 4 字节为单位声明总长
const (
	ExtNop   = 0   // No-Operation
	ExtAuth  = 1   // 报文鉴权
	ExtTime  = 2   // 发送端时间
	ExtFTI   = 64  // FEC Object Transmission Information
	ExtTOL48 = 67  // Transfer Object Length HEL + 48 bit
	ExtFDT   = 192 // FLUTE FDT Instance
	ExtCenc  = 193 // FLUTE FDT 内容编码
	ExtTOL24 = 194 // Transfer Object Length 24 bit
)

// Extension LCT 扩展头的标签化变体
//
// 解析结果保持链上原始顺序 FDT 等扩展会影响后续字节的解释
type Extension interface {
	ExtType() uint8
}

// NopExt 占位扩展 无语义
type NopExt struct{}

func (NopExt) ExtType() uint8 { return ExtNop }

// AuthExt 鉴权扩展 引擎不校验内容 原样保留
type AuthExt struct {
	Data []byte
}

func (AuthExt) ExtType() uint8 { return ExtAuth }

// TimeExt 发送端时间扩展 保留原始字段
type TimeExt struct {
	Data []byte
}

func (TimeExt) ExtType() uint8 { return ExtTime }

// FTIExt FEC 传输信息 (Compact No-Code 布局 RFC 5445)
//
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   HET = 64    |    HEL = 4    |                               |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+       Transfer Length         |
//	|                                                               |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	| FEC Instance ID               | Encoding Symbol Length        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                  Maximum Source Block Length                  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type FTIExt struct {
	TransferLength       uint64
	FECInstanceID        uint16
	EncodingSymbolLength uint16
	MaxSourceBlockLength uint32
}

func (FTIExt) ExtType() uint8 { return ExtFTI }

// FDTExt FLUTE FDT Instance 扩展
type FDTExt struct {
	Version    uint8
	InstanceID uint32
}

func (FDTExt) ExtType() uint8 { return ExtFDT }

// CencExt FLUTE FDT 内容编码扩展
type CencExt struct {
	Encoding uint8
}

func (CencExt) ExtType() uint8 { return ExtCenc }

// TOLExt 对象总长扩展 两种线上变体归一为同一类型
//
// TOL24 为定长 4 字节变体 24 bit 长度
// TOL48 为变长变体 HEL=2 48 bit 长度
type TOLExt struct {
	TransferLength uint64
	// Wide 是否为 48 bit 变体
	Wide bool
}

func (TOLExt) ExtType() uint8 { return ExtTOL24 }

// UnknownExt 未识别的扩展 按声明长度跳过并原样保留
//
// 保证向前兼容 未知类型不会中断解析
type UnknownExt struct {
	Type uint8
	Data []byte
}

func (e UnknownExt) ExtType() uint8 { return e.Type }

// ParseExtensions 遍历扩展头链
//
// region 为 LCT 头内的扩展区域 声明长度超出剩余区域或
// 定长类型长度不符时返回 ErrMalformedExtension
func ParseExtensions(region []byte) ([]Extension, error) {
	var exts []Extension
	for len(region) > 0 {
		if len(region) < 4 {
			return nil, errors.WithMessagef(ErrMalformedExtension, "trailing %d bytes", len(region))
		}

		het := region[0]
		recLen := 4
		if het < 128 {
			recLen = int(region[1]) << 2
			if recLen == 0 || recLen > len(region) {
				return nil, errors.WithMessagef(ErrMalformedExtension, "het=%d hel bytes %d/%d", het, recLen, len(region))
			}
		}
		rec := region[:recLen]

		ext, err := decodeExtension(het, rec)
		if err != nil {
			return nil, err
		}
		exts = append(exts, ext)
		region = region[recLen:]
	}
	return exts, nil
}

func decodeExtension(het uint8, rec []byte) (Extension, error) {
	switch het {
	case ExtNop:
		return NopExt{}, nil

	case ExtAuth:
		return AuthExt{Data: rec[4:]}, nil

	case ExtTime:
		return TimeExt{Data: rec[4:]}, nil

	case ExtFTI:
		if len(rec) < 16 {
			return nil, errors.WithMessagef(ErrMalformedExtension, "fti needs 16 bytes got %d", len(rec))
		}
		return FTIExt{
			TransferLength:       decodeUint(rec[2:8]),
			FECInstanceID:        binary.BigEndian.Uint16(rec[8:10]),
			EncodingSymbolLength: binary.BigEndian.Uint16(rec[10:12]),
			MaxSourceBlockLength: binary.BigEndian.Uint32(rec[12:16]),
		}, nil

	case ExtFDT:
		// V(4) | FDT Instance ID(20)
		v := rec[1] >> 4
		id := uint32(rec[1]&0x0F)<<16 | uint32(rec[2])<<8 | uint32(rec[3])
		return FDTExt{Version: v, InstanceID: id}, nil

	case ExtCenc:
		return CencExt{Encoding: rec[1]}, nil

	case ExtTOL24:
		return TOLExt{TransferLength: decodeUint(rec[1:4])}, nil

	case ExtTOL48:
		if len(rec) < 8 {
			return nil, errors.WithMessagef(ErrMalformedExtension, "tol48 needs 8 bytes got %d", len(rec))
		}
		return TOLExt{TransferLength: decodeUint(rec[2:8]), Wide: true}, nil
	}

	return UnknownExt{Type: het, Data: rec}, nil
}
