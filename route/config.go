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
	"github.com/pkg/errors"

	"github.com/routedmx/routedmx/common"
	"github.com/routedmx/routedmx/lct"
)

// DispatchMode 分发模式
type DispatchMode uint8

const (
	// DispatchFull 仅在对象完整接收后通知一次
	DispatchFull DispatchMode = iota
	// DispatchProgressive 从 0 开始的连续前缀每次增长时通知
	DispatchProgressive
	// DispatchOutOfOrder 每个新分片并入时通知 数据可能带空洞
	DispatchOutOfOrder
)

func (m DispatchMode) String() string {
	switch m {
	case DispatchFull:
		return "full"
	case DispatchProgressive:
		return "progressive"
	case DispatchOutOfOrder:
		return "out_of_order"
	}
	return "unknown"
}

// ParseDispatchMode 解析配置中的分发模式名
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch s {
	case "", "full":
		return DispatchFull, nil
	case "progressive":
		return DispatchProgressive, nil
	case "out_of_order":
		return DispatchOutOfOrder, nil
	}
	return DispatchFull, errors.Errorf("route: unknown dispatch mode (%s)", s)
}

// defaultTimeoutUS 乱序容忍模式下对象的默认静默超时
const defaultTimeoutUS = 1000

// SessionConfig 单条组播会话配置
type SessionConfig struct {
	// Addr 组播地址
	Addr string `config:"addr"`
	// Port 组播端口
	Port int `config:"port"`
	// Interface 网卡名 空为 INADDR_ANY
	Interface string `config:"interface"`
	// BufferSize UDP 接收缓冲 0 使用默认值
	BufferSize int `config:"bufferSize"`
	// Profile 载荷标识变体 route / flute
	Profile string `config:"profile"`
	// ServiceID 会话绑定的服务
	ServiceID uint32 `config:"serviceID"`
	// Capture 抓包回放 profile 标识 非空时不打开真实 socket
	Capture string `config:"capture"`
}

func (sc *SessionConfig) Validate() error {
	if sc.Addr == "" && sc.Capture == "" {
		return errors.New("route: session requires addr or capture")
	}
	if sc.BufferSize <= 0 {
		sc.BufferSize = common.DefaultUDPBufferSize
	}
	switch sc.Profile {
	case "", "route", "flute":
	default:
		return errors.Errorf("route: unknown profile (%s)", sc.Profile)
	}
	return nil
}

// LCTProfile 会话的载荷标识变体
func (sc *SessionConfig) LCTProfile() lct.Profile {
	if sc.Profile == "flute" {
		return lct.ProfileFLUTE
	}
	return lct.ProfileROUTE
}

// Config 解复用器配置
type Config struct {
	// Sessions 组播会话列表
	Sessions []SessionConfig `config:"sessions"`

	// ATSC 启用 ATSC3.0 LLS Bootstrap 会话发现服务
	ATSC bool `config:"atsc"`
	// Interface Bootstrap 会话使用的网卡
	Interface string `config:"interface"`
	// BufferSize Bootstrap 会话的 UDP 接收缓冲
	BufferSize int `config:"bufferSize"`

	// Reorder true 时忽略 LCT 按序标志 靠超时收口对象
	Reorder bool `config:"reorder"`
	// TimeoutUS 乱序容忍模式的静默超时 (µs) 0 表示任何
	// 不延伸当前对象的包都立即将其收口
	TimeoutUS uint64 `config:"timeoutUS"`

	// DispatchMode full / progressive / out_of_order
	DispatchMode string `config:"dispatchMode"`
}

func (c *Config) Validate() error {
	if c.Reorder && c.TimeoutUS == 0 {
		c.TimeoutUS = defaultTimeoutUS
	}
	for i := range c.Sessions {
		if err := c.Sessions[i].Validate(); err != nil {
			return err
		}
	}
	_, err := ParseDispatchMode(c.DispatchMode)
	return err
}
