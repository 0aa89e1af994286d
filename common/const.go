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

package common

const (
	// App 应用程序名称
	App = "routedmx"

	// Version 应用程序版本
	Version = "v0.0.1"

	// DefaultUDPBufferSize UDP Socket 接收缓冲区默认大小
	//
	// 构造参数传 0 时使用此值
	DefaultUDPBufferSize = 0x2000

	// MaxUDPDatagramSize 单个 UDP 数据报最大长度
	//
	// LCT 报文承载在单个 Datagram 内 不存在跨包拼接
	// 读缓冲区按此长度分配可以保证读到完整数据报
	MaxUDPDatagramSize = 65535
)

const (
	// ATSCMulticastAddr ATSC3.0 LLS Bootstrap 组播地址
	ATSCMulticastAddr = "224.0.23.60"

	// ATSCMulticastPort ATSC3.0 LLS Bootstrap 端口
	ATSCMulticastPort = 4937
)
