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

// Package capture 离线抓包回放
//
// 将 pcap 文件中的 UDP 数据报按会话地址过滤后作为
// route.DatagramConn 数据源 用于排障与回归验证
package capture

import (
	"io"
	"net"
	"os"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/routedmx/routedmx/route"
)

// Config 单个回放源配置
type Config struct {
	// Path pcap 文件路径
	Path string `config:"path"`
	// Addr 过滤的目的组播地址 空为不过滤
	Addr string `config:"addr"`
	// Port 过滤的目的端口 0 为不过滤
	Port int `config:"port"`
}

func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("capture: path required")
	}
	if c.Addr != "" {
		if ip := net.ParseIP(c.Addr); ip == nil {
			return errors.Errorf("capture: invalid address (%s)", c.Addr)
		}
	}
	return nil
}

// Replay pcap 文件回放源
//
// 尽快回放 不按抓包时间戳间隔重现 文件读尽后持续返回
// route.ErrNetworkEmpty 语义上等价于网络静默
type Replay struct {
	f      *os.File
	r      *pcapgo.Reader
	filter Config
	done   bool
}

// Open 打开 pcap 文件构建回放源
func Open(cfg Config) (*Replay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, errors.WithMessagef(err, "capture: open %s", cfg.Path)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.WithMessagef(err, "capture: read %s", cfg.Path)
	}
	return &Replay{f: f, r: r, filter: cfg}, nil
}

// ReadDatagram 返回下一个匹配过滤条件的 UDP 载荷
func (r *Replay) ReadDatagram() ([]byte, error) {
	if r.done {
		return nil, route.ErrNetworkEmpty
	}

	for {
		data, _, err := r.r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.done = true
				return nil, route.ErrNetworkEmpty
			}
			return nil, errors.WithMessage(err, "capture: read packet")
		}

		payload, ok := r.decodeUDP(data)
		if ok {
			return payload, nil
		}
	}
}

func (r *Replay) Close() error {
	return r.f.Close()
}

// decodeUDP 逐层剥离 Ethernet / IPv4 / UDP
//
// 非 UDP 或不匹配过滤条件的包直接跳过
func (r *Replay) decodeUDP(data []byte) ([]byte, bool) {
	var ether layers.Ethernet
	var ipv4 layers.IPv4
	var udp layers.UDP

	content := data
	if err := ether.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err == nil {
		switch ether.EthernetType {
		case layers.EthernetTypeIPv4:
			content = ether.Payload
		default:
			return nil, false
		}
	}

	if err := ipv4.DecodeFromBytes(content, gopacket.NilDecodeFeedback); err != nil {
		return nil, false
	}
	if err := udp.DecodeFromBytes(ipv4.Payload, gopacket.NilDecodeFeedback); err != nil {
		return nil, false
	}

	if r.filter.Addr != "" && ipv4.DstIP.String() != r.filter.Addr {
		return nil, false
	}
	if r.filter.Port != 0 && int(udp.DstPort) != r.filter.Port {
		return nil, false
	}
	return udp.Payload, true
}
