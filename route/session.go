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
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"

	"github.com/routedmx/routedmx/common"
	"github.com/routedmx/routedmx/lct"
)

// DatagramConn 会话数据报来源
//
// ReadDatagram 必须是非阻塞语义 无数据时返回 ErrNetworkEmpty
// 返回的切片只在下一次 ReadDatagram 前有效
type DatagramConn interface {
	ReadDatagram() ([]byte, error)
	Close() error
}

// session 一条组播接收会话
//
// 会话独占其接收缓冲 数据报计数单调递增
type session struct {
	conn      DatagramConn
	profile   lct.Profile
	serviceID uint32
	label     string

	// active close-session 标志会将其置为 false
	active bool
	pkts   uint64
}

func newSession(conn DatagramConn, profile lct.Profile, serviceID uint32, label string) *session {
	return &session{
		conn:      conn,
		profile:   profile,
		serviceID: serviceID,
		label:     label,
		active:    true,
	}
}

// udpConn 基于 x/net ipv4 的组播实现
type udpConn struct {
	pc  net.PacketConn
	p   *ipv4.PacketConn
	buf []byte
}

// openMulticast 创建组播会话 socket 并加入组
//
// 构建失败只影响这一条会话 不是全局致命错误
func openMulticast(addr string, port int, ifce string, bufSize int) (DatagramConn, error) {
	group := net.ParseIP(addr)
	if group == nil || !group.IsMulticast() {
		return nil, errors.Errorf("route: invalid multicast address (%s)", addr)
	}

	pc, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, errors.WithMessagef(err, "route: listen %s:%d", addr, port)
	}

	var ifi *net.Interface
	if ifce != "" {
		if ifi, err = net.InterfaceByName(ifce); err != nil {
			pc.Close()
			return nil, errors.WithMessagef(err, "route: interface %s", ifce)
		}
	}

	p := ipv4.NewPacketConn(pc)
	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
		pc.Close()
		return nil, errors.WithMessagef(err, "route: join group %s", addr)
	}

	if bufSize <= 0 {
		bufSize = common.DefaultUDPBufferSize
	}
	if uc, ok := pc.(*net.UDPConn); ok {
		_ = uc.SetReadBuffer(bufSize)
	}

	return &udpConn{
		pc:  pc,
		p:   p,
		buf: make([]byte, common.MaxUDPDatagramSize),
	}, nil
}

// ReadDatagram 非阻塞读取一个数据报
//
// 通过立即过期的 deadline 实现轮询语义
func (u *udpConn) ReadDatagram() ([]byte, error) {
	_ = u.pc.SetReadDeadline(time.Now())
	n, _, err := u.pc.ReadFrom(u.buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrNetworkEmpty
		}
		return nil, err
	}
	return u.buf[:n], nil
}

func (u *udpConn) Close() error {
	return u.pc.Close()
}
