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

package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/routedmx/routedmx/capture"
	"github.com/routedmx/routedmx/common"
	"github.com/routedmx/routedmx/confengine"
	"github.com/routedmx/routedmx/exporter"
	"github.com/routedmx/routedmx/internal/pubsub"
	"github.com/routedmx/routedmx/logger"
	"github.com/routedmx/routedmx/route"
	"github.com/routedmx/routedmx/server"
)

// Controller 程序装配层
//
// 驱动解复用循环 将事件桥接到 exporter / metrics / 订阅方
// 并通过 HTTP 接口暴露运行时控制
type Controller struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       Config
	buildInfo common.BuildInfo

	// mut 串行化对 demux 的所有访问 引擎自身不加锁
	mut   sync.Mutex
	demux *route.Demuxer

	exp    *exporter.Exporter
	svr    *server.Server
	events *pubsub.PubSub

	wg sync.WaitGroup
}

func setupLogger(conf *confengine.Config) error {
	var opts logger.Options
	if conf.Has("logger") {
		if err := conf.UnpackChild("logger", &opts); err != nil {
			return err
		}
	}

	if opts.Filename == "" {
		opts.Filename = "routedmx.log"
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 10
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}

	logger.SetOptions(opts)
	return nil
}

func New(conf *confengine.Config, buildInfo common.BuildInfo) (*Controller, error) {
	if err := setupLogger(conf); err != nil {
		return nil, err
	}

	var cfg Config
	if conf.Has("controller") {
		if err := conf.UnpackChild("controller", &cfg); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		buildInfo: buildInfo,
		events:    pubsub.New(),
	}

	var rcfg route.Config
	if err := conf.UnpackChild("route", &rcfg); err != nil {
		cancel()
		return nil, err
	}
	demux, err := route.NewDemuxer(rcfg, c.onEvent)
	if err != nil {
		cancel()
		return nil, err
	}
	c.demux = demux

	// capture 会话在引擎外构建后挂载
	for _, sc := range rcfg.Sessions {
		if sc.Capture == "" {
			continue
		}
		replay, err := capture.Open(capture.Config{Path: sc.Capture, Addr: sc.Addr, Port: sc.Port})
		if err != nil {
			cancel()
			demux.Close()
			return nil, err
		}
		demux.AddSessionConn(replay, sc.LCTProfile(), sc.ServiceID, "capture:"+sc.Capture)
	}

	exp, err := exporter.New(conf)
	if err != nil {
		cancel()
		demux.Close()
		return nil, err
	}
	c.exp = exp

	svr, err := server.New(conf)
	if err != nil {
		cancel()
		demux.Close()
		return nil, err
	}
	c.svr = svr
	return c, nil
}

func (c *Controller) Start() error {
	c.setupServer()

	c.wg.Add(1)
	go c.loopProcess()

	if c.svr != nil {
		go func() {
			if err := c.svr.ListenAndServe(); err != nil {
				logger.Errorf("failed to start server: %v", err)
			}
		}()
	}
	return nil
}

// loopProcess 解复用主循环
//
// 排空所有会话 网络静默时执行一轮超时判定后休眠
func (c *Controller) loopProcess() {
	defer c.wg.Done()

	interval := c.cfg.GetPollInterval()
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mut.Lock()
		err := c.demux.Process()
		if errors.Is(err, route.ErrNetworkEmpty) {
			c.demux.CheckTimeouts()
		}
		c.mut.Unlock()

		if errors.Is(err, route.ErrNetworkEmpty) {
			time.Sleep(interval)
		}
	}
}

// onEvent 事件回调 在解复用循环栈内同步执行
func (c *Controller) onEvent(evt route.Event) {
	demuxEvents.WithLabelValues(evt.Type.String()).Inc()
	c.exp.Export(evt)

	// 订阅方拿到的是脱离共享缓冲的摘要 Blob 不出引擎
	c.events.Publish(makeEventView(evt))
}

// Reload 重载配置 只支持运行时可切换的部分
//
// 完成策略与分发模式即时生效 会话拓扑变更需要重启
func (c *Controller) Reload(conf *confengine.Config) error {
	var rcfg route.Config
	if err := conf.UnpackChild("route", &rcfg); err != nil {
		return err
	}
	if err := rcfg.Validate(); err != nil {
		return err
	}
	mode, err := route.ParseDispatchMode(rcfg.DispatchMode)
	if err != nil {
		return err
	}

	c.mut.Lock()
	defer c.mut.Unlock()
	c.demux.SetDispatchMode(mode)
	c.demux.SetReorder(rcfg.Reorder, rcfg.TimeoutUS)
	return nil
}

func (c *Controller) Stop() {
	c.cancel()
	c.wg.Wait()

	if err := c.demux.Close(); err != nil {
		logger.Warnf("close demuxer: %v", err)
	}
	c.exp.Close()
	if c.svr != nil {
		c.svr.Shutdown()
	}
}

func (c *Controller) recordMetrics() {
	uptime.Set(float64(time.Now().Unix() - common.Started()))
	buildInfo.WithLabelValues(c.buildInfo.Version, c.buildInfo.GitHash, c.buildInfo.Time).Inc()

	c.mut.Lock()
	defer c.mut.Unlock()
	receivedPackets.Set(float64(c.demux.PacketCount()))
	receivedBytes.Set(float64(c.demux.RecvBytes()))
	for _, id := range c.demux.Services() {
		loadedObjects.WithLabelValues(fmt.Sprintf("%d", id)).Set(float64(c.demux.ObjectCount(id)))
	}
}
