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
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"

	"github.com/routedmx/routedmx/internal/json"
	"github.com/routedmx/routedmx/logger"
	"github.com/routedmx/routedmx/route"
)

// eventView 事件的订阅摘要 不携带共享缓冲
type eventView struct {
	Type     string `json:"type"`
	Service  uint32 `json:"service"`
	TSI      uint64 `json:"tsi,omitempty"`
	TOI      uint64 `json:"toi,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int    `json:"size,omitempty"`
	Partial  string `json:"partial,omitempty"`
}

func makeEventView(evt route.Event) eventView {
	view := eventView{
		Type:    evt.Type.String(),
		Service: evt.ServiceID,
	}
	if fi := evt.FileInfo; fi != nil {
		view.TSI = fi.TSI
		view.TOI = fi.TOI
		view.Filename = fi.Filename
		view.Size = len(fi.Blob)
		view.Partial = fi.Partial.String()
	}
	return view
}

type statsView struct {
	Packets     uint64        `json:"packets"`
	Bytes       uint64        `json:"bytes"`
	FirstPktUS  uint64        `json:"firstPacketUs"`
	LastPktUS   uint64        `json:"lastPacketUs"`
	Multicast   bool          `json:"activeMulticast"`
	Subscribers int           `json:"subscribers"`
	Services    []serviceView `json:"services"`
}

type serviceView struct {
	ID      uint32 `json:"id"`
	Objects int    `json:"objects"`
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// parseServiceID 解析服务选择参数 支持哨兵名
func parseServiceID(s string) (uint32, bool) {
	switch s {
	case "none":
		return route.ServiceIDNone, true
	case "all":
		return route.ServiceIDAll, true
	case "first":
		return route.ServiceIDFirst, true
	}
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

func (c *Controller) setupServer() {
	if c.svr == nil {
		return
	}

	// Metric Routes
	c.svr.RegisterGetRoute("/metrics", func(w http.ResponseWriter, r *http.Request) {
		c.recordMetrics()
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Stats Routes
	c.svr.RegisterGetRoute("/stats", func(w http.ResponseWriter, r *http.Request) {
		c.mut.Lock()
		view := statsView{
			Packets:     c.demux.PacketCount(),
			Bytes:       c.demux.RecvBytes(),
			FirstPktUS:  c.demux.FirstPacketTime(),
			LastPktUS:   c.demux.LastPacketTime(),
			Multicast:   c.demux.HasActiveMulticast(),
			Subscribers: c.events.Num(),
		}
		for _, id := range c.demux.Services() {
			pkts, bytes, _ := c.demux.ServiceStats(id)
			view.Services = append(view.Services, serviceView{
				ID:      id,
				Objects: c.demux.ObjectCount(id),
				Packets: pkts,
				Bytes:   bytes,
			})
		}
		c.mut.Unlock()

		w.Header().Set("Content-Type", "application/json")
		b, _ := json.Marshal(view)
		w.Write(b)
	})

	// 事件长轮询 每次请求最多等待 10s 返回期间累积的事件
	c.svr.RegisterGetRoute("/events", func(w http.ResponseWriter, r *http.Request) {
		queue := c.events.Subscribe(c.cfg.GetEventQueueSize())
		defer func() {
			c.events.Unsubscribe(queue)
			queue.Close()
		}()

		var views []eventView
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			data, ok := queue.PopTimeout(time.Until(deadline))
			if !ok {
				break
			}
			views = append(views, data.(eventView))
			if len(views) >= 100 {
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		b, _ := json.Marshal(views)
		w.Write(b)
	})

	// Admin Routes
	c.svr.RegisterPostRoute("/-/logger", func(w http.ResponseWriter, r *http.Request) {
		level := r.FormValue("level")
		logger.SetLoggerLevel(level)
		w.Write([]byte(`{"status": "success"}`))
	})
	c.svr.RegisterPostRoute("/-/tune", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseServiceID(r.FormValue("service"))
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status": "invalid service"}`))
			return
		}
		others := cast.ToBool(r.FormValue("others"))

		c.mut.Lock()
		c.demux.TuneIn(id, others)
		c.mut.Unlock()
		w.Write([]byte(`{"status": "success"}`))
	})
	c.svr.RegisterPostRoute("/-/purge", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseServiceID(r.FormValue("service"))
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status": "invalid service"}`))
			return
		}

		c.mut.Lock()
		c.demux.PurgeObjects(id)
		c.mut.Unlock()
		w.Write([]byte(`{"status": "success"}`))
	})
	c.svr.RegisterPostRoute("/-/reset", func(w http.ResponseWriter, r *http.Request) {
		c.mut.Lock()
		c.demux.ResetAll()
		c.mut.Unlock()
		w.Write([]byte(`{"status": "success"}`))
	})
}
