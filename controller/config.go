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
	"time"
)

type Config struct {
	// PollInterval 网络静默时解复用循环的休眠间隔
	PollInterval time.Duration `config:"pollInterval"`

	// EventQueueSize 单个事件订阅队列的缓冲长度
	EventQueueSize int `config:"eventQueueSize"`
}

func (c Config) GetPollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return time.Millisecond
	}
	return c.PollInterval
}

func (c Config) GetEventQueueSize() int {
	if c.EventQueueSize <= 0 {
		return 1024
	}
	return c.EventQueueSize
}
