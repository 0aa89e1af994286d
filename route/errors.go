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
)

func newError(format string, args ...any) error {
	format = "route: " + format
	return errors.Errorf(format, args...)
}

var (
	// ErrNotFound 按名字或 (TSI, TOI) 查找的对象或服务不存在
	ErrNotFound = newError("not found")

	// ErrNetworkEmpty 本轮没有任何数据报可读 属于正常返回
	//
	// 与真实 I/O 失败区分 调用方据此驱动超时检查
	ErrNetworkEmpty = newError("network empty")
)
