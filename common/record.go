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

// RecordType 导出记录类型
type RecordType string

const (
	// RecordObjects 对象接收记录 JSON lines
	RecordObjects RecordType = "objects"
	// RecordFiles 对象落盘文件
	RecordFiles RecordType = "files"
)
