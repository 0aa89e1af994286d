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

package objects

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routedmx/routedmx/exporter"
	"github.com/routedmx/routedmx/internal/json"
)

type nopWriteCloser struct {
	*bytes.Buffer
}

func (nopWriteCloser) Close() error { return nil }

func TestSinkEncodesRecord(t *testing.T) {
	buf := &bytes.Buffer{}
	s := &Sinker{
		wr:      nopWriteCloser{buf},
		encoder: json.NewEncoder(buf),
	}

	err := s.Sink(exporter.ObjectRecord{
		Event:    "dyn_segment",
		Service:  7,
		TSI:      1,
		TOI:      42,
		Filename: "seg-42.m4s",
		Size:     1000,
		Partial:  "none",
	})
	require.NoError(t, err)

	var rec exporter.ObjectRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "dyn_segment", rec.Event)
	assert.Equal(t, uint64(42), rec.TOI)
	assert.Equal(t, "seg-42.m4s", rec.Filename)

	// 非记录类型静默忽略
	assert.NoError(t, s.Sink(123))
}
