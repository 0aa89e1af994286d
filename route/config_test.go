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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routedmx/routedmx/lct"
)

func TestParseDispatchMode(t *testing.T) {
	tests := []struct {
		input string
		want  DispatchMode
		ok    bool
	}{
		{"", DispatchFull, true},
		{"full", DispatchFull, true},
		{"progressive", DispatchProgressive, true},
		{"out_of_order", DispatchOutOfOrder, true},
		{"bogus", DispatchFull, false},
	}

	for _, tt := range tests {
		mode, err := ParseDispatchMode(tt.input)
		if tt.ok {
			require.NoError(t, err, tt.input)
			assert.Equal(t, tt.want, mode, tt.input)
		} else {
			assert.Error(t, err, tt.input)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Reorder: true}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint64(defaultTimeoutUS), cfg.TimeoutUS)

	cfg = Config{Sessions: []SessionConfig{{}}}
	assert.Error(t, cfg.Validate())

	cfg = Config{Sessions: []SessionConfig{{Addr: "239.0.0.1", Port: 5000, Profile: "bogus"}}}
	assert.Error(t, cfg.Validate())

	cfg = Config{DispatchMode: "bogus"}
	assert.Error(t, cfg.Validate())
}

func TestSessionConfigProfile(t *testing.T) {
	sc := SessionConfig{Addr: "239.0.0.1", Port: 5000}
	require.NoError(t, sc.Validate())
	assert.Equal(t, lct.ProfileROUTE, sc.LCTProfile())

	sc = SessionConfig{Addr: "239.0.0.1", Port: 5000, Profile: "flute"}
	require.NoError(t, sc.Validate())
	assert.Equal(t, lct.ProfileFLUTE, sc.LCTProfile())

	// capture 会话不要求真实地址
	sc = SessionConfig{Capture: "dump.pcap"}
	assert.NoError(t, sc.Validate())
}
