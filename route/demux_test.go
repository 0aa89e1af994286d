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
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routedmx/routedmx/lct"
)

type fakeConn struct {
	queue [][]byte
}

func (f *fakeConn) push(p []byte) {
	f.queue = append(f.queue, p)
}

func (f *fakeConn) ReadDatagram() ([]byte, error) {
	if len(f.queue) == 0 {
		return nil, ErrNetworkEmpty
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	return p, nil
}

func (f *fakeConn) Close() error { return nil }

type pktSpec struct {
	tsi      uint64
	toi      uint64
	cp       uint8
	closeObj bool
	repair   bool
	tol      uint64
	fti      *lct.FTIExt

	offset  uint32
	flute   bool
	sbn     uint16
	esi     uint16
	payload []byte
}

func buildPkt(s pktSpec) []byte {
	var ext []byte
	if s.tol > 0 {
		ext = append(ext, lct.ExtTOL24, byte(s.tol>>16), byte(s.tol>>8), byte(s.tol))
	}
	if s.fti != nil {
		rec := make([]byte, 16)
		rec[0] = lct.ExtFTI
		rec[1] = 4
		var tl [8]byte
		binary.BigEndian.PutUint64(tl[:], s.fti.TransferLength)
		copy(rec[2:8], tl[2:8])
		binary.BigEndian.PutUint16(rec[8:10], s.fti.FECInstanceID)
		binary.BigEndian.PutUint16(rec[10:12], s.fti.EncodingSymbolLength)
		binary.BigEndian.PutUint32(rec[12:16], s.fti.MaxSourceBlockLength)
		ext = append(ext, rec...)
	}

	hdrLen := 16 + len(ext)
	psi := byte(0x2)
	if s.repair {
		psi = 0
	}
	b1 := byte(1<<7 | 1<<5)
	if s.closeObj {
		b1 |= 0x1
	}

	b := make([]byte, 0, hdrLen+4+len(s.payload))
	b = append(b, 1<<4|psi, b1, byte(hdrLen>>2), s.cp)
	b = binary.BigEndian.AppendUint32(b, 1)
	b = binary.BigEndian.AppendUint32(b, uint32(s.tsi))
	b = binary.BigEndian.AppendUint32(b, uint32(s.toi))
	b = append(b, ext...)
	if s.flute {
		b = binary.BigEndian.AppendUint16(b, s.sbn)
		b = binary.BigEndian.AppendUint16(b, s.esi)
	} else {
		b = binary.BigEndian.AppendUint32(b, s.offset)
	}
	return append(b, s.payload...)
}

type recorder struct {
	events []Event
	hook   func(Event)
}

func (r *recorder) handle(evt Event) {
	r.events = append(r.events, evt)
	if r.hook != nil {
		r.hook(evt)
	}
}

func (r *recorder) ofType(t EventType) []Event {
	var out []Event
	for _, evt := range r.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

const testServiceID = 7

func newTestDemuxer(t *testing.T, cfg Config) (*Demuxer, *fakeConn, *recorder) {
	t.Helper()
	rec := &recorder{}
	d, err := NewDemuxer(cfg, rec.handle)
	require.NoError(t, err)
	conn := &fakeConn{}
	d.AddSessionConn(conn, lct.ProfileROUTE, testServiceID, "test")
	return d, conn, rec
}

func drain(t *testing.T, d *Demuxer) {
	t.Helper()
	require.NoError(t, d.Process())
	require.ErrorIs(t, d.Process(), ErrNetworkEmpty)
}

func TestCompleteByCoverage(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, tol: 200, offset: 0, payload: bytes.Repeat([]byte{'a'}, 100)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, tol: 200, offset: 100, payload: bytes.Repeat([]byte{'b'}, 100)}))
	drain(t, d)

	assert.Len(t, rec.ofType(EventServiceFound), 1)
	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	fi := segs[0].FileInfo
	assert.Equal(t, PartialNone, fi.Partial)
	assert.Equal(t, uint64(200), fi.TotalSize)
	assert.Equal(t, "toi-5", fi.Filename)
	assert.Equal(t, bytes.Repeat([]byte{'a'}, 100), fi.Blob[:100])
	assert.Equal(t, bytes.Repeat([]byte{'b'}, 100), fi.Blob[100:])
	assert.False(t, fi.FirstTOIReceived)
}

func TestOrderedCompletionOnNewTOI(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})

	// TOI 1 缺尾部 按序承诺下新 TOI 的首包判定其完结
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, cp: lct.CPMediaInOrder, tol: 300, offset: 0, payload: make([]byte, 100)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, cp: lct.CPMediaInOrder, tol: 300, offset: 100, payload: make([]byte, 100)}))
	drain(t, d)
	assert.Empty(t, rec.ofType(EventDynSegment))

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 2, cp: lct.CPMediaInOrder, tol: 300, offset: 0, payload: make([]byte, 50)}))
	drain(t, d)

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	fi := segs[0].FileInfo
	assert.Equal(t, uint64(1), fi.TOI)
	assert.Equal(t, PartialBegin, fi.Partial)
	assert.Len(t, fi.Blob, 200)
}

func TestUnorderedObjectSurvivesNewTOI(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})

	// 无按序承诺 默认策略下新 TOI 不触发收口
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, cp: lct.CPNRTFile, tol: 300, offset: 0, payload: make([]byte, 100)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 2, cp: lct.CPNRTFile, tol: 300, offset: 0, payload: make([]byte, 100)}))
	drain(t, d)

	assert.Empty(t, rec.ofType(EventDynSegment))
	assert.Equal(t, 2, d.ObjectCount(testServiceID))
}

func TestReorderTimeout(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{Reorder: true, TimeoutUS: 200000})

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 300, offset: 0, payload: make([]byte, 100)}))
	drain(t, d)

	// 静默时间远未到窗口 不得收口
	d.CheckTimeouts()
	assert.Empty(t, rec.ofType(EventDynSegment))

	// 零超时 任何挂起对象立即收口
	d.SetReorder(true, 0)
	d.CheckTimeouts()
	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	assert.Equal(t, PartialBegin, segs[0].FileInfo.Partial)
}

func TestReorderTimeoutInterleavedTOIs(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{Reorder: true, TimeoutUS: 1})

	// 同一 TSI 两个对象先后开始 均未完整 旧对象被新对象顶替后
	// 依然要在静默窗口到期时收口
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 300, offset: 0, payload: make([]byte, 100)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 2, tol: 300, offset: 0, payload: make([]byte, 100)}))
	drain(t, d)
	assert.Empty(t, rec.ofType(EventDynSegment))

	time.Sleep(5 * time.Millisecond)
	d.CheckTimeouts()

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 2)
	tois := []uint64{segs[0].FileInfo.TOI, segs[1].FileInfo.TOI}
	assert.ElementsMatch(t, []uint64{1, 2}, tois)
}

func TestReorderZeroTimeoutCollapsesOnNewTOI(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{Reorder: true, TimeoutUS: 1})
	d.SetReorder(true, 0)

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, cp: lct.CPNRTFile, tol: 300, offset: 0, payload: make([]byte, 100)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 2, cp: lct.CPNRTFile, tol: 300, offset: 0, payload: make([]byte, 100)}))
	drain(t, d)

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	assert.Equal(t, uint64(1), segs[0].FileInfo.TOI)
}

func TestCloseObjectUnknownSize(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 9, offset: 0, payload: make([]byte, 100)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 9, offset: 100, closeObj: true, payload: make([]byte, 100)}))
	drain(t, d)

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	fi := segs[0].FileInfo
	assert.Equal(t, PartialNone, fi.Partial)
	assert.Len(t, fi.Blob, 200)
}

func TestNoDuplicateDispatch(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})

	frag := buildPkt(pktSpec{tsi: 1, toi: 5, tol: 100, offset: 0, payload: make([]byte, 100)})
	conn.push(frag)
	drain(t, d)
	require.Len(t, rec.ofType(EventDynSegment), 1)

	// 完成后的重传不产生任何事件
	conn.push(frag)
	drain(t, d)
	assert.Len(t, rec.ofType(EventDynSegment), 1)
	assert.Empty(t, rec.ofType(EventLateData))
}

func TestLateData(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, tol: 200, offset: 0, payload: make([]byte, 200)}))
	drain(t, d)
	require.Len(t, rec.ofType(EventDynSegment), 1)

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, offset: 200, payload: make([]byte, 50)}))
	drain(t, d)

	late := rec.ofType(EventLateData)
	require.Len(t, late, 1)
	assert.Equal(t, uint64(200), late[0].FileInfo.LateFragmentOffset)
}

func TestProgressiveDispatch(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{DispatchMode: "progressive"})

	push := func(off uint32, size int) {
		conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, tol: 600, offset: off, payload: make([]byte, size)}))
	}
	push(0, 100)
	push(100, 200)
	push(500, 100)
	push(300, 200)
	drain(t, d)

	frags := rec.ofType(EventDynSegmentFrag)
	require.Len(t, frags, 3)
	// 前缀增长 100 -> 300 空洞期间无事件 补洞后一次到 600
	assert.Len(t, frags[0].FileInfo.Blob, 100)
	assert.Equal(t, PartialBegin, frags[0].FileInfo.Partial)
	assert.Len(t, frags[1].FileInfo.Blob, 300)
	assert.Len(t, frags[2].FileInfo.Blob, 600)

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	assert.Equal(t, PartialNone, segs[0].FileInfo.Partial)
	assert.Len(t, segs[0].FileInfo.Blob, 600)
}

func TestOutOfOrderDispatch(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{DispatchMode: "out_of_order"})

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, tol: 300, offset: 200, payload: make([]byte, 100)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, tol: 300, offset: 200, payload: make([]byte, 100)}))
	drain(t, d)

	// 重复分片不触发第二次通知
	frags := rec.ofType(EventDynSegmentFrag)
	require.Len(t, frags, 1)
	assert.Equal(t, PartialAny, frags[0].FileInfo.Partial)
	assert.Equal(t, 1, frags[0].FileInfo.NbFrags)
}

func TestStaticManifestUpdated(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})
	d.RegisterStaticFile(testServiceID, 0, 100, "manifest.mpd", "application/dash+xml", StaticManifest)

	send := func(content []byte) {
		conn.push(buildPkt(pktSpec{tsi: 0, toi: 100, tol: uint64(len(content)), offset: 0, payload: content}))
		drain(t, d)
	}

	send([]byte("mpd-v1"))
	send([]byte("mpd-v1"))
	send([]byte("mpd-v2"))

	mpds := rec.ofType(EventMPD)
	require.Len(t, mpds, 3)
	assert.Equal(t, "manifest.mpd", mpds[0].FileInfo.Filename)
	assert.Equal(t, "application/dash+xml", mpds[0].FileInfo.Mime)
	assert.True(t, mpds[0].FileInfo.Updated)
	assert.False(t, mpds[1].FileInfo.Updated)
	assert.True(t, mpds[2].FileInfo.Updated)

	// 静态 TOI 复写 不新建对象
	assert.Equal(t, 1, d.ObjectCount(testServiceID))
}

func TestFileTemplateNaming(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})
	d.RegisterFileTemplate(testServiceID, 1, "video/seg-$TOI$.m4s", "video/mp4", "p1", 1, "rep-hd")

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 42, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	fi := segs[0].FileInfo
	assert.Equal(t, "video/seg-42.m4s", fi.Filename)
	assert.Equal(t, "video/mp4", fi.Mime)
	assert.Equal(t, "p1", fi.DashPeriodID)
	assert.Equal(t, int32(1), fi.DashASID)
	assert.Equal(t, "rep-hd", fi.DashRepID)
}

func TestFirstTOIReceived(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 2, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 2)
	assert.False(t, segs[0].FileInfo.FirstTOIReceived)
	assert.True(t, segs[1].FileInfo.FirstTOIReceived)
}

func TestQualityFilter(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})
	d.RegisterFileTemplate(testServiceID, 1, "hd/$TOI$.m4s", "video/mp4", "p1", 1, "rep-hd")
	d.RegisterFileTemplate(testServiceID, 2, "sd/$TOI$.m4s", "video/mp4", "p1", 1, "rep-sd")
	d.MarkActiveQuality(testServiceID, "p1", 1, "rep-hd", true)

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	conn.push(buildPkt(pktSpec{tsi: 2, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	assert.Equal(t, "hd/1.m4s", segs[0].FileInfo.Filename)
}

func TestRepairPacketsIgnored(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, repair: true, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	assert.Len(t, rec.ofType(EventServiceFound), 1)
	assert.Empty(t, rec.ofType(EventDynSegment))
	assert.Equal(t, 0, d.ObjectCount(testServiceID))
	assert.Equal(t, uint64(1), d.PacketCount())
}

func TestDebugTSIFilter(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})
	d.DebugTSI(2)

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	conn.push(buildPkt(pktSpec{tsi: 2, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	assert.Equal(t, uint64(2), segs[0].FileInfo.TSI)

	d.DebugTSI(0)
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 2, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)
	assert.Len(t, rec.ofType(EventDynSegment), 2)
}

func TestTuneNone(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})
	d.TuneIn(ServiceIDNone, false)

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	// 服务仍被发现 但不装载任何对象
	assert.Len(t, rec.ofType(EventServiceFound), 1)
	assert.Equal(t, 0, d.ObjectCount(testServiceID))

	d.TuneIn(ServiceIDAll, false)
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 2, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)
	assert.Len(t, rec.ofType(EventDynSegment), 1)
}

func TestTuneOthersManifestOnly(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})
	other := &fakeConn{}
	d.AddSessionConn(other, lct.ProfileROUTE, 8, "other")
	d.TuneIn(testServiceID, true)

	conn.push(buildPkt(pktSpec{tsi: 5, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	other.push(buildPkt(pktSpec{tsi: 0, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	other.push(buildPkt(pktSpec{tsi: 5, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	// 选中的服务全收 未选中的只收 TSI 0 信令
	assert.Equal(t, 1, d.ObjectCount(testServiceID))
	assert.Equal(t, 1, d.ObjectCount(8))
	require.True(t, d.FindService(8))

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 2)
}

func TestTuneFirstPicksLowestServiceID(t *testing.T) {
	rec := &recorder{}
	d, err := NewDemuxer(Config{}, rec.handle)
	require.NoError(t, err)
	connHigh := &fakeConn{}
	connLow := &fakeConn{}
	d.AddSessionConn(connHigh, lct.ProfileROUTE, 9, "high")
	d.AddSessionConn(connLow, lct.ProfileROUTE, 3, "low")
	d.TuneIn(ServiceIDNone, false)

	connHigh.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	connLow.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)
	require.True(t, d.FindService(9))
	require.True(t, d.FindService(3))

	// 多个服务已发现时 First 固定落在编号最小的服务上
	d.TuneIn(ServiceIDFirst, false)

	connHigh.push(buildPkt(pktSpec{tsi: 1, toi: 2, tol: 10, offset: 0, payload: make([]byte, 10)}))
	connLow.push(buildPkt(pktSpec{tsi: 1, toi: 2, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	assert.Equal(t, 1, d.ObjectCount(3))
	assert.Equal(t, 0, d.ObjectCount(9))
}

func TestFluteOffsetResolution(t *testing.T) {
	rec := &recorder{}
	d, err := NewDemuxer(Config{}, rec.handle)
	require.NoError(t, err)
	conn := &fakeConn{}
	d.AddSessionConn(conn, lct.ProfileFLUTE, testServiceID, "flute")

	fti := &lct.FTIExt{TransferLength: 250, EncodingSymbolLength: 100, MaxSourceBlockLength: 64}

	// 对象尚无 FTI 时无法定位 丢弃载荷
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 3, flute: true, sbn: 0, esi: 1, payload: make([]byte, 100)}))
	drain(t, d)
	assert.Empty(t, rec.ofType(EventDynSegmentFrag))

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 3, flute: true, fti: fti, sbn: 0, esi: 0, payload: bytes.Repeat([]byte{'x'}, 100)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 3, flute: true, sbn: 0, esi: 1, payload: bytes.Repeat([]byte{'y'}, 100)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 3, flute: true, sbn: 0, esi: 2, payload: bytes.Repeat([]byte{'z'}, 50)}))
	drain(t, d)

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	fi := segs[0].FileInfo
	assert.Equal(t, PartialNone, fi.Partial)
	assert.Equal(t, uint64(250), fi.TotalSize)
	assert.Equal(t, byte('y'), fi.Blob[100])
	assert.Equal(t, byte('z'), fi.Blob[200])
}

func TestPurgePrevious(t *testing.T) {
	d, conn, _ := newTestDemuxer(t, Config{})

	for toi := uint64(1); toi <= 3; toi++ {
		conn.push(buildPkt(pktSpec{tsi: 1, toi: toi, tol: 10, offset: 0, payload: make([]byte, 10)}))
	}
	drain(t, d)
	require.Equal(t, 3, d.ObjectCount(testServiceID))

	require.NoError(t, d.ForceKeepObjectByName(testServiceID, "toi-1", true))
	require.NoError(t, d.RemoveObjectByName(testServiceID, "toi-3", true))

	// TOI 3 与更早的 TOI 2 被移除 force_keep 的 TOI 1 保留
	assert.Equal(t, 1, d.ObjectCount(testServiceID))
	assert.NoError(t, d.ForceKeepObjectByName(testServiceID, "toi-1", false))
	assert.ErrorIs(t, d.RemoveObjectByName(testServiceID, "toi-2", false), ErrNotFound)
}

func TestRemoveObject(t *testing.T) {
	d, conn, _ := newTestDemuxer(t, Config{})

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	assert.ErrorIs(t, d.RemoveObject(testServiceID, 1, 99), ErrNotFound)
	require.NoError(t, d.RemoveObject(testServiceID, 1, 1))
	assert.Equal(t, 0, d.ObjectCount(testServiceID))
}

func TestRemoveFirstObject(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})

	for toi := uint64(1); toi <= 2; toi++ {
		conn.push(buildPkt(pktSpec{tsi: 1, toi: toi, tol: 10, offset: 0, payload: make([]byte, 10)}))
	}
	drain(t, d)

	require.NoError(t, d.ForceKeepObject(testServiceID, 1, 1, true))
	require.NoError(t, d.RemoveFirstObject(testServiceID))

	// 最老的未保留对象是 TOI 2 驱逐时通知缓存
	dels := rec.ofType(EventFileDelete)
	require.Len(t, dels, 1)
	assert.Equal(t, uint64(2), dels[0].FileInfo.TOI)
	assert.Equal(t, 1, d.ObjectCount(testServiceID))

	// 只剩保留对象 无可驱逐
	assert.ErrorIs(t, d.RemoveFirstObject(testServiceID), ErrNotFound)
}

func TestPurgeAndReset(t *testing.T) {
	d, conn, _ := newTestDemuxer(t, Config{})

	// TSI 0 信令对象与 TSI 1 三个分段
	conn.push(buildPkt(pktSpec{tsi: 0, toi: 9, tol: 10, offset: 0, payload: make([]byte, 10)}))
	for toi := uint64(1); toi <= 3; toi++ {
		conn.push(buildPkt(pktSpec{tsi: 1, toi: toi, tol: 10, offset: 0, payload: make([]byte, 10)}))
	}
	drain(t, d)
	require.Equal(t, 4, d.ObjectCount(testServiceID))

	require.NoError(t, d.ForceKeepObject(testServiceID, 1, 2, true))
	d.PurgeObjects(testServiceID)

	// 信令 force_keep 与每 TSI 最近完成的对象保留 只清掉 TOI 1
	assert.Equal(t, 3, d.ObjectCount(testServiceID))
	assert.ErrorIs(t, d.ForceKeepObjectByName(testServiceID, "toi-1", true), ErrNotFound)

	// ResetAll 无视保留标志
	d.ResetAll()
	assert.Equal(t, 0, d.ObjectCount(testServiceID))
}

func TestPatchFragInfo(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, tol: 3000, offset: 0, payload: make([]byte, 1000)}))
	drain(t, d)

	require.NoError(t, d.PatchFragInfo(testServiceID, 1, 5, 1000, 1000))

	obj := d.services[testServiceID].objects[objKey{tsi: 1, toi: 5}]
	require.NotNil(t, obj)
	ranges := obj.frags.Ranges()
	require.Len(t, ranges, 1)
	assert.Equal(t, uint64(0), ranges[0].Offset)
	assert.Equal(t, uint64(2000), ranges[0].Size)
	assert.GreaterOrEqual(t, len(obj.buf.B), 2000)
	assert.Empty(t, rec.ofType(EventDynSegment))

	// 修复补齐最后一个洞 触发完成分发
	require.NoError(t, d.PatchFragInfo(testServiceID, 1, 5, 2000, 1000))
	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	assert.Equal(t, PartialNone, segs[0].FileInfo.Partial)

	assert.ErrorIs(t, d.PatchFragInfo(testServiceID, 1, 99, 0, 10), ErrNotFound)
}

func TestPatchFragInfoRejectsOverflowRange(t *testing.T) {
	d, conn, _ := newTestDemuxer(t, Config{})

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, tol: 3000, offset: 0, payload: make([]byte, 1000)}))
	drain(t, d)

	// offset+size 回绕不得绕过对象上限
	assert.Error(t, d.PatchFragInfo(testServiceID, 1, 5, ^uint64(0)-10, 100))
	assert.Error(t, d.PatchFragInfo(testServiceID, 1, 5, 100, ^uint64(0)-10))

	obj := d.services[testServiceID].objects[objKey{tsi: 1, toi: 5}]
	require.NotNil(t, obj)
	ranges := obj.frags.Ranges()
	require.Len(t, ranges, 1)
	assert.Equal(t, uint64(1000), ranges[0].Size)
}

func TestPatchBlobSize(t *testing.T) {
	d, conn, _ := newTestDemuxer(t, Config{})

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, tol: 3000, offset: 0, payload: make([]byte, 1000)}))
	drain(t, d)

	require.NoError(t, d.PatchBlobSize(testServiceID, 1, 5, 4000))
	obj := d.services[testServiceID].objects[objKey{tsi: 1, toi: 5}]
	assert.Equal(t, uint64(4000), obj.totalSize)
	assert.GreaterOrEqual(t, len(obj.buf.B), 4000)
}

func TestUserDataRoundTrip(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{DispatchMode: "progressive"})
	rec.hook = func(evt Event) {
		if evt.Type == EventDynSegmentFrag && evt.FileInfo.UserData == nil {
			evt.FileInfo.UserData = "tagged"
		}
	}

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, tol: 200, offset: 0, payload: make([]byte, 100)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 5, tol: 200, offset: 100, payload: make([]byte, 100)}))
	drain(t, d)

	segs := rec.ofType(EventDynSegment)
	require.Len(t, segs, 1)
	assert.Equal(t, "tagged", segs[0].FileInfo.UserData)
}

func TestHandlerPanicContained(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})
	rec.hook = func(evt Event) {
		if evt.Type == EventDynSegment {
			panic("handler bug")
		}
	}

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 2, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	assert.Len(t, rec.ofType(EventDynSegment), 2)
}

func TestServiceUserData(t *testing.T) {
	d, conn, _ := newTestDemuxer(t, Config{})

	_, err := d.GetServiceUserData(testServiceID)
	assert.ErrorIs(t, err, ErrNotFound)

	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	require.NoError(t, d.SetServiceUserData(testServiceID, 42))
	v, err := d.GetServiceUserData(testServiceID)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestMalformedPacketsDropped(t *testing.T) {
	d, conn, rec := newTestDemuxer(t, Config{})

	conn.push([]byte{0xFF})
	conn.push(buildPkt(pktSpec{tsi: 1, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)}))
	drain(t, d)

	assert.Equal(t, uint64(2), d.PacketCount())
	assert.Len(t, rec.ofType(EventDynSegment), 1)
}

func TestStatsCounters(t *testing.T) {
	d, conn, _ := newTestDemuxer(t, Config{})
	assert.Zero(t, d.FirstPacketTime())

	pkt := buildPkt(pktSpec{tsi: 1, toi: 1, tol: 10, offset: 0, payload: make([]byte, 10)})
	conn.push(pkt)
	drain(t, d)

	assert.Equal(t, uint64(1), d.PacketCount())
	assert.Equal(t, uint64(len(pkt)), d.RecvBytes())
	assert.NotZero(t, d.FirstPacketTime())
	assert.GreaterOrEqual(t, d.LastPacketTime(), d.FirstPacketTime())
	assert.True(t, d.HasActiveMulticast())
	assert.NoError(t, d.Close())
}
