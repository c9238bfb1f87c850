package protocol

import (
	"testing"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// bigDataFrame 生成 [0xBC, type, lenLE16, crc(0), payload]
func bigDataFrame(dt inter.DataType, payload []byte) []byte {
	n := len(payload)
	out := []byte{byte(inter.CmdBigDataV2), byte(dt), byte(n), byte(n >> 8), 0, 0}
	return append(out, payload...)
}

func spo2Payload() []byte {
	var p []byte
	// 两天前：01:00 与 06:00 有读数，05:00 缺最大值
	day2 := make([]byte, 1+48)
	day2[0] = 2
	day2[1+2], day2[1+3] = 94, 98
	day2[1+10], day2[1+11] = 95, 0 // max 为 0，不入库
	day2[1+10+2], day2[1+10+3] = 96, 100
	p = append(p, day2...)
	// 今天
	day0 := make([]byte, 1+48)
	day0[0] = 0
	day0[1], day0[2] = 97, 99
	p = append(p, day0...)
	return p
}

func TestReassembler_SingleFragment(t *testing.T) {
	var gotType inter.DataType
	var got []byte
	a := NewReassembler(func(dt inter.DataType, b []byte) { gotType, got = dt, b }, zap.NewNop())

	frame := bigDataFrame(inter.DataSleep, []byte{1, 2, 3})
	a.Feed(frame)
	assert.False(t, a.Pending())
	assert.Equal(t, inter.DataSleep, gotType)
	assert.Equal(t, frame, got)
}

func TestReassembler_ProgressAndOverrun(t *testing.T) {
	calls := 0
	var got []byte
	a := NewReassembler(func(_ inter.DataType, b []byte) { calls++; got = b }, zap.NewNop())

	frame := bigDataFrame(inter.DataTemperature, make([]byte, 20))
	a.Feed(frame[:10])
	require.True(t, a.Pending())
	received, expected := a.Progress()
	assert.Equal(t, 10, received)
	assert.Equal(t, 26, expected)

	// 最后一个分片多出的字节被截掉
	a.Feed(append(append([]byte{}, frame[10:]...), 0xAA, 0xBB))
	assert.False(t, a.Pending())
	assert.Equal(t, 1, calls)
	assert.Len(t, got, 26)

	r, e := a.Progress()
	assert.Zero(t, r)
	assert.Zero(t, e)
}

func TestReassembler_DropsHeaderlessFragment(t *testing.T) {
	calls := 0
	a := NewReassembler(func(inter.DataType, []byte) { calls++ }, zap.NewNop())
	a.Feed([]byte{0x01, 0x02, 0x03, 0x04})
	assert.False(t, a.Pending())
	assert.Zero(t, calls)
}

func TestReassembler_HeaderSplitAcrossFragments(t *testing.T) {
	frame := bigDataFrame(inter.DataSleep, []byte{1, 2, 3, 4, 5})
	for cut := 1; cut < bigDataPrefix; cut++ {
		var got []byte
		a := NewReassembler(func(_ inter.DataType, b []byte) { got = b }, zap.NewNop())
		a.Feed(frame[:cut])
		require.True(t, a.Pending(), "cut at %d", cut)
		received, expected := a.Progress()
		assert.Equal(t, cut, received)
		assert.Zero(t, expected)

		a.Feed(frame[cut:])
		assert.False(t, a.Pending())
		assert.Equal(t, frame, got, "cut at %d", cut)
	}
}

func TestReassembler_ForeignHeaderRestarts(t *testing.T) {
	var types []inter.DataType
	a := NewReassembler(func(dt inter.DataType, _ []byte) { types = append(types, dt) }, zap.NewNop())

	temp := bigDataFrame(inter.DataTemperature, make([]byte, 100))
	a.Feed(temp[:16])
	require.True(t, a.Pending())

	spo2 := bigDataFrame(inter.DataSpO2, make([]byte, 4))
	a.Feed(spo2)
	assert.False(t, a.Pending())
	assert.Equal(t, []inter.DataType{inter.DataSpO2}, types)
}

func TestBigData_FragmentationInvariant(t *testing.T) {
	frame := bigDataFrame(inter.DataSpO2, spo2Payload())

	whole := newFixture(t)
	whole.router.HandleChannel(inter.ChannelBigData, frame)

	for _, cuts := range [][2]int{{7, 50}, {2, 40}, {1, 3}} {
		split := newFixture(t)
		split.router.Handle(frame[:cuts[0]])
		assert.True(t, split.router.Reassembler().Pending())
		split.router.Handle(frame[cuts[0]:cuts[1]])
		split.router.Handle(frame[cuts[1]:])

		assert.Equal(t, whole.store.Snapshot(), split.store.Snapshot(), "cuts %v", cuts)
		assert.Equal(t, whole.completions, split.completions, "cuts %v", cuts)
	}

	spo2 := whole.store.Snapshot().SpO2
	require.Len(t, spo2, 3)
	day2 := inter.DayStart(testNow, 2)
	assert.Equal(t, inter.SpO2Sample{Time: day2.Add(1 * time.Hour), Percent: 96}, spo2[0])
	assert.Equal(t, inter.SpO2Sample{Time: day2.Add(6 * time.Hour), Percent: 98}, spo2[1])
	assert.Equal(t, inter.SpO2Sample{Time: inter.DayStart(testNow, 0), Percent: 98}, spo2[2])

	require.Len(t, whole.completions, 1)
	assert.Equal(t, inter.Completion{Domain: inter.DomainSpO2, Outcome: inter.OutcomeDayComplete}, whole.completions[0])
}

func TestBigData_ContinuationLooksLikeCommand(t *testing.T) {
	// 分片首字节恰好是已注册指令 ID 时，仍应作为续片处理
	payload := make([]byte, 40)
	payload[12] = byte(inter.CmdSyncActivity)
	frame := bigDataFrame(inter.DataSpO2, payload)

	f := newFixture(t)
	f.router.Handle(frame[:18])
	f.router.Handle(frame[18:])
	assert.Empty(t, f.store.Snapshot().Activity)
	require.Len(t, f.completions, 1)
	assert.Equal(t, inter.DomainSpO2, f.completions[0].Domain)
}

func TestBigData_ChannelBlindLink(t *testing.T) {
	frame := bigDataFrame(inter.DataSpO2, spo2Payload())
	whole := newFixture(t)
	whole.router.HandleChannel(inter.ChannelBigData, frame)

	// 链路不区分特征时所有数据包都报告为指令通道
	f := newFixture(t)
	f.router.HandleChannel(inter.ChannelCommand, frame[:18])
	require.True(t, f.router.Reassembler().Pending())
	f.router.HandleChannel(inter.ChannelCommand, frame[18:])

	assert.False(t, f.router.Reassembler().Pending())
	assert.Equal(t, whole.store.Snapshot(), f.store.Snapshot())
	assert.Equal(t, whole.completions, f.completions)
}

func TestBigData_CommandFrameDuringReassembly(t *testing.T) {
	frame := bigDataFrame(inter.DataSpO2, spo2Payload())
	whole := newFixture(t)
	whole.router.Handle(frame)

	f := newFixture(t)
	f.router.Handle(frame[:30])
	f.router.Handle(pad(byte(inter.CmdBattery), 80, 1))
	f.router.Handle(frame[30:])

	require.Len(t, f.battery, 1)
	assert.Equal(t, inter.BatteryInfo{Level: 80, Charging: true}, f.battery[0])
	assert.Equal(t, whole.store.Snapshot(), f.store.Snapshot())
	assert.Equal(t, whole.completions, f.completions)
}

func TestBigData_EmptyPayloadStillCompletes(t *testing.T) {
	f := newFixture(t)
	f.router.Handle(bigDataFrame(inter.DataSleep, nil))
	f.router.Handle(bigDataFrame(inter.DataTemperature, nil))
	f.router.Handle(bigDataFrame(inter.DataSpO2, nil))

	require.Len(t, f.completions, 3)
	for _, c := range f.completions {
		assert.Equal(t, inter.OutcomeNoData, c.Outcome)
	}
}

func TestBigData_Sleep(t *testing.T) {
	// daysAgo=1, byteCount=14, 入睡 23:00 (1380), 醒来 07:00 (420)
	// 最后一段越过会话结束，截断到 07:00
	block := []byte{
		1, 14,
		0x64, 0x05,
		0xA4, 0x01,
		2, 120,
		3, 60,
		4, 90,
		5, 30,
		2, 255,
	}
	payload := append([]byte{1}, block...)

	f := newFixture(t)
	f.router.Handle(bigDataFrame(inter.DataSleep, payload))

	recs := f.store.Snapshot().Sleep
	require.Len(t, recs, 5)
	wake := inter.DayStart(testNow, 1).Add(7 * time.Hour)
	bed := inter.DayStart(testNow, 2).Add(23 * time.Hour)

	assert.Equal(t, bed, recs[0].Start)
	assert.Equal(t, inter.SleepLight, recs[0].Stage)
	assert.Equal(t, bed.Add(2*time.Hour), recs[0].End)
	assert.Equal(t, inter.SleepDeep, recs[1].Stage)
	assert.Equal(t, inter.SleepREM, recs[2].Stage)
	assert.Equal(t, inter.SleepAwake, recs[3].Stage)
	assert.Equal(t, wake, recs[4].End)

	for i, r := range recs {
		assert.True(t, r.End.After(r.Start))
		assert.False(t, r.End.After(wake))
		if i > 0 {
			assert.False(t, r.Start.Before(recs[i-1].End))
		}
	}
	require.Len(t, f.completions, 1)
	assert.Equal(t, inter.Completion{Domain: inter.DomainSleep, Outcome: inter.OutcomeDayComplete}, f.completions[0])
}

func TestBigData_Temperature(t *testing.T) {
	block := make([]byte, 2+48)
	block[0] = 0
	block[1] = 30
	block[2] = 150
	block[3] = 163

	f := newFixture(t)
	f.router.Handle(bigDataFrame(inter.DataTemperature, block))

	temps := f.store.Snapshot().Temperature
	require.Len(t, temps, 2)
	day := inter.DayStart(testNow, 0)
	assert.Equal(t, day, temps[0].Time)
	assert.InDelta(t, 35.0, temps[0].Celsius, 1e-9)
	assert.Equal(t, day.Add(30*time.Minute), temps[1].Time)
	assert.InDelta(t, 36.3, temps[1].Celsius, 1e-9)
}
