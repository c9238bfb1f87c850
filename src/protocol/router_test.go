package protocol

import (
	"testing"
	"time"

	"github.com/nhirsama/Goster-Ring/src/datastore"
	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

type routerFixture struct {
	router      *Router
	store       *datastore.MemoryStore
	cursor      *inter.Cursor
	completions []inter.Completion
	battery     []inter.BatteryInfo
	manual      []inter.ManualHeartRate
	live        []inter.LiveActivity
	prefs       []inter.Preferences
	goals       []inter.Goals
	newData     []inter.NotifyType
}

func newFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{store: datastore.NewMemoryStore(), cursor: &inter.Cursor{}}
	f.cursor.Reset(testNow)
	cb := Callbacks{
		OnComplete:     func(c inter.Completion) { f.completions = append(f.completions, c) },
		OnBattery:      func(b inter.BatteryInfo) { f.battery = append(f.battery, b) },
		OnHeartRate:    func(m inter.ManualHeartRate) { f.manual = append(f.manual, m) },
		OnLiveActivity: func(l inter.LiveActivity) { f.live = append(f.live, l) },
		OnPreferences:  func(p inter.Preferences) { f.prefs = append(f.prefs, p) },
		OnGoals:        func(g inter.Goals) { f.goals = append(f.goals, g) },
		OnNewData:      func(n inter.NotifyType) { f.newData = append(f.newData, n) },
	}
	f.router = NewRouter(f.store, f.cursor, cb, zap.NewNop(), WithClock(func() time.Time { return testNow }))
	return f
}

// pad 模拟戒指发来的 16 字节指令帧
func pad(b ...byte) []byte {
	out, err := Frame(b)
	if err != nil {
		panic(err)
	}
	return out
}

func TestRouter_IgnoresEmptyAndUnknown(t *testing.T) {
	f := newFixture(t)
	f.router.Handle(nil)
	f.router.Handle([]byte{})
	f.router.Handle(pad(0x99, 0x01, 0x02))
	f.router.HandleChannel(inter.ChannelCommand, nil)

	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.completions)
	assert.False(t, f.router.Reassembler().Pending())
}

func TestRouter_TooShortPacketsDropped(t *testing.T) {
	f := newFixture(t)
	f.router.Handle([]byte{0x15})
	f.router.Handle([]byte{0x43, 6, 15, 36})
	f.router.Handle([]byte{0x69, 0x01})
	f.router.Handle([]byte{0x73, 0x12, 0x00})
	f.router.Handle([]byte{0x03})

	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.completions)
	assert.Empty(t, f.live)
	assert.Empty(t, f.battery)
}

func TestActivity_DecodesReferencePacket(t *testing.T) {
	f := newFixture(t)
	f.router.Handle([]byte{0x43, 6, 15, 36, 0, 1, 0xE8, 0x03, 0x64, 0x00, 0x32, 0x00, 0x00})

	snap := f.store.Snapshot()
	require.Len(t, snap.Activity, 1)
	s := snap.Activity[0]
	assert.Equal(t, time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC), s.Time)
	assert.Equal(t, 100, s.Steps)
	assert.InDelta(t, 10.0, s.Calories, 1e-9)
	assert.Equal(t, 50, s.Distance)

	require.Len(t, f.completions, 1)
	assert.Equal(t, inter.Completion{Domain: inter.DomainActivity, Outcome: inter.OutcomeDayComplete}, f.completions[0])
}

func TestActivity_SentinelsAndYearInference(t *testing.T) {
	f := newFixture(t)

	f.router.Handle(pad(0x43, 0xF0))
	assert.Empty(t, f.completions, "0xF0 marker must not complete the day")

	f.router.Handle(pad(0x43, 0xFF))
	require.Len(t, f.completions, 1)
	assert.Equal(t, inter.OutcomeNoData, f.completions[0].Outcome)
	assert.Zero(t, f.store.Len())

	// 12 月的数据在 6 月收到，属于去年
	f.router.Handle(pad(0x43, 12, 31, 0, 0, 2, 0x10, 0x00, 0x05, 0x00, 0x01, 0x00))
	snap := f.store.Snapshot()
	require.Len(t, snap.Activity, 1)
	assert.Equal(t, 2023, snap.Activity[0].Time.Year())
	assert.Len(t, f.completions, 1, "packet 0 of 2 does not complete the day")

	// 全零槽位不入库，但最后一包仍完成当天
	f.router.Handle(pad(0x43, 12, 31, 1, 1, 2))
	assert.Len(t, f.store.Snapshot().Activity, 1)
	require.Len(t, f.completions, 2)
	assert.Equal(t, inter.OutcomeDayComplete, f.completions[1].Outcome)
}

func TestHeartRate_SentinelAddsNothing(t *testing.T) {
	f := newFixture(t)
	f.router.Handle([]byte{0x15, 0xFF})

	assert.Zero(t, f.store.Len())
	require.Len(t, f.completions, 1)
	assert.Equal(t, inter.Completion{Domain: inter.DomainHeartRate, Outcome: inter.OutcomeNoData}, f.completions[0])
}

func TestHeartRate_MultiPacketDay(t *testing.T) {
	f := newFixture(t)
	f.cursor.SetDay(1, testNow)
	day := inter.DayStart(testNow, 1)

	f.router.Handle(pad(0x15, 0x00, 0x03, 0x05))
	assert.Equal(t, 3, f.cursor.TotalPackets)
	assert.Empty(t, f.completions)

	// 包 1：[2:6] 为时间戳，[6:15] 9 个槽位
	f.router.Handle(pad(0x15, 0x01, 0, 0, 0, 0, 60, 0, 62, 63, 64, 65, 66, 67, 68))
	// 包 2：[2:15] 13 个槽位
	f.router.Handle(pad(0x15, 0x02, 70, 71, 72, 73, 74, 75, 76, 77, 78, 79, 80, 81, 82))

	snap := f.store.Snapshot()
	require.Len(t, snap.HeartRate, 8+13)
	assert.Equal(t, day, snap.HeartRate[0].Time)
	assert.Equal(t, 60, snap.HeartRate[0].BPM)
	// 槽位 1 为 0，被跳过
	assert.Equal(t, day.Add(10*time.Minute), snap.HeartRate[1].Time)
	// 包 2 第一个槽位接在包 1 的 9 个槽位之后
	assert.Equal(t, day.Add(9*5*time.Minute), snap.HeartRate[8].Time)
	assert.Equal(t, 70, snap.HeartRate[8].BPM)

	for i, s := range snap.HeartRate {
		assert.False(t, s.Time.Before(day))
		assert.True(t, s.Time.Before(day.Add(24*time.Hour)))
		if i > 0 {
			assert.True(t, s.Time.After(snap.HeartRate[i-1].Time))
		}
	}

	require.Len(t, f.completions, 1)
	assert.Equal(t, inter.Completion{Domain: inter.DomainHeartRate, Outcome: inter.OutcomeDayComplete}, f.completions[0])
	assert.Equal(t, 2, f.cursor.LastPacket)
}

func TestHeartRate_SlotsBoundedToOneDay(t *testing.T) {
	f := newFixture(t)
	f.router.Handle(pad(0x15, 0x00, 0xFE))
	// 包 23 起始槽位 9+21*13 = 282，只剩 6 个有效槽位
	vals := make([]byte, 0, 15)
	vals = append(vals, 0x15, 23)
	for i := 0; i < 13; i++ {
		vals = append(vals, 90)
	}
	f.router.Handle(pad(vals...))

	snap := f.store.Snapshot()
	require.Len(t, snap.HeartRate, 6)
	last := snap.HeartRate[len(snap.HeartRate)-1].Time
	assert.Equal(t, inter.DayStart(testNow, 0).Add(287*5*time.Minute), last)
}

func TestHeartRate_HeaderWithoutData(t *testing.T) {
	f := newFixture(t)
	f.router.Handle(pad(0x15, 0x00, 0x01))
	require.Len(t, f.completions, 1)
	assert.Equal(t, inter.OutcomeNoData, f.completions[0].Outcome)
}

func TestStressAndHRV_ThirtyMinuteSlots(t *testing.T) {
	f := newFixture(t)
	day := inter.DayStart(testNow, 0)

	f.router.Handle(pad(0x37, 0x00, 0x02))
	f.router.Handle(pad(0x37, 0x01, 0x1E, 20, 0, 30, 0, 0, 0, 0, 0, 0, 0, 0, 45))
	require.Len(t, f.completions, 1)
	assert.Equal(t, inter.DomainStress, f.completions[0].Domain)

	stress := f.store.Snapshot().Stress
	require.Len(t, stress, 3)
	assert.Equal(t, day, stress[0].Time)
	assert.Equal(t, day.Add(time.Hour), stress[1].Time)
	assert.Equal(t, day.Add(11*30*time.Minute), stress[2].Time)
	assert.Equal(t, 45, stress[2].Level)

	f.router.Handle(pad(0x39, 0x00, 0x03))
	f.router.Handle(pad(0x39, 0x01, 0x1E, 50))
	f.router.Handle(pad(0x39, 0x02, 55))
	require.Len(t, f.completions, 2)
	assert.Equal(t, inter.DomainHRV, f.completions[1].Domain)

	hrv := f.store.Snapshot().HRV
	require.Len(t, hrv, 2)
	assert.Equal(t, day, hrv[0].Time)
	assert.Equal(t, day.Add(12*30*time.Minute), hrv[1].Time)
	assert.Equal(t, 55, hrv[1].Value)
}

func TestManualHeartRate_Range(t *testing.T) {
	f := newFixture(t)

	f.router.Handle(pad(0x69, 0x01, 0x00, 255))
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.manual)

	f.router.Handle(pad(0x69, 0x01, 0x00, 0))
	assert.Zero(t, f.store.Len())

	f.router.Handle(pad(0x69, 0x01, 0x00, 72))
	snap := f.store.Snapshot()
	require.Len(t, snap.HeartRate, 1)
	assert.Equal(t, 72, snap.HeartRate[0].BPM)
	assert.Equal(t, testNow, snap.HeartRate[0].Time)
	require.Len(t, f.manual, 1)
	assert.Equal(t, inter.MeasureOK, f.manual[0].Status)

	f.router.Handle(pad(0x69, 0x01, 0x01, 0))
	require.Len(t, f.manual, 2)
	assert.Equal(t, inter.MeasureWornIncorrectly, f.manual[1].Status)
	assert.Len(t, f.store.Snapshot().HeartRate, 1)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)

	f.router.Handle(pad(0x73, 0x0C, 80, 1))
	require.Len(t, f.battery, 1)
	assert.Equal(t, inter.BatteryInfo{Level: 80, Charging: true}, f.battery[0])

	f.router.Handle(pad(0x73, 0x12, 0x00, 0x01, 0x00, 0x00, 0x03, 0xE8, 0x00, 0x00, 0x64))
	require.Len(t, f.live, 1)
	assert.Equal(t, 256, f.live[0].Steps)
	assert.InDelta(t, 10.0, f.live[0].Calories, 1e-9)
	assert.Equal(t, 100, f.live[0].Distance)
	assert.Zero(t, f.store.Len(), "live activity is kept out of history")

	f.router.Handle(pad(0x73, 0x01))
	f.router.Handle(pad(0x73, 0x04))
	f.router.Handle(pad(0x73, 0x55))
	assert.Equal(t, []inter.NotifyType{inter.NotifyNewHeartRate, inter.NotifyNewSteps}, f.newData)

	f.router.Handle(pad(0x03, 55, 0))
	require.Len(t, f.battery, 2)
	assert.Equal(t, inter.BatteryInfo{Level: 55}, f.battery[1])
}

func TestSettingsReplies(t *testing.T) {
	f := newFixture(t)

	f.router.Handle(pad(0x0A, 0x01, 0, 0, 1, 30, 175, 70, 120, 80, 160))
	require.Len(t, f.prefs, 1)
	assert.Equal(t, uint8(175), f.prefs[0].HeightCm)
	assert.Equal(t, uint8(160), f.prefs[0].HeartRateWarning)

	f.router.Handle(pad(0x0A, 0x02))
	assert.Len(t, f.prefs, 1, "write ack is logged only")

	f.router.Handle(pad(0x21, 0x01, 0x10, 0x27, 0x00, 0x80, 0x84, 0x1E, 0x40, 0x1F, 0x00, 0x3C, 0x00, 0xE0, 0x01))
	require.Len(t, f.goals, 1)
	assert.Equal(t, inter.Goals{Steps: 10000, Calories: 2000, Distance: 8000, SportMinutes: 60, SleepMinutes: 480}, f.goals[0])

	for _, cmd := range ackOnly {
		f.router.Handle(pad(byte(cmd), 0x00))
	}
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.completions)
}
