package protocol

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
)

// maxPhoneName 16 字节帧减去 cmd、两个前导字节和校验和
const maxPhoneName = FrameSize - 4

// Encode 生成出站数据包 [cmd, ...payload]
func Encode(cmd inter.CmdID, payload ...byte) []byte {
	out := make([]byte, 0, 1+len(payload))
	out = append(out, byte(cmd))
	return append(out, payload...)
}

// SetDateTime 各字段均以 BCD 编码，年份为 year-2000
func SetDateTime(t time.Time) []byte {
	return Encode(inter.CmdSetDateTime,
		ToBCD(t.Year()-2000),
		ToBCD(int(t.Month())),
		ToBCD(t.Day()),
		ToBCD(t.Hour()),
		ToBCD(t.Minute()),
		ToBCD(t.Second()),
	)
}

func ReadBattery() []byte { return Encode(inter.CmdBattery) }

func PowerOff() []byte { return Encode(inter.CmdPowerOff, 0x01) }

func FindDevice() []byte { return Encode(inter.CmdFindDevice, 0x55, 0xAA) }

func FactoryReset() []byte { return Encode(inter.CmdFactoryReset, 0x66, 0x66) }

// SetPhoneName 名称超出单帧容量时截断
func SetPhoneName(name string) []byte {
	b := []byte(name)
	if len(b) > maxPhoneName {
		b = b[:maxPhoneName]
	}
	return Encode(inter.CmdPhoneName, append([]byte{0x02, 0x0A}, b...)...)
}

func ReadPreferences() []byte { return Encode(inter.CmdPreferences, inter.PrefRead) }

// WritePreferences 字段顺序固定：时间制式、单位、性别、年龄、身高、体重、收缩压、舒张压、心率报警阈值
func WritePreferences(p inter.Preferences) []byte {
	return Encode(inter.CmdPreferences, inter.PrefWrite,
		p.TimeFormat, p.UnitSystem, p.Sex, p.Age, p.HeightCm, p.WeightKg,
		p.Systolic, p.Diastolic, p.HeartRateWarning,
	)
}

func ReadGoals() []byte { return Encode(inter.CmdGoals, inter.PrefRead) }

// WriteGoals 卡路里目标按 ×1000 编码，与活动历史的 ÷100 不同
func WriteGoals(g inter.Goals) []byte {
	payload := make([]byte, 14)
	payload[0] = inter.PrefWrite
	putLE24(payload[1:], g.Steps)
	putLE24(payload[4:], int(g.Calories*1000))
	putLE24(payload[7:], g.Distance)
	binary.LittleEndian.PutUint16(payload[10:], uint16(g.SportMinutes))
	binary.LittleEndian.PutUint16(payload[12:], uint16(g.SleepMinutes))
	return Encode(inter.CmdGoals, payload...)
}

func onOff(enabled bool) byte {
	if enabled {
		return 0x01
	}
	return 0x00
}

// AutoHeartRate 心率自动测量：启用 0x01，关闭 0x02，interval 为分钟
func AutoHeartRate(enabled bool, interval int) []byte {
	state := byte(0x02)
	if enabled {
		state = 0x01
	}
	return Encode(inter.CmdAutoHeartRatePref, inter.PrefWrite, state, byte(interval))
}

func AutoSpO2(enabled bool) []byte {
	return Encode(inter.CmdAutoSpO2Pref, inter.PrefWrite, onOff(enabled))
}

func AutoStress(enabled bool) []byte {
	return Encode(inter.CmdAutoStressPref, inter.PrefWrite, onOff(enabled))
}

func AutoHRV(enabled bool) []byte {
	return Encode(inter.CmdAutoHRVPref, inter.PrefWrite, onOff(enabled))
}

func AutoTemperature(enabled bool) []byte {
	return Encode(inter.CmdAutoTemperaturePref, 0x03, inter.PrefWrite, onOff(enabled))
}

func StartManualHeartRate() []byte {
	return Encode(inter.CmdManualHeartRate, 0x01, 0x01)
}

func StopManualHeartRate() []byte {
	return Encode(inter.CmdManualHeartRate, 0x01, 0x00)
}

// RequestActivity 请求 daysAgo 天前的 15 分钟活动数据
func RequestActivity(daysAgo int) []byte {
	return Encode(inter.CmdSyncActivity, byte(daysAgo), 0x0F, 0x00, 0x5F, 0x01)
}

// RequestHeartRate 以当天本地零点的"墙钟"Unix 秒（按 UTC 解释）作为参数
func RequestHeartRate(day time.Time) []byte {
	y, m, d := day.Date()
	ts := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(ts))
	return Encode(inter.CmdSyncHeartRate, payload...)
}

// RequestDay 解析历史请求指向的天偏移（相对 now 所在的今天）
// 只认活动、心率和 HRV 请求
func RequestDay(packet []byte, now time.Time) (int, bool) {
	if len(packet) < 2 {
		return 0, false
	}
	switch inter.CmdID(packet[0]) {
	case inter.CmdSyncActivity, inter.CmdSyncHRV:
		return int(packet[1]), true
	case inter.CmdSyncHeartRate:
		if len(packet) < 5 {
			return 0, false
		}
		ts := binary.LittleEndian.Uint32(packet[1:5])
		y, m, d := time.Unix(int64(ts), 0).UTC().Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		return int(math.Round(inter.DayStart(now, 0).Sub(day).Hours() / 24)), true
	}
	return 0, false
}

func RequestStress() []byte { return Encode(inter.CmdSyncStress) }

func RequestHRV(daysAgo int) []byte {
	return Encode(inter.CmdSyncHRV, byte(daysAgo))
}

// bigDataLength 每种数据类型请求"全部历史"时使用的长度字段
var bigDataLength = map[inter.DataType]uint16{
	inter.DataSpO2:        0x00FF,
	inter.DataSleep:       0x00FF,
	inter.DataTemperature: 0x813E,
}

// RequestBigData [0xBC, type, 0x01, 0x00, lenLow, lenHigh]
func RequestBigData(dt inter.DataType) []byte {
	n := bigDataLength[dt]
	return Encode(inter.CmdBigDataV2, byte(dt), 0x01, 0x00, byte(n), byte(n>>8))
}
