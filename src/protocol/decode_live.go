package protocol

import (
	"github.com/nhirsama/Goster-Ring/src/inter"
	"go.uber.org/zap"
)

// 有效心率范围
const (
	MinHeartRate = 30
	MaxHeartRate = 220
)

// handleManualHeartRate [1]测量类型 [2]状态 [3]bpm
// 有效读数写入心率历史，时间为收到的时刻
func (r *Router) handleManualHeartRate(packet []byte) {
	if r.tooShort("manual_heart_rate", packet, 4) {
		return
	}
	m := inter.ManualHeartRate{
		Time:   r.now(),
		Status: inter.MeasureStatus(packet[2]),
		BPM:    int(packet[3]),
	}
	if m.Status != inter.MeasureOK {
		r.log.Info("manual heart rate measurement failed", zap.Uint8("status", uint8(m.Status)))
		if r.cb.OnHeartRate != nil {
			r.cb.OnHeartRate(m)
		}
		return
	}
	if m.BPM < MinHeartRate || m.BPM > MaxHeartRate {
		r.log.Debug("heart rate out of range, discarded", zap.Int("bpm", m.BPM))
		return
	}
	r.sink.AddHeartRate(inter.HeartRateSample{Time: m.Time, BPM: m.BPM})
	r.samples(inter.DomainHeartRate, 1)
	if r.cb.OnHeartRate != nil {
		r.cb.OnHeartRate(m)
	}
}

// handleNotification 0x73 推送，[1] 为子类型
func (r *Router) handleNotification(packet []byte) {
	if r.tooShort("notification", packet, 2) {
		return
	}
	kind := inter.NotifyType(packet[1])
	switch kind {
	case inter.NotifyNewHeartRate, inter.NotifyNewSpO2, inter.NotifyNewSteps:
		if r.cb.OnNewData != nil {
			r.cb.OnNewData(kind)
		}
	case inter.NotifyBattery:
		if r.tooShort("notification_battery", packet, 4) {
			return
		}
		r.battery(packet[2], packet[3])
	case inter.NotifyLiveActivity:
		if r.tooShort("live_activity", packet, 11) {
			return
		}
		live := inter.LiveActivity{
			Time:     r.now(),
			Steps:    be24(packet[2:5]),
			Calories: float64(be24(packet[5:8])) / 100,
			Distance: be24(packet[8:11]),
		}
		if r.cb.OnLiveActivity != nil {
			r.cb.OnLiveActivity(live)
		}
	default:
		r.log.Debug("unknown notification, dropped", zap.Uint8("type", packet[1]))
	}
}

// handleBattery 0x03 应答 [1]电量 [2]充电中
func (r *Router) handleBattery(packet []byte) {
	if r.tooShort("battery", packet, 3) {
		return
	}
	r.battery(packet[1], packet[2])
}

func (r *Router) battery(level, charging byte) {
	info := inter.BatteryInfo{Level: int(level), Charging: charging != 0}
	if info.Level > 100 {
		r.log.Debug("battery level out of range, dropped", zap.Int("level", info.Level))
		return
	}
	if r.cb.OnBattery != nil {
		r.cb.OnBattery(info)
	}
}
