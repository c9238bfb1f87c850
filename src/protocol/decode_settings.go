package protocol

import (
	"encoding/hex"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"go.uber.org/zap"
)

// ackOnly 这些指令的应答只记录日志
var ackOnly = []inter.CmdID{
	inter.CmdSetDateTime,
	inter.CmdPhoneName,
	inter.CmdDisplayPref,
	inter.CmdPowerOff,
	inter.CmdPacketSize,
	inter.CmdFindDevice,
	inter.CmdFactoryReset,
	inter.CmdAutoHeartRatePref,
	inter.CmdAutoSpO2Pref,
	inter.CmdAutoStressPref,
	inter.CmdAutoHRVPref,
	inter.CmdAutoTemperaturePref,
}

func (r *Router) handleAck(packet []byte) {
	r.log.Debug("command acknowledged",
		zap.Uint8("cmd", packet[0]),
		zap.String("hex", hex.EncodeToString(packet)),
	)
}

// handlePreferences 读应答 [1]=0x01 后按写入顺序排列 9 个字段
func (r *Router) handlePreferences(packet []byte) {
	if len(packet) < 11 || packet[1] != inter.PrefRead {
		r.handleAck(packet)
		return
	}
	p := inter.Preferences{
		TimeFormat:       packet[2],
		UnitSystem:       packet[3],
		Sex:              packet[4],
		Age:              packet[5],
		HeightCm:         packet[6],
		WeightKg:         packet[7],
		Systolic:         packet[8],
		Diastolic:        packet[9],
		HeartRateWarning: packet[10],
	}
	if r.cb.OnPreferences != nil {
		r.cb.OnPreferences(p)
	}
}

// handleGoals 读应答：步数、卡路里(÷1000)、距离均为 24 位小端，随后运动/睡眠分钟数 16 位小端
func (r *Router) handleGoals(packet []byte) {
	if len(packet) < 15 || packet[1] != inter.PrefRead {
		r.handleAck(packet)
		return
	}
	g := inter.Goals{
		Steps:        le24(packet[2:5]),
		Calories:     float64(le24(packet[5:8])) / 1000,
		Distance:     le24(packet[8:11]),
		SportMinutes: le16(packet[11:13]),
		SleepMinutes: le16(packet[13:15]),
	}
	if r.cb.OnGoals != nil {
		r.cb.OnGoals(g)
	}
}
