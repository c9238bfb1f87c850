package protocol

import (
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"go.uber.org/zap"
)

const (
	// packetNoData 包序号位置上的哨兵：当天没有数据
	packetNoData = 0xFF
	// packetHeader 包序号 0 为头包，[2] 为总包数
	packetHeader = 0x00
	// slotEnd 槽位只到第 14 字节，第 15 字节是校验和
	slotEnd = FrameSize - 1
)

// slotLayout 多包槽位类历史数据（心率、压力、HRV）的布局
type slotLayout struct {
	domain      inter.Domain
	firstOffset int // 第 1 个数据包的槽位起点
	laterOffset int // 第 2 个及之后数据包的槽位起点
	width       time.Duration
	maxSlots    int // 一天的槽位数
}

var (
	heartRateLayout = slotLayout{
		domain:      inter.DomainHeartRate,
		firstOffset: 6,
		laterOffset: 2,
		width:       5 * time.Minute,
		maxSlots:    288,
	}
	stressLayout = slotLayout{
		domain:      inter.DomainStress,
		firstOffset: 3,
		laterOffset: 2,
		width:       30 * time.Minute,
		maxSlots:    48,
	}
	hrvLayout = slotLayout{
		domain:      inter.DomainHRV,
		firstOffset: 3,
		laterOffset: 2,
		width:       30 * time.Minute,
		maxSlots:    48,
	}
)

// slotsBefore 第 no 个数据包之前的槽位总数
func (l slotLayout) slotsBefore(no int) int {
	if no <= 1 {
		return 0
	}
	return (slotEnd - l.firstOffset) + (no-2)*(slotEnd-l.laterOffset)
}

type slot struct {
	time  time.Time
	value int
}

// decodeSlots 处理包序号、头包与哨兵，返回本包中非零槽位
// 返回的 done 表示当天数据已收完
func (r *Router) decodeSlots(l slotLayout, packet []byte) (slots []slot, done bool, outcome inter.Outcome) {
	no := int(packet[1])
	switch no {
	case packetNoData:
		return nil, true, inter.OutcomeNoData
	case packetHeader:
		if r.tooShort(l.domain.String(), packet, 3) {
			return nil, false, 0
		}
		total := int(packet[2])
		r.cursor.TotalPackets = total
		r.cursor.LastPacket = 0
		if total <= 1 {
			return nil, true, inter.OutcomeNoData
		}
		return nil, false, 0
	}

	offset := l.laterOffset
	if no == 1 {
		offset = l.firstOffset
	}
	if r.tooShort(l.domain.String(), packet, offset+1) {
		return nil, false, 0
	}

	day := r.cursor.Day
	if day.IsZero() {
		day = inter.DayStart(r.now(), 0)
	}
	end := min(len(packet), slotEnd)
	base := l.slotsBefore(no)
	for i := offset; i < end; i++ {
		idx := base + i - offset
		if idx >= l.maxSlots {
			break
		}
		if packet[i] == 0 {
			continue
		}
		slots = append(slots, slot{
			time:  day.Add(time.Duration(idx) * l.width),
			value: int(packet[i]),
		})
	}

	r.cursor.LastPacket = no
	if r.cursor.TotalPackets > 0 && no >= r.cursor.TotalPackets-1 {
		return slots, true, inter.OutcomeDayComplete
	}
	return slots, false, 0
}

func (r *Router) handleHeartRate(packet []byte) {
	if r.tooShort("heart_rate", packet, 2) {
		return
	}
	slots, done, outcome := r.decodeSlots(heartRateLayout, packet)
	if len(slots) > 0 {
		out := make([]inter.HeartRateSample, 0, len(slots))
		for _, s := range slots {
			out = append(out, inter.HeartRateSample{Time: s.time, BPM: s.value})
		}
		r.sink.AddHeartRate(out...)
		r.samples(inter.DomainHeartRate, len(out))
	}
	if done {
		r.log.Debug("heart rate day finished",
			zap.Int("day_offset", r.cursor.DayOffset),
			zap.Stringer("outcome", outcome),
		)
		r.complete(inter.DomainHeartRate, outcome)
	}
}

func (r *Router) handleStress(packet []byte) {
	if r.tooShort("stress", packet, 2) {
		return
	}
	slots, done, outcome := r.decodeSlots(stressLayout, packet)
	if len(slots) > 0 {
		out := make([]inter.StressSample, 0, len(slots))
		for _, s := range slots {
			out = append(out, inter.StressSample{Time: s.time, Level: s.value})
		}
		r.sink.AddStress(out...)
		r.samples(inter.DomainStress, len(out))
	}
	if done {
		r.complete(inter.DomainStress, outcome)
	}
}

func (r *Router) handleHRV(packet []byte) {
	if r.tooShort("hrv", packet, 2) {
		return
	}
	slots, done, outcome := r.decodeSlots(hrvLayout, packet)
	if len(slots) > 0 {
		out := make([]inter.HRVSample, 0, len(slots))
		for _, s := range slots {
			out = append(out, inter.HRVSample{Time: s.time, Value: s.value})
		}
		r.sink.AddHRV(out...)
		r.samples(inter.DomainHRV, len(out))
	}
	if done {
		r.complete(inter.DomainHRV, outcome)
	}
}
