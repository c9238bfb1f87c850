package protocol

import (
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"go.uber.org/zap"
)

const (
	activityMinLen  = 13
	activityEmpty   = 0xFF
	activityIgnored = 0xF0
	quartersPerDay  = 96
)

// handleActivity 15 分钟活动历史
// [1]月 [2]日 [3]刻钟序号 [4]当前包 [5]总包数 [6:8]卡路里(÷100) [8:10]步数 [10:12]距离(米)
func (r *Router) handleActivity(packet []byte) {
	if r.tooShort("activity", packet, 2) {
		return
	}
	switch packet[1] {
	case activityEmpty:
		r.complete(inter.DomainActivity, inter.OutcomeNoData)
		return
	case activityIgnored:
		r.log.Debug("activity marker packet ignored")
		return
	}
	if r.tooShort("activity", packet, activityMinLen) {
		return
	}

	month, day, quarter := int(packet[1]), int(packet[2]), int(packet[3])
	if month < 1 || month > 12 || day < 1 || day > 31 || quarter >= quartersPerDay {
		r.log.Debug("activity packet with invalid date dropped",
			zap.Int("month", month),
			zap.Int("day", day),
			zap.Int("quarter", quarter),
		)
		return
	}
	current, total := int(packet[4]), int(packet[5])
	r.cursor.TotalPackets = total
	r.cursor.LastPacket = current

	sample := inter.ActivitySample{
		Time:     r.activityTime(month, day, quarter),
		Calories: float64(le16(packet[6:8])) / 100,
		Steps:    le16(packet[8:10]),
		Distance: le16(packet[10:12]),
	}
	if sample.Steps != 0 || sample.Calories != 0 || sample.Distance != 0 {
		r.sink.AddActivity(sample)
		r.samples(inter.DomainActivity, 1)
	}

	if current >= total-1 {
		r.complete(inter.DomainActivity, inter.OutcomeDayComplete)
	}
}

// activityTime 数据包不带年份：取使日期不晚于今天的最近一年
func (r *Router) activityTime(month, day, quarter int) time.Time {
	now := r.now()
	today := inter.DayStart(now, 0)
	year := now.Year()
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
	if date.After(today) {
		date = time.Date(year-1, time.Month(month), day, 0, 0, 0, 0, now.Location())
	}
	return date.Add(time.Duration(quarter) * 15 * time.Minute)
}
