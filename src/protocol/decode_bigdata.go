package protocol

import (
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"go.uber.org/zap"
)

// 睡眠块布局：[6] 为天数，块头 daysAgo, byteCount, start(2), end(2)
const (
	sleepDaysAt   = inter.BigDataHeaderSize
	sleepBlockMin = 6
)

// 以下解码器收到的 frame 包含 6 字节大数据头
// SpO2 每天一块 [daysAgo, 24×(min, max)]，温度每天一块 [daysAgo, 间隔, 48 个半小时读数]
// 不论是否解出样本都发出完成信号，避免同步链卡住

func (r *Router) decodeSpO2(frame []byte) {
	var out []inter.SpO2Sample
	now := r.now()
	for pos := inter.BigDataHeaderSize; pos < len(frame); {
		daysAgo := int(frame[pos])
		pos++
		day := inter.DayStart(now, daysAgo)
		for h := 0; h < 24 && pos+1 < len(frame); h++ {
			lo, hi := int(frame[pos]), int(frame[pos+1])
			pos += 2
			if lo == 0 || hi == 0 {
				continue
			}
			out = append(out, inter.SpO2Sample{
				Time:    day.Add(time.Duration(h) * time.Hour),
				Percent: (lo + hi) / 2,
			})
		}
		if daysAgo == 0 {
			break
		}
	}
	if len(out) > 0 {
		r.sink.AddSpO2(out...)
		r.samples(inter.DomainSpO2, len(out))
	}
	r.finishBigData(inter.DomainSpO2, len(out))
}

func (r *Router) decodeTemperature(frame []byte) {
	var out []inter.TemperatureSample
	now := r.now()
	for pos := inter.BigDataHeaderSize; pos+1 < len(frame); {
		daysAgo := int(frame[pos])
		pos += 2 // 跳过采样间隔字节
		day := inter.DayStart(now, daysAgo)
		for i := 0; i < 48 && pos < len(frame); i++ {
			raw := frame[pos]
			pos++
			if raw == 0 {
				continue
			}
			out = append(out, inter.TemperatureSample{
				Time:    day.Add(time.Duration(i) * 30 * time.Minute),
				Celsius: float64(raw)/10 + 20,
			})
		}
		if daysAgo == 0 {
			break
		}
	}
	if len(out) > 0 {
		r.sink.AddTemperature(out...)
		r.samples(inter.DomainTemperature, len(out))
	}
	r.finishBigData(inter.DomainTemperature, len(out))
}

// decodeSleep [6]天数，之后每天一块：
// [daysAgo, byteCount, startLE16, endLE16, (stage, minutes)...]
// start/end 为距当天零点的分钟数，start > end 表示入睡在前一天
func (r *Router) decodeSleep(frame []byte) {
	if len(frame) <= sleepDaysAt {
		r.finishBigData(inter.DomainSleep, 0)
		return
	}
	days := int(frame[sleepDaysAt])
	now := r.now()
	var out []inter.SleepRecord
	pos := sleepDaysAt + 1
	for d := 0; d < days && pos+sleepBlockMin <= len(frame); d++ {
		daysAgo := int(frame[pos])
		count := int(frame[pos+1])
		body := pos + 2
		next := body + count
		if next > len(frame) {
			next = len(frame)
		}
		out = append(out, r.sleepSession(inter.DayStart(now, daysAgo), frame[body:next])...)
		pos = next
		if daysAgo == 0 {
			break
		}
	}
	if len(out) > 0 {
		r.sink.AddSleep(out...)
		r.samples(inter.DomainSleep, len(out))
	}
	r.finishBigData(inter.DomainSleep, len(out))
}

// sleepSession block = [startLE16, endLE16, (stage, minutes)...]
func (r *Router) sleepSession(day time.Time, block []byte) []inter.SleepRecord {
	if len(block) < 4 {
		return nil
	}
	startMin, endMin := le16(block[0:2]), le16(block[2:4])
	start := day.Add(time.Duration(startMin) * time.Minute)
	end := day.Add(time.Duration(endMin) * time.Minute)
	if startMin > endMin {
		start = start.AddDate(0, 0, -1)
	}

	var out []inter.SleepRecord
	cur := start
	for i := 4; i+1 < len(block) && cur.Before(end); i += 2 {
		stage := inter.SleepStage(block[i])
		segEnd := cur.Add(time.Duration(block[i+1]) * time.Minute)
		if segEnd.After(end) {
			r.log.Debug("sleep stage exceeds session end, clamped",
				zap.Time("stage_end", segEnd),
				zap.Time("session_end", end),
			)
			segEnd = end
		}
		if !stage.Valid() {
			r.log.Debug("unknown sleep stage skipped", zap.Uint8("stage", uint8(stage)))
		} else if segEnd.After(cur) {
			out = append(out, inter.SleepRecord{Start: cur, End: segEnd, Stage: stage})
		}
		cur = segEnd
	}
	return out
}

func (r *Router) finishBigData(d inter.Domain, n int) {
	outcome := inter.OutcomeDayComplete
	if n == 0 {
		outcome = inter.OutcomeNoData
	}
	r.log.Debug("big data decoded", zap.Stringer("domain", d), zap.Int("samples", n))
	r.complete(d, outcome)
}
