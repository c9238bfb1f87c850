package datastore

import (
	"github.com/nhirsama/Goster-Ring/src/inter"
)

// Points 把快照展开为单值数据点
// 活动数据的 Value 为步数；睡眠记录的 Value 为时长（分钟）
func Points(snap inter.Snapshot) []inter.MetricPoint {
	out := make([]inter.MetricPoint, 0, snap.Len())
	for _, s := range snap.HeartRate {
		out = append(out, inter.MetricPoint{Domain: inter.DomainHeartRate, Timestamp: s.Time, Value: float64(s.BPM)})
	}
	for _, s := range snap.Stress {
		out = append(out, inter.MetricPoint{Domain: inter.DomainStress, Timestamp: s.Time, Value: float64(s.Level)})
	}
	for _, s := range snap.SpO2 {
		out = append(out, inter.MetricPoint{Domain: inter.DomainSpO2, Timestamp: s.Time, Value: float64(s.Percent)})
	}
	for _, s := range snap.HRV {
		out = append(out, inter.MetricPoint{Domain: inter.DomainHRV, Timestamp: s.Time, Value: float64(s.Value)})
	}
	for _, s := range snap.Temperature {
		out = append(out, inter.MetricPoint{Domain: inter.DomainTemperature, Timestamp: s.Time, Value: s.Celsius})
	}
	for _, s := range snap.Activity {
		out = append(out, inter.MetricPoint{
			Domain:    inter.DomainActivity,
			Timestamp: s.Time,
			Value:     float64(s.Steps),
			Calories:  s.Calories,
			Distance:  s.Distance,
		})
	}
	for _, r := range snap.Sleep {
		end := r.End
		out = append(out, inter.MetricPoint{
			Domain:    inter.DomainSleep,
			Timestamp: r.Start,
			Value:     r.End.Sub(r.Start).Minutes(),
			End:       &end,
			Stage:     r.Stage.String(),
		})
	}
	return out
}
