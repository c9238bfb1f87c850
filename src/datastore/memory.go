package datastore

import (
	"slices"
	"sort"

	"github.com/nhirsama/Goster-Ring/src/inter"
)

// Merge 将 incoming 合并进 existing
// 时间戳相同的样本被新值覆盖，结果按时间升序排列
func Merge[T inter.Timestamped](existing, incoming []T) []T {
	if len(incoming) == 0 {
		return existing
	}
	index := make(map[int64]int, len(existing)+len(incoming))
	out := make([]T, 0, len(existing)+len(incoming))
	for _, s := range existing {
		key := s.SampleTime().UnixNano()
		if i, ok := index[key]; ok {
			out[i] = s
			continue
		}
		index[key] = len(out)
		out = append(out, s)
	}
	for _, s := range incoming {
		key := s.SampleTime().UnixNano()
		if i, ok := index[key]; ok {
			out[i] = s
			continue
		}
		index[key] = len(out)
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SampleTime().Before(out[j].SampleTime())
	})
	return out
}

// MemoryStore 同步过程中的内存样本库
// 只由会话循环（单写者）修改，不加锁
type MemoryStore struct {
	snap inter.Snapshot
}

// NewMemoryStore 创建空的内存样本库
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) AddHeartRate(s ...inter.HeartRateSample) {
	m.snap.HeartRate = Merge(m.snap.HeartRate, s)
}

func (m *MemoryStore) AddStress(s ...inter.StressSample) {
	m.snap.Stress = Merge(m.snap.Stress, s)
}

func (m *MemoryStore) AddSpO2(s ...inter.SpO2Sample) {
	m.snap.SpO2 = Merge(m.snap.SpO2, s)
}

func (m *MemoryStore) AddHRV(s ...inter.HRVSample) {
	m.snap.HRV = Merge(m.snap.HRV, s)
}

func (m *MemoryStore) AddTemperature(s ...inter.TemperatureSample) {
	m.snap.Temperature = Merge(m.snap.Temperature, s)
}

func (m *MemoryStore) AddActivity(s ...inter.ActivitySample) {
	m.snap.Activity = Merge(m.snap.Activity, s)
}

func (m *MemoryStore) AddSleep(r ...inter.SleepRecord) {
	m.snap.Sleep = Merge(m.snap.Sleep, r)
}

// Snapshot 返回当前样本的拷贝
func (m *MemoryStore) Snapshot() inter.Snapshot {
	return inter.Snapshot{
		HeartRate:   slices.Clone(m.snap.HeartRate),
		Stress:      slices.Clone(m.snap.Stress),
		SpO2:        slices.Clone(m.snap.SpO2),
		HRV:         slices.Clone(m.snap.HRV),
		Temperature: slices.Clone(m.snap.Temperature),
		Activity:    slices.Clone(m.snap.Activity),
		Sleep:       slices.Clone(m.snap.Sleep),
	}
}

// Len 样本总数
func (m *MemoryStore) Len() int {
	return m.snap.Len()
}

// Reset 清空所有数据域
func (m *MemoryStore) Reset() {
	m.snap = inter.Snapshot{}
}
