package inter

import "time"

// Domain 传感器/事件数据域
type Domain int

const (
	DomainUnknown Domain = iota
	DomainActivity
	DomainHeartRate
	DomainStress
	DomainSpO2
	DomainSleep
	DomainHRV
	DomainTemperature
)

var domainNames = map[Domain]string{
	DomainActivity:    "activity",
	DomainHeartRate:   "heart_rate",
	DomainStress:      "stress",
	DomainSpO2:        "spo2",
	DomainSleep:       "sleep",
	DomainHRV:         "hrv",
	DomainTemperature: "temperature",
}

func (d Domain) String() string {
	if name, ok := domainNames[d]; ok {
		return name
	}
	return "unknown"
}

// ParseDomain 将名称解析为 Domain，未知名称返回 DomainUnknown
func ParseDomain(name string) Domain {
	for d, n := range domainNames {
		if n == name {
			return d
		}
	}
	return DomainUnknown
}

// Timestamped 可按时间戳合并的样本
type Timestamped interface {
	SampleTime() time.Time
}

// HeartRateSample 5 分钟槽位心率
type HeartRateSample struct {
	Time time.Time `json:"ts"`
	BPM  int       `json:"bpm"`
}

func (s HeartRateSample) SampleTime() time.Time { return s.Time }

// StressSample 30 分钟槽位压力值
type StressSample struct {
	Time  time.Time `json:"ts"`
	Level int       `json:"level"`
}

func (s StressSample) SampleTime() time.Time { return s.Time }

// SpO2Sample 每小时血氧百分比（最小/最大值的均值）
type SpO2Sample struct {
	Time    time.Time `json:"ts"`
	Percent int       `json:"percent"`
}

func (s SpO2Sample) SampleTime() time.Time { return s.Time }

// HRVSample 30 分钟槽位心率变异性
type HRVSample struct {
	Time  time.Time `json:"ts"`
	Value int       `json:"value"`
}

func (s HRVSample) SampleTime() time.Time { return s.Time }

// TemperatureSample 皮肤温度 (°C)
type TemperatureSample struct {
	Time    time.Time `json:"ts"`
	Celsius float64   `json:"celsius"`
}

func (s TemperatureSample) SampleTime() time.Time { return s.Time }

// ActivitySample 15 分钟槽位的步数、卡路里、距离
type ActivitySample struct {
	Time     time.Time `json:"ts"`
	Steps    int       `json:"steps"`
	Calories float64   `json:"kcal"`
	Distance int       `json:"distance_m"`
}

func (s ActivitySample) SampleTime() time.Time { return s.Time }

// SleepStage 睡眠阶段
type SleepStage uint8

const (
	SleepLight SleepStage = 0x02
	SleepDeep  SleepStage = 0x03
	SleepREM   SleepStage = 0x04
	SleepAwake SleepStage = 0x05
)

func (s SleepStage) String() string {
	switch s {
	case SleepLight:
		return "light"
	case SleepDeep:
		return "deep"
	case SleepREM:
		return "rem"
	case SleepAwake:
		return "awake"
	}
	return "unknown"
}

// Valid 报告阶段编码是否已知
func (s SleepStage) Valid() bool {
	return s >= SleepLight && s <= SleepAwake
}

// SleepRecord 一段睡眠阶段，End 严格晚于 Start
type SleepRecord struct {
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
	Stage SleepStage `json:"stage"`
}

func (r SleepRecord) SampleTime() time.Time { return r.Start }

// BatteryInfo 电量信息，不参与历史同步
type BatteryInfo struct {
	Level    int  `json:"level"`
	Charging bool `json:"charging"`
}

// LiveActivity 自设备启动以来的累计活动量，与历史槽位样本分开存放
type LiveActivity struct {
	Time     time.Time `json:"ts"`
	Steps    int       `json:"steps"`
	Calories float64   `json:"kcal"`
	Distance int       `json:"distance_m"`
}

// MeasureStatus 手动测量结果状态
type MeasureStatus uint8

const (
	MeasureOK              MeasureStatus = 0x00
	MeasureWornIncorrectly MeasureStatus = 0x01
	MeasureTemporaryError  MeasureStatus = 0x02
)

// ManualHeartRate 手动/实时心率测量结果
type ManualHeartRate struct {
	Time   time.Time     `json:"ts"`
	Status MeasureStatus `json:"status"`
	BPM    int           `json:"bpm"`
}

// Preferences 戒指用户偏好（写入顺序固定）
type Preferences struct {
	TimeFormat       uint8 `json:"time_format"` // 0=24h, 1=12h
	UnitSystem       uint8 `json:"unit_system"` // 0=公制, 1=英制
	Sex              uint8 `json:"sex"`
	Age              uint8 `json:"age"`
	HeightCm         uint8 `json:"height_cm"`
	WeightKg         uint8 `json:"weight_kg"`
	Systolic         uint8 `json:"systolic"`
	Diastolic        uint8 `json:"diastolic"`
	HeartRateWarning uint8 `json:"hr_warning"`
}

// Goals 每日目标
type Goals struct {
	Steps        int     `json:"steps"`
	Calories     float64 `json:"kcal"`
	Distance     int     `json:"distance_m"`
	SportMinutes int     `json:"sport_minutes"`
	SleepMinutes int     `json:"sleep_minutes"`
}

// Snapshot 某一时刻内存样本库的完整拷贝，交给持久层保存
type Snapshot struct {
	HeartRate   []HeartRateSample   `json:"heart_rate"`
	Stress      []StressSample      `json:"stress"`
	SpO2        []SpO2Sample        `json:"spo2"`
	HRV         []HRVSample         `json:"hrv"`
	Temperature []TemperatureSample `json:"temperature"`
	Activity    []ActivitySample    `json:"activity"`
	Sleep       []SleepRecord       `json:"sleep"`
}

// Len 返回所有数据域的样本总数
func (s Snapshot) Len() int {
	return len(s.HeartRate) + len(s.Stress) + len(s.SpO2) + len(s.HRV) +
		len(s.Temperature) + len(s.Activity) + len(s.Sleep)
}

// Count 返回指定数据域的样本数
func (s Snapshot) Count(d Domain) int {
	switch d {
	case DomainHeartRate:
		return len(s.HeartRate)
	case DomainStress:
		return len(s.Stress)
	case DomainSpO2:
		return len(s.SpO2)
	case DomainHRV:
		return len(s.HRV)
	case DomainTemperature:
		return len(s.Temperature)
	case DomainActivity:
		return len(s.Activity)
	case DomainSleep:
		return len(s.Sleep)
	}
	return 0
}

func (d Domain) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Domain) UnmarshalText(b []byte) error {
	*d = ParseDomain(string(b))
	return nil
}
