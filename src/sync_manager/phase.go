package sync_manager

import "github.com/nhirsama/Goster-Ring/src/inter"

// Phase 同步链所处阶段，按声明顺序推进
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActivity
	PhaseHeartRate
	PhaseStress
	PhaseSpO2
	PhaseSleep
	PhaseHRV
	PhaseTemperature
	PhaseDone
)

var phaseDomains = map[Phase]inter.Domain{
	PhaseActivity:    inter.DomainActivity,
	PhaseHeartRate:   inter.DomainHeartRate,
	PhaseStress:      inter.DomainStress,
	PhaseSpO2:        inter.DomainSpO2,
	PhaseSleep:       inter.DomainSleep,
	PhaseHRV:         inter.DomainHRV,
	PhaseTemperature: inter.DomainTemperature,
}

// Domain 该阶段等待的数据域；Idle/Done 返回 DomainUnknown
func (p Phase) Domain() inter.Domain {
	return phaseDomains[p]
}

// DayScoped 按天请求的阶段
func (p Phase) DayScoped() bool {
	switch p {
	case PhaseActivity, PhaseHeartRate, PhaseHRV:
		return true
	}
	return false
}

// BigData 通过 0xBC 大数据请求获取的阶段
func (p Phase) BigData() bool {
	switch p {
	case PhaseSpO2, PhaseSleep, PhaseTemperature:
		return true
	}
	return false
}

// Active 同步链正在等待某个数据域的应答
func (p Phase) Active() bool {
	return p > PhaseIdle && p < PhaseDone
}

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDone:
		return "done"
	}
	return p.Domain().String()
}
