package calc

import (
	"math"

	"Crowd_Conscious/internal/config"
)

// Savings 年度节约估算，金额单位与策略表单价一致
type Savings struct {
	Energy         float64 `json:"energy"`
	Water          float64 `json:"water"`
	Waste          float64 `json:"waste"`
	Productivity   float64 `json:"productivity"`
	Total          float64 `json:"total"`
	EnergyKWh      float64 `json:"energy_kwh"`
	WaterLiters    float64 `json:"water_liters"`
	WasteKg        float64 `json:"waste_kg"`
	CO2ReductionKg float64 `json:"co2_reduction_kg"`
}

// ProjectSavings 线性估算：常量 × 完成人数 × 平均进度 × 单价
func ProjectSavings(completed int, avgProgressPct float64, c config.ESGConstants) Savings {
	if completed <= 0 || avgProgressPct <= 0 {
		return Savings{}
	}
	if avgProgressPct > 100 {
		avgProgressPct = 100
	}
	factor := float64(completed) * avgProgressPct / 100
	s := Savings{
		EnergyKWh:      c.EnergyKWh * factor,
		WaterLiters:    c.WaterLiters * factor,
		WasteKg:        c.WasteKg * factor,
		CO2ReductionKg: c.CO2Kg * factor,
	}
	s.Energy = s.EnergyKWh * c.EnergyPrice
	s.Water = s.WaterLiters * c.WaterPrice
	s.Waste = s.WasteKg * c.WastePrice
	s.Productivity = c.ProductivityValue * factor
	s.Total = s.Energy + s.Water + s.Waste + s.Productivity
	return s
}

// PaybackMonths = ceil(investment / (savings/12))；无节约时 ok=false
func PaybackMonths(investment, totalSavings float64) (months int, ok bool) {
	if totalSavings <= 0 {
		return 0, false
	}
	if investment <= 0 {
		return 0, true
	}
	return int(math.Ceil(investment / (totalSavings / 12))), true
}

func ROIPercent(investment, totalSavings float64) float64 {
	if investment <= 0 {
		return 0
	}
	return (totalSavings - investment) / investment * 100
}

// Projection 企业看板展示
type Projection struct {
	Savings       Savings `json:"savings"`
	Investment    float64 `json:"investment"`
	PaybackMonths int     `json:"payback_months"`
	PaybackKnown  bool    `json:"payback_known"`
	ROIPercent    float64 `json:"roi_percent"`
	IsEstimate    bool    `json:"is_estimate"`
}

func Project(completed int, avgProgressPct, investment float64, c config.ESGConstants) Projection {
	s := ProjectSavings(completed, avgProgressPct, c)
	months, ok := PaybackMonths(investment, s.Total)
	return Projection{
		Savings:       s,
		Investment:    investment,
		PaybackMonths: months,
		PaybackKnown:  ok,
		ROIPercent:    ROIPercent(investment, s.Total),
		IsEstimate:    true,
	}
}
