// Package calc 派生指标计算：筹款进度、影响力分配、等级积分、ROI、手续费拆分。
// 所有函数纯计算，不返回 NaN/Inf。
package calc

import (
	"fmt"
	"math"

	"Crowd_Conscious/internal/config"
)

const (
	UrgencyUrgent = "Urgent"
	UrgencyHigh   = "High Priority"
	UrgencyMedium = "Medium"
	UrgencyLow    = "Low Priority"
)

// Progress 筹款百分比，夹在 [0,100]；目标 <= 0 视为 0
func Progress(current, goal float64) float64 {
	if goal <= 0 || math.IsNaN(goal) || math.IsNaN(current) {
		return 0
	}
	p := 100 * current / goal
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ProgressLabel 展示用文案，目标为 0 时返回 N/A
func ProgressLabel(current, goal float64) string {
	if goal <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.0f%%", Progress(current, goal))
}

// Urgency 严格小于比较，边界值归入较低紧急度
func Urgency(progress float64, t config.UrgencyThresholds) string {
	switch {
	case progress < t.Urgent:
		return UrgencyUrgent
	case progress < t.High:
		return UrgencyHigh
	case progress < t.Medium:
		return UrgencyMedium
	}
	return UrgencyLow
}

// UrgencyFor 目标为 0 的内容无需筹款，归为 Low Priority
func UrgencyFor(current, goal float64, t config.UrgencyThresholds) string {
	if goal <= 0 {
		return UrgencyLow
	}
	return Urgency(Progress(current, goal), t)
}

func Remaining(current, goal int64) int64 {
	if goal <= current {
		return 0
	}
	return goal - current
}

// FundingSummary 内容详情页使用
type FundingSummary struct {
	Goal          int64   `json:"goal"`
	Current       int64   `json:"current"`
	Remaining     int64   `json:"remaining"`
	Progress      float64 `json:"progress"`
	ProgressLabel string  `json:"progress_label"`
	Urgency       string  `json:"urgency"`
}

func Summarize(current, goal int64, t config.UrgencyThresholds) FundingSummary {
	c, g := float64(current), float64(goal)
	return FundingSummary{
		Goal:          goal,
		Current:       current,
		Remaining:     Remaining(current, goal),
		Progress:      Progress(c, g),
		ProgressLabel: ProgressLabel(c, g),
		Urgency:       UrgencyFor(c, g, t),
	}
}
