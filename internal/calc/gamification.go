package calc

import (
	"math"
	"time"

	"Crowd_Conscious/internal/config"
)

// Level = floor(sqrt(xp/100)) + 1
func Level(xp int64) int {
	if xp <= 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(xp)/100))) + 1
}

// NextLevelXP 到达 level+1 所需总 XP
func NextLevelXP(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(level) * int64(level) * 100
}

// LevelStartXP 当前等级起点
func LevelStartXP(level int) int64 {
	if level <= 1 {
		return 0
	}
	return NextLevelXP(level - 1)
}

// LevelProgress 当前等级内的进度百分比
func LevelProgress(xp int64) float64 {
	if xp < 0 {
		xp = 0
	}
	lvl := Level(xp)
	start, next := LevelStartXP(lvl), NextLevelXP(lvl)
	span := next - start
	if span <= 0 {
		return 0
	}
	return float64(xp-start) / float64(span) * 100
}

// Reward streak_bonus 按天数倍增，其余按策略表
func Reward(p *config.Policy, action string, streakDays int) int64 {
	base := p.Reward(action)
	if action == config.ActionStreakBonus {
		if streakDays <= 0 {
			return 0
		}
		return base * int64(streakDays)
	}
	return base
}

// Counters 成就判定所需的用户计数
type Counters struct {
	XPTotal        int64
	VotesCast      int64
	ContentCreated int64
	StreakDays     int64
	EventsAttended int64
}

func (c Counters) value(condition string) (int64, bool) {
	switch condition {
	case config.ConditionXPTotal:
		return c.XPTotal, true
	case config.ConditionVotesCast:
		return c.VotesCast, true
	case config.ConditionContentCreated:
		return c.ContentCreated, true
	case config.ConditionStreakDays:
		return c.StreakDays, true
	case config.ConditionEventsAttended:
		return c.EventsAttended, true
	}
	return 0, false
}

// EvaluateAchievements 返回满足条件的成就，每个独立判定
func EvaluateAchievements(c Counters, defs []config.AchievementDef) []config.AchievementDef {
	var unlocked []config.AchievementDef
	for _, d := range defs {
		v, ok := c.value(d.Condition)
		if ok && v >= d.Threshold {
			unlocked = append(unlocked, d)
		}
	}
	return unlocked
}

// Day 截断到 UTC 日
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextStreak 同一天不变；隔一天 +1；否则重置为 1
func NextStreak(last *time.Time, current int, now time.Time) (streak int, counted bool) {
	today := Day(now)
	if last == nil {
		return 1, true
	}
	lastDay := Day(*last)
	switch {
	case lastDay.Equal(today):
		if current < 1 {
			return 1, false
		}
		return current, false
	case lastDay.AddDate(0, 0, 1).Equal(today):
		return current + 1, true
	}
	return 1, true
}
