package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// XP 动作
const (
	ActionVote                = "vote"
	ActionContentCreated      = "content_created"
	ActionContentApproved     = "content_approved"
	ActionEventRSVP           = "event_rsvp"
	ActionEventAttended       = "event_attended"
	ActionComment             = "comment"
	ActionReaction            = "reaction"
	ActionDailyLogin          = "daily_login"
	ActionStreakBonus         = "streak_bonus"
	ActionAchievementUnlocked = "achievement_unlocked"
	ActionModuleCompleted     = "module_completed"
	ActionCourseCompleted     = "course_completed"
)

// 成就条件
const (
	ConditionXPTotal        = "xp_total"
	ConditionVotesCast      = "votes_cast"
	ConditionContentCreated = "content_created"
	ConditionStreakDays     = "streak_days"
	ConditionEventsAttended = "events_attended"
)

type AchievementDef struct {
	Key       string `yaml:"key"       json:"key"`
	Name      string `yaml:"name"      json:"name"`
	Condition string `yaml:"condition" json:"condition"`
	Threshold int64  `yaml:"threshold" json:"threshold"`
}

// ESGConstants 每位完成培训员工的年度节约估算
type ESGConstants struct {
	EnergyKWh         float64 `yaml:"energyKWh"`
	WaterLiters       float64 `yaml:"waterLiters"`
	WasteKg           float64 `yaml:"wasteKg"`
	CO2Kg             float64 `yaml:"co2Kg"`
	ProductivityValue float64 `yaml:"productivityValue"`
	EnergyPrice       float64 `yaml:"energyPrice"` // 每 kWh
	WaterPrice        float64 `yaml:"waterPrice"`  // 每升
	WastePrice        float64 `yaml:"wastePrice"`  // 每 kg
}

type UrgencyThresholds struct {
	Urgent float64 `yaml:"urgent"`
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
}

// Policy 业务常量表，可通过 yaml 版本化
type Policy struct {
	Version         string            `yaml:"version"`
	PlatformFeeRate float64           `yaml:"platformFeeRate"`
	VotingWeights   map[string]int    `yaml:"votingWeights"`
	XPRewards       map[string]int64  `yaml:"xpRewards"`
	Achievements    []AchievementDef  `yaml:"achievements"`
	Urgency         UrgencyThresholds `yaml:"urgency"`
	ESG             ESGConstants      `yaml:"esg"`
}

func DefaultPolicy() *Policy {
	return &Policy{
		Version:         "2024-01",
		PlatformFeeRate: 0.15,
		VotingWeights: map[string]int{
			"founder": 3,
			"admin":   2,
			"member":  1,
		},
		XPRewards: map[string]int64{
			ActionVote:                5,
			ActionContentCreated:      25,
			ActionContentApproved:     50,
			ActionEventRSVP:           10,
			ActionEventAttended:       30,
			ActionComment:             3,
			ActionReaction:            1,
			ActionDailyLogin:          10,
			ActionStreakBonus:         5, // 乘以连续天数
			ActionAchievementUnlocked: 100,
			ActionModuleCompleted:     20,
			ActionCourseCompleted:     200,
		},
		Achievements: []AchievementDef{
			{Key: "first_vote", Name: "First Vote", Condition: ConditionVotesCast, Threshold: 1},
			{Key: "active_voter", Name: "Active Voter", Condition: ConditionVotesCast, Threshold: 50},
			{Key: "first_proposal", Name: "Community Voice", Condition: ConditionContentCreated, Threshold: 1},
			{Key: "prolific_creator", Name: "Prolific Creator", Condition: ConditionContentCreated, Threshold: 10},
			{Key: "week_streak", Name: "Week Warrior", Condition: ConditionStreakDays, Threshold: 7},
			{Key: "month_streak", Name: "Unstoppable", Condition: ConditionStreakDays, Threshold: 30},
			{Key: "event_goer", Name: "Show Up", Condition: ConditionEventsAttended, Threshold: 5},
			{Key: "xp_1000", Name: "Rising Star", Condition: ConditionXPTotal, Threshold: 1000},
			{Key: "xp_10000", Name: "Impact Legend", Condition: ConditionXPTotal, Threshold: 10000},
		},
		Urgency: UrgencyThresholds{Urgent: 25, High: 50, Medium: 75},
		ESG: ESGConstants{
			EnergyKWh:         500,
			WaterLiters:       2000,
			WasteKg:           50,
			CO2Kg:             250,
			ProductivityValue: 150,
			EnergyPrice:       0.15,
			WaterPrice:        0.002,
			WastePrice:        0.1,
		},
	}
}

// LoadPolicy 以默认策略为底，覆盖 yaml 中给出的字段
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(buf, p); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) Validate() error {
	if p.PlatformFeeRate < 0 || p.PlatformFeeRate >= 1 {
		return fmt.Errorf("platform fee rate %v out of range [0,1)", p.PlatformFeeRate)
	}
	for role, w := range p.VotingWeights {
		if w <= 0 {
			return fmt.Errorf("voting weight for %s must be positive", role)
		}
	}
	for action, xp := range p.XPRewards {
		if xp < 0 {
			return fmt.Errorf("xp reward for %s must not be negative", action)
		}
	}
	u := p.Urgency
	if !(u.Urgent < u.High && u.High < u.Medium) {
		return errors.New("urgency thresholds must be ascending")
	}
	for _, a := range p.Achievements {
		switch a.Condition {
		case ConditionXPTotal, ConditionVotesCast, ConditionContentCreated, ConditionStreakDays, ConditionEventsAttended:
		default:
			return fmt.Errorf("achievement %s has unknown condition %q", a.Key, a.Condition)
		}
	}
	return nil
}

// VotingWeight 未知角色按普通成员计
func (p *Policy) VotingWeight(role string) int {
	if w, ok := p.VotingWeights[role]; ok {
		return w
	}
	return p.VotingWeights["member"]
}

func (p *Policy) Reward(action string) int64 {
	return p.XPRewards[action]
}
