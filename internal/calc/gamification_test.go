package calc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"Crowd_Conscious/internal/config"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, 1, Level(0))
	assert.Equal(t, 1, Level(99))
	assert.Equal(t, 2, Level(100))
	assert.Equal(t, 2, Level(399))
	assert.Equal(t, 3, Level(400))
	assert.Equal(t, 6, Level(2500))
	assert.Equal(t, 1, Level(-50))
}

func TestNextLevelXP(t *testing.T) {
	assert.Equal(t, int64(100), NextLevelXP(1))
	assert.Equal(t, int64(400), NextLevelXP(2))
	assert.Equal(t, int64(3600), NextLevelXP(6))
	// 阈值与等级公式一致
	for lvl := 1; lvl < 20; lvl++ {
		assert.Equal(t, lvl+1, Level(NextLevelXP(lvl)))
		assert.Equal(t, lvl, Level(NextLevelXP(lvl)-1))
	}
}

func TestLevelProgress(t *testing.T) {
	assert.Equal(t, 0.0, LevelProgress(0))
	assert.Equal(t, 50.0, LevelProgress(50))
	assert.Equal(t, 0.0, LevelProgress(100))
	assert.Equal(t, 50.0, LevelProgress(250))
}

func TestReward(t *testing.T) {
	p := config.DefaultPolicy()
	assert.Equal(t, int64(5), Reward(p, config.ActionVote, 0))
	assert.Equal(t, int64(50), Reward(p, config.ActionContentApproved, 3))
	assert.Equal(t, int64(35), Reward(p, config.ActionStreakBonus, 7))
	assert.Equal(t, int64(0), Reward(p, config.ActionStreakBonus, 0))
}

func TestEvaluateAchievements(t *testing.T) {
	defs := []config.AchievementDef{
		{Key: "a", Condition: config.ConditionVotesCast, Threshold: 1},
		{Key: "b", Condition: config.ConditionXPTotal, Threshold: 1000},
		{Key: "c", Condition: config.ConditionStreakDays, Threshold: 7},
		{Key: "d", Condition: "unknown", Threshold: 0},
	}
	got := EvaluateAchievements(Counters{VotesCast: 1, XPTotal: 999, StreakDays: 7}, defs)
	keys := make([]string, 0, len(got))
	for _, d := range got {
		keys = append(keys, d.Key)
	}
	assert.Equal(t, []string{"a", "c"}, keys)

	assert.Empty(t, EvaluateAchievements(Counters{}, defs[:3]))
}

func TestNextStreak(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	s, counted := NextStreak(nil, 0, now)
	assert.Equal(t, 1, s)
	assert.True(t, counted)

	sameDay := time.Date(2024, 5, 10, 1, 0, 0, 0, time.UTC)
	s, counted = NextStreak(&sameDay, 4, now)
	assert.Equal(t, 4, s)
	assert.False(t, counted)

	yesterday := time.Date(2024, 5, 9, 23, 59, 0, 0, time.UTC)
	s, counted = NextStreak(&yesterday, 4, now)
	assert.Equal(t, 5, s)
	assert.True(t, counted)

	old := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s, _ = NextStreak(&old, 4, now)
	assert.Equal(t, 1, s)
}
