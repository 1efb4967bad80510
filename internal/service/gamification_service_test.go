package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Crowd_Conscious/internal/calc"
	"Crowd_Conscious/internal/config"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/repository/redis"
)

func TestAwardUnlocksAchievementOnce(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice", model.UserTypeUser)
	ctx := context.Background()

	res, err := e.xp.Award(ctx, u.ID, config.ActionVote, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 105, res.Points)
	assert.EqualValues(t, 105, res.TotalXP)
	assert.Equal(t, calc.Level(105), res.Level)
	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, "first_vote", res.Unlocked[0].Key)

	res, err = e.xp.Award(ctx, u.ID, config.ActionVote, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, res.Points)
	assert.EqualValues(t, 110, res.TotalXP)
	assert.Empty(t, res.Unlocked)

	st := e.stats(t, u.ID)
	assert.EqualValues(t, 2, st.VotesCast)
	assert.EqualValues(t, 110, st.TotalXP)
}

func TestConcurrentAwardsAdd(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice", model.UserTypeUser)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(ref uint64) {
			defer wg.Done()
			_, err := e.xp.Award(context.Background(), u.ID, config.ActionVote, ref)
			assert.NoError(t, err)
		}(uint64(i))
	}
	wg.Wait()

	st := e.stats(t, u.ID)
	assert.EqualValues(t, 10, st.VotesCast)
	// 10 票 + first_vote 成就
	assert.EqualValues(t, 150, st.TotalXP)
}

func TestDailyLoginStreak(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice", model.UserTypeUser)
	ctx := context.Background()
	day := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	e.xp.now = func() time.Time { return day }

	res, err := e.xp.DailyLogin(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, res.Counted)
	assert.Equal(t, 1, res.CurrentStreak)
	assert.EqualValues(t, 10, res.Award.Points)

	res, err = e.xp.DailyLogin(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, res.Counted)
	assert.Nil(t, res.Award)

	day = day.Add(20 * time.Hour)
	res, err = e.xp.DailyLogin(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, res.Counted)
	assert.Equal(t, 2, res.CurrentStreak)
	assert.Equal(t, 2, res.LongestStreak)
	// daily_login 10 + streak_bonus 5*2
	assert.EqualValues(t, 20, res.Award.Points)
	assert.EqualValues(t, 30, res.Award.TotalXP)

	day = day.AddDate(0, 0, 3)
	res, err = e.xp.DailyLogin(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CurrentStreak)
	assert.Equal(t, 2, res.LongestStreak)
}

func TestLeaderboardWarmsThenFollowsAwards(t *testing.T) {
	e := newEnv(t)
	a := e.user(t, "alice", model.UserTypeUser)
	b := e.user(t, "bob", model.UserTypeUser)
	ctx := context.Background()

	_, err := e.xp.Award(ctx, a.ID, config.ActionVote, 0)
	require.NoError(t, err)
	_, err = e.xp.Award(ctx, b.ID, config.ActionContentCreated, 0)
	require.NoError(t, err)
	assert.False(t, e.mr.Exists(redis.LeaderboardKey))

	board, err := e.xp.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].Username)
	assert.EqualValues(t, 125, board[0].TotalXP)
	assert.Equal(t, 2, board[1].Rank)
	assert.True(t, e.mr.Exists(redis.LeaderboardKey))

	// 缓存已存在，后续发放直接写入有序集合
	_, err = e.xp.Award(ctx, a.ID, config.ActionContentCreated, 0)
	require.NoError(t, err)
	board, err = e.xp.Leaderboard(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "alice", board[0].Username)
	assert.EqualValues(t, 230, board[0].TotalXP)
}

func TestMeRecomputesLevel(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice", model.UserTypeUser)
	ctx := context.Background()
	_, err := e.xp.Award(ctx, u.ID, config.ActionVote, 0)
	require.NoError(t, err)
	// 模拟缓存的等级漂移
	require.NoError(t, e.db.Model(&model.UserStats{}).Where("user_id = ?", u.ID).Update("level", 9).Error)

	p, err := e.xp.Me(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, calc.Level(105), p.Level)
	assert.Equal(t, calc.NextLevelXP(p.Level), p.NextLevelXP)
	require.Len(t, p.Achievements, 1)
	assert.Equal(t, "First Vote", p.Achievements[0].Name)
	assert.Len(t, p.Recent, 2)
}

func TestMeWithoutActivity(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice", model.UserTypeUser)
	p, err := e.xp.Me(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Level)
	assert.Zero(t, p.TotalXP)
	assert.Empty(t, p.Achievements)
}
