package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/calc"
	"Crowd_Conscious/internal/config"
	"Crowd_Conscious/internal/metrics"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/mysql"
	"Crowd_Conscious/internal/repository/redis"
)

const (
	// 排行榜回源时预热的人数
	leaderboardWarmSize = 1000
	warmLockName        = "leaderboard"
)

type GamificationService struct {
	db     *gorm.DB
	policy *config.Policy
	board  *redis.LeaderboardRepository
	lock   *redis.DistLock
	users  *mysql.UserRepository
	log    *zap.Logger
	now    func() time.Time
}

// NewGamificationService board 为 nil 时排行榜直接查库；lock 用于回源预热的单飞
func NewGamificationService(db *gorm.DB, policy *config.Policy, board *redis.LeaderboardRepository, lock *redis.DistLock, log *zap.Logger) *GamificationService {
	return &GamificationService{
		db:     db,
		policy: policy,
		board:  board,
		lock:   lock,
		users:  &mysql.UserRepository{DB: db},
		log:    log,
		now:    time.Now,
	}
}

// AwardResult 一次发放的结果，Points 含成就奖励
type AwardResult struct {
	UserID   uint64                  `json:"user_id"`
	Action   string                  `json:"action"`
	Points   int64                   `json:"points"`
	TotalXP  int64                   `json:"total_xp"`
	Level    int                     `json:"level"`
	Unlocked []config.AchievementDef `json:"unlocked,omitempty"`
}

func (r *AwardResult) merge(o *AwardResult) {
	r.Points += o.Points
	r.TotalXP = o.TotalXP
	r.Level = o.Level
	r.Unlocked = append(r.Unlocked, o.Unlocked...)
}

// Award 独立事务发放 XP
func (s *GamificationService) Award(ctx context.Context, userID uint64, action string, refID uint64) (*AwardResult, error) {
	var res *AwardResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.AwardTx(tx, userID, action, refID)
		return err
	})
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	s.AfterCommit(ctx, res)
	return res, nil
}

// AwardTx 在调用方事务内发放 XP；提交后需调用 AfterCommit
func (s *GamificationService) AwardTx(tx *gorm.DB, userID uint64, action string, refID uint64) (*AwardResult, error) {
	return s.AwardPointsTx(tx, userID, action, -1, refID)
}

// AwardPointsTx points<0 时按策略表取值，课程模块等自带分值的场景传入具体分数
func (s *GamificationService) AwardPointsTx(tx *gorm.DB, userID uint64, action string, points int64, refID uint64) (*AwardResult, error) {
	st, err := (&mysql.StatsRepository{DB: tx}).LockOrCreate(userID)
	if err != nil {
		return nil, err
	}
	return s.apply(tx, st, action, points, refID)
}

// apply 更新计数与总分、记流水、判定成就；成就奖励不再触发判定
func (s *GamificationService) apply(tx *gorm.DB, st *model.UserStats, action string, points int64, refID uint64) (*AwardResult, error) {
	repo := &mysql.StatsRepository{DB: tx}
	now := s.now()

	switch action {
	case config.ActionVote:
		st.VotesCast++
	case config.ActionContentCreated:
		st.ContentCreated++
	case config.ActionEventAttended:
		st.EventsAttended++
	}

	res := &AwardResult{UserID: st.UserID, Action: action}
	if points < 0 {
		points = calc.Reward(s.policy, action, st.CurrentStreak)
	}
	if err := s.addXP(repo, st, action, points, refID, now); err != nil {
		return nil, err
	}
	res.Points = points

	have, err := repo.ListAchievements(st.UserID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]struct{}, len(have))
	for _, a := range have {
		owned[a.AchievementKey] = struct{}{}
	}
	for _, def := range calc.EvaluateAchievements(countersOf(st), s.policy.Achievements) {
		if _, ok := owned[def.Key]; ok {
			continue
		}
		inserted, err := repo.InsertAchievement(st.UserID, def.Key, now)
		if err != nil {
			return nil, err
		}
		if !inserted {
			continue
		}
		bonus := s.policy.Reward(config.ActionAchievementUnlocked)
		if err := s.addXP(repo, st, config.ActionAchievementUnlocked, bonus, 0, now); err != nil {
			return nil, err
		}
		res.Points += bonus
		res.Unlocked = append(res.Unlocked, def)
	}

	if err := repo.Save(st); err != nil {
		return nil, err
	}
	res.TotalXP = st.TotalXP
	res.Level = st.Level
	if err := (&mysql.OutboxRepository{DB: tx}).Insert(model.EventXPAwarded, st.UserID, map[string]any{
		"action":   action,
		"points":   res.Points,
		"total_xp": st.TotalXP,
		"level":    st.Level,
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *GamificationService) addXP(repo *mysql.StatsRepository, st *model.UserStats, action string, points int64, refID uint64, now time.Time) error {
	if points <= 0 {
		return nil
	}
	st.TotalXP += points
	st.Level = calc.Level(st.TotalXP)
	return repo.AddEvent(&model.XPEvent{
		UserID:      st.UserID,
		Action:      action,
		Points:      points,
		ReferenceID: refID,
		CreatedAt:   now,
	})
}

func countersOf(st *model.UserStats) calc.Counters {
	return calc.Counters{
		XPTotal:        st.TotalXP,
		VotesCast:      st.VotesCast,
		ContentCreated: st.ContentCreated,
		StreakDays:     int64(st.CurrentStreak),
		EventsAttended: st.EventsAttended,
	}
}

// AfterCommit 事务提交后同步排行榜缓存与指标，失败只记日志
func (s *GamificationService) AfterCommit(ctx context.Context, res *AwardResult) {
	if res == nil {
		return
	}
	metrics.XPAwarded.WithLabelValues(res.Action).Add(float64(res.Points))
	if s.board != nil {
		if err := s.board.SetScore(ctx, res.UserID, res.TotalXP); err != nil {
			s.log.Warn("leaderboard update failed", zap.Uint64("user_id", res.UserID), zap.Error(err))
		}
	}
	for _, a := range res.Unlocked {
		s.log.Info("achievement unlocked", zap.Uint64("user_id", res.UserID), zap.String("key", a.Key))
	}
}

// LoginResult 每日登录结果
type LoginResult struct {
	Counted       bool         `json:"counted"`
	CurrentStreak int          `json:"current_streak"`
	LongestStreak int          `json:"longest_streak"`
	Award         *AwardResult `json:"award,omitempty"`
}

// DailyLogin 每个 UTC 日只计一次；连续第二天起追加 streak_bonus
func (s *GamificationService) DailyLogin(ctx context.Context, userID uint64) (*LoginResult, error) {
	out := &LoginResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := (&mysql.StatsRepository{DB: tx}).LockOrCreate(userID)
		if err != nil {
			return err
		}
		now := s.now()
		streak, counted := calc.NextStreak(st.LastActivityDay, st.CurrentStreak, now)
		out.Counted = counted
		if !counted {
			out.CurrentStreak = st.CurrentStreak
			out.LongestStreak = st.LongestStreak
			return nil
		}
		day := calc.Day(now)
		st.CurrentStreak = streak
		st.LastActivityDay = &day
		if streak > st.LongestStreak {
			st.LongestStreak = streak
		}
		out.CurrentStreak = st.CurrentStreak
		out.LongestStreak = st.LongestStreak

		res, err := s.apply(tx, st, config.ActionDailyLogin, -1, 0)
		if err != nil {
			return err
		}
		if streak > 1 {
			bonus, err := s.apply(tx, st, config.ActionStreakBonus, -1, 0)
			if err != nil {
				return err
			}
			res.merge(bonus)
		}
		out.Award = res
		return nil
	})
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	s.AfterCommit(ctx, out.Award)
	return out, nil
}

// Profile 个人积分面板；等级按 total_xp 现算
type Profile struct {
	UserID        uint64                  `json:"user_id"`
	TotalXP       int64                   `json:"total_xp"`
	Level         int                     `json:"level"`
	NextLevelXP   int64                   `json:"next_level_xp"`
	LevelProgress float64                 `json:"level_progress"`
	CurrentStreak int                     `json:"current_streak"`
	LongestStreak int                     `json:"longest_streak"`
	VotesCast     int64                   `json:"votes_cast"`
	Created       int64                   `json:"content_created"`
	Events        int64                   `json:"events_attended"`
	Achievements  []config.AchievementDef `json:"achievements"`
	Recent        []model.XPEvent         `json:"recent"`
}

func (s *GamificationService) Me(ctx context.Context, userID uint64) (*Profile, error) {
	repo := &mysql.StatsRepository{DB: s.db.WithContext(ctx)}
	st, err := repo.Get(userID)
	if err != nil {
		return nil, dbErr(err)
	}
	level := calc.Level(st.TotalXP)
	p := &Profile{
		UserID:        userID,
		TotalXP:       st.TotalXP,
		Level:         level,
		NextLevelXP:   calc.NextLevelXP(level),
		LevelProgress: calc.LevelProgress(st.TotalXP),
		CurrentStreak: st.CurrentStreak,
		LongestStreak: st.LongestStreak,
		VotesCast:     st.VotesCast,
		Created:       st.ContentCreated,
		Events:        st.EventsAttended,
		Achievements:  []config.AchievementDef{},
	}
	have, err := repo.ListAchievements(userID)
	if err != nil {
		return nil, dbErr(err)
	}
	defs := make(map[string]config.AchievementDef, len(s.policy.Achievements))
	for _, d := range s.policy.Achievements {
		defs[d.Key] = d
	}
	for _, a := range have {
		d, ok := defs[a.AchievementKey]
		if !ok {
			// 策略表已移除的成就仍然展示
			d = config.AchievementDef{Key: a.AchievementKey, Name: a.AchievementKey}
		}
		p.Achievements = append(p.Achievements, d)
	}
	if p.Recent, err = repo.RecentEvents(userID, 10); err != nil {
		return nil, dbErr(err)
	}
	return p, nil
}

// LeaderboardEntry 排行榜行
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
	TotalXP  int64  `json:"total_xp"`
	Level    int    `json:"level"`
}

// Leaderboard 优先读 redis，未命中时回源并预热
func (s *GamificationService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var entries []redis.Entry
	hit := false
	if s.board != nil {
		var err error
		entries, hit, err = s.board.Top(ctx, limit)
		if err != nil {
			s.log.Warn("leaderboard cache read failed", zap.Error(err))
			hit = false
		}
	}
	if !hit {
		size := limit
		if s.board != nil {
			size = leaderboardWarmSize
		}
		rows, err := (&mysql.StatsRepository{DB: s.db.WithContext(ctx)}).Top(size)
		if err != nil {
			return nil, dbErr(err)
		}
		entries = make([]redis.Entry, 0, len(rows))
		for _, r := range rows {
			entries = append(entries, redis.Entry{UserID: r.UserID, TotalXP: r.TotalXP})
		}
		if s.board != nil {
			s.warm(ctx, entries)
		}
		if len(entries) > limit {
			entries = entries[:limit]
		}
	}

	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	users, err := s.users.FindByIDs(ids)
	if err != nil {
		return nil, dbErr(err)
	}
	names := make(map[uint64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	out := make([]LeaderboardEntry, 0, len(entries))
	for i, e := range entries {
		out = append(out, LeaderboardEntry{
			Rank:     i + 1,
			UserID:   e.UserID,
			Username: names[e.UserID],
			TotalXP:  e.TotalXP,
			Level:    calc.Level(e.TotalXP),
		})
	}
	return out, nil
}

// warm 拿到锁才回填缓存，拿不到说明已有请求在重建
func (s *GamificationService) warm(ctx context.Context, entries []redis.Entry) {
	if s.lock != nil {
		token := strconv.FormatInt(s.now().UnixNano(), 10)
		got, err := s.lock.Acquire(ctx, warmLockName, 0, token)
		if err != nil || !got {
			return
		}
		defer func() {
			if err := s.lock.Release(ctx, warmLockName, 0, token); err != nil {
				s.log.Warn("release leaderboard lock failed", zap.Error(err))
			}
		}()
	}
	if err := s.board.Warm(ctx, entries); err != nil {
		s.log.Warn("leaderboard warm failed", zap.Error(err))
	}
}
