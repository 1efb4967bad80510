package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	LeaderboardKey = "gamification:leaderboard:xp"
	LeaderboardTTL = 24 * time.Hour
)

// Entry 排行榜条目
type Entry struct {
	UserID  uint64
	TotalXP int64
}

// LeaderboardRepository XP 排行榜缓存；成员为 user_id，分数为 total_xp
type LeaderboardRepository struct {
	RDB *redis.Client
}

// SetScore 写路径：MySQL 事务提交后以最新总分覆盖
func (r *LeaderboardRepository) SetScore(ctx context.Context, userID uint64, totalXP int64) error {
	// 只在集合已存在时写，避免冷启动时产生只有部分用户的榜单
	n, err := r.RDB.Exists(ctx, LeaderboardKey).Result()
	if err != nil || n == 0 {
		return err
	}
	return r.RDB.ZAdd(ctx, LeaderboardKey, redis.Z{Score: float64(totalXP), Member: userID}).Err()
}

// Top 命中缓存返回 ok=true；分数相同按 user_id 升序
func (r *LeaderboardRepository) Top(ctx context.Context, limit int) ([]Entry, bool, error) {
	if limit <= 0 {
		return nil, true, nil
	}
	n, err := r.RDB.Exists(ctx, LeaderboardKey).Result()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	zs, err := r.RDB.ZRevRangeWithScores(ctx, LeaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, false, err
	}
	// 末位并列时把同分成员都取回，再按 user_id 决定名次
	if len(zs) == limit {
		cutoff := strconv.FormatFloat(zs[limit-1].Score, 'f', -1, 64)
		zs, err = r.RDB.ZRevRangeByScoreWithScores(ctx, LeaderboardKey, &redis.ZRangeBy{Min: cutoff, Max: "+inf"}).Result()
		if err != nil {
			return nil, false, err
		}
	}
	list := make([]Entry, 0, len(zs))
	for _, z := range zs {
		id, err := memberID(z.Member)
		if err != nil {
			return nil, false, err
		}
		list = append(list, Entry{UserID: id, TotalXP: int64(z.Score)})
	}
	sortEntries(list)
	if len(list) > limit {
		list = list[:limit]
	}
	return list, true, nil
}

// Warm 回源后整体重建
func (r *LeaderboardRepository) Warm(ctx context.Context, entries []Entry) error {
	_, err := r.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, LeaderboardKey)
		if len(entries) == 0 {
			return nil
		}
		zs := make([]redis.Z, 0, len(entries))
		for _, e := range entries {
			zs = append(zs, redis.Z{Score: float64(e.TotalXP), Member: e.UserID})
		}
		p.ZAdd(ctx, LeaderboardKey, zs...)
		p.Expire(ctx, LeaderboardKey, LeaderboardTTL)
		return nil
	})
	return err
}

func (r *LeaderboardRepository) Invalidate(ctx context.Context) error {
	if err := r.RDB.Del(ctx, LeaderboardKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func memberID(m any) (uint64, error) {
	s, ok := m.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected leaderboard member %v", m)
	}
	return strconv.ParseUint(s, 10, 64)
}

func sortEntries(list []Entry) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].TotalXP != list[j].TotalXP {
			return list[i].TotalXP > list[j].TotalXP
		}
		return list[i].UserID < list[j].UserID
	})
}
