package service

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/calc"
	"Crowd_Conscious/internal/metrics"
	"Crowd_Conscious/internal/repository/mysql"
)

// Reconciler 修正冗余字段：社区成员数与用户等级
type Reconciler struct {
	communities *mysql.CommunityRepository
	stats       *mysql.StatsRepository
	BatchSize   int
	spec        string
	log         *zap.Logger
}

// NewReconciler spec 为 cron 表达式，空值为每 5 分钟
func NewReconciler(db *gorm.DB, spec string, log *zap.Logger) *Reconciler {
	if spec == "" {
		spec = "@every 5m"
	}
	return &Reconciler{
		communities: &mysql.CommunityRepository{DB: db},
		stats:       &mysql.StatsRepository{DB: db},
		BatchSize:   500,
		spec:        spec,
		log:         log,
	}
}

// Run 按 cron 调度，ctx 取消后等待正在执行的任务结束
func (r *Reconciler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.spec, func() { r.ReconcileOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// ReconcileOnce 全量对账一次，返回修正条数
func (r *Reconciler) ReconcileOnce(ctx context.Context) int {
	return r.memberCounts(ctx) + r.levels(ctx)
}

func (r *Reconciler) memberCounts(ctx context.Context) int {
	fixed := 0
	var lastID uint64
	for ctx.Err() == nil {
		list, next, err := r.communities.ReconcileList(ctx, r.BatchSize, lastID)
		if err != nil {
			r.log.Error("reconcile community list failed", zap.Error(err))
			return fixed
		}
		if len(list) == 0 {
			return fixed
		}
		for _, c := range list {
			actual, err := r.communities.RealMemberCount(ctx, c.ID)
			if err != nil {
				r.log.Warn("count members failed", zap.Uint64("community_id", c.ID), zap.Error(err))
				continue
			}
			if actual == c.MemberCount {
				continue
			}
			if err := r.communities.FixMemberCount(ctx, c.ID, actual); err != nil {
				r.log.Warn("fix member count failed", zap.Uint64("community_id", c.ID), zap.Error(err))
				continue
			}
			metrics.Corrections.WithLabelValues("member_count").Inc()
			fixed++
		}
		lastID = next
	}
	return fixed
}

func (r *Reconciler) levels(ctx context.Context) int {
	fixed := 0
	var lastID uint64
	for ctx.Err() == nil {
		list, next, err := r.stats.ReconcileList(ctx, r.BatchSize, lastID)
		if err != nil {
			r.log.Error("reconcile stats list failed", zap.Error(err))
			return fixed
		}
		if len(list) == 0 {
			return fixed
		}
		for _, st := range list {
			want := calc.Level(st.TotalXP)
			if want == st.Level {
				continue
			}
			ok, err := r.stats.FixLevel(ctx, st.UserID, st.TotalXP, want)
			if err != nil {
				r.log.Warn("fix level failed", zap.Uint64("user_id", st.UserID), zap.Error(err))
				continue
			}
			if ok {
				metrics.Corrections.WithLabelValues("level").Inc()
				fixed++
			}
		}
		lastID = next
	}
	return fixed
}
