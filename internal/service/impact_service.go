package service

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/calc"
	"Crowd_Conscious/internal/config"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/mysql"
)

type ImpactService struct {
	repo        *mysql.ImpactRepository
	contents    *mysql.ContentRepository
	memberRepo  *mysql.CommunityMemberRepository
	users       *mysql.UserRepository
	communities *CommunityService
	policy      *config.Policy
	log         *zap.Logger
	now         func() time.Time
}

func NewImpactService(db *gorm.DB, communities *CommunityService, policy *config.Policy, log *zap.Logger) *ImpactService {
	return &ImpactService{
		repo:        &mysql.ImpactRepository{DB: db},
		contents:    &mysql.ContentRepository{DB: db},
		memberRepo:  &mysql.CommunityMemberRepository{DB: db},
		users:       &mysql.UserRepository{DB: db},
		communities: communities,
		policy:      policy,
		log:         log,
		now:         time.Now,
	}
}

type RecordImpactInput struct {
	CommunityID uint64
	ContentID   uint64
	MetricType  string
	Value       float64
	Unit        string
}

// Record founder/admin 上报影响力数据，待平台核验
func (s *ImpactService) Record(actorID uint64, in RecordImpactInput) (*model.ImpactMetric, error) {
	metricType := strings.ToLower(strings.TrimSpace(in.MetricType))
	if metricType == "" {
		return nil, pkg.ErrInvalidParams.WithMsg("metric type required")
	}
	if in.Value <= 0 {
		return nil, pkg.ErrInvalidParams.WithMsg("value must be positive")
	}
	if _, err := s.communities.Manager(in.CommunityID, actorID); err != nil {
		return nil, err
	}
	if in.ContentID != 0 {
		c, err := s.contents.FindByID(in.ContentID)
		if err != nil {
			return nil, dbErr(err)
		}
		if c.CommunityID != in.CommunityID {
			return nil, pkg.ErrInvalidParams.WithMsg("content belongs to another community")
		}
	}
	m := &model.ImpactMetric{
		CommunityID: in.CommunityID,
		ContentID:   in.ContentID,
		MetricType:  metricType,
		Value:       in.Value,
		Unit:        strings.TrimSpace(in.Unit),
		RecordedBy:  actorID,
	}
	if err := s.repo.Create(m); err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return m, nil
}

// Verify 仅平台管理员；重复核验不报错
func (s *ImpactService) Verify(actorID, metricID uint64) (*model.ImpactMetric, error) {
	u, err := s.users.FindByID(actorID)
	if err != nil {
		return nil, dbErr(err)
	}
	if !u.IsAdmin() {
		return nil, pkg.ErrForbidden.WithMsg("platform admin required")
	}
	if _, err := s.repo.FindByID(metricID); err != nil {
		return nil, dbErr(err)
	}
	changed, err := s.repo.Verify(metricID, actorID, s.now())
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	if changed {
		s.log.Info("impact metric verified", zap.Uint64("metric_id", metricID), zap.Uint64("verifier", actorID))
	}
	m, err := s.repo.FindByID(metricID)
	if err != nil {
		return nil, dbErr(err)
	}
	return m, nil
}

// Report 社区影响力报告，分配只影响展示
type Report struct {
	CommunityID      uint64               `json:"community_id"`
	Metrics          []mysql.MetricSum    `json:"metrics"`
	CompletedFunding int64                `json:"completed_funding"`
	Distribution     []calc.MemberImpact  `json:"distribution"`
	Recent           []model.ImpactMetric `json:"recent"`
}

func (s *ImpactService) Report(communityID uint64) (*Report, error) {
	if _, err := s.communities.Get(communityID); err != nil {
		return nil, err
	}
	sums, err := s.repo.SumByType(communityID)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	funding, err := s.repo.CompletedFunding(communityID)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	members, err := s.memberRepo.ListByCommunity(communityID)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	weighted := make([]calc.WeightedMember, 0, len(members))
	for _, m := range members {
		weighted = append(weighted, calc.WeightedMember{
			UserID: m.UserID,
			Role:   m.Role,
			Weight: s.policy.VotingWeight(m.Role),
		})
	}
	recent, err := s.repo.ListByCommunity(communityID, 0, 20)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	if sums == nil {
		sums = []mysql.MetricSum{}
	}
	return &Report{
		CommunityID:      communityID,
		Metrics:          sums,
		CompletedFunding: funding,
		Distribution:     calc.Distribute(weighted, float64(funding)),
		Recent:           recent,
	}, nil
}
