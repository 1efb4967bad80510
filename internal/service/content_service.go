package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/calc"
	"Crowd_Conscious/internal/config"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/elastic"
	"Crowd_Conscious/internal/repository/mysql"
)

type ContentService struct {
	db          *gorm.DB
	repo        *mysql.ContentRepository
	communities *CommunityService
	xp          *GamificationService
	index       *elastic.ContentIndex
	uploader    *Uploader
	bucket      string
	policy      *config.Policy
	log         *zap.Logger
}

// NewContentService index 为 nil 时搜索不可用
func NewContentService(db *gorm.DB, communities *CommunityService, xp *GamificationService, index *elastic.ContentIndex,
	uploader *Uploader, bucket string, policy *config.Policy, log *zap.Logger) *ContentService {
	return &ContentService{
		db:          db,
		repo:        &mysql.ContentRepository{DB: db},
		communities: communities,
		xp:          xp,
		index:       index,
		uploader:    uploader,
		bucket:      bucket,
		policy:      policy,
		log:         log,
	}
}

type CreateContentInput struct {
	CommunityID uint64
	Type        string
	Title       string
	Description string
	FundingGoal int64
}

func validContentType(t string) bool {
	switch t {
	case model.ContentTypeNeed, model.ContentTypeEvent, model.ContentTypePoll, model.ContentTypeChallenge:
		return true
	}
	return false
}

// Create 成员发布内容，同一事务内发放 content_created XP
func (s *ContentService) Create(ctx context.Context, userID uint64, in CreateContentInput) (*ContentView, error) {
	if in.Type == "" {
		in.Type = model.ContentTypeNeed
	}
	if !validContentType(in.Type) {
		return nil, pkg.ErrInvalidParams.WithMsg("unknown content type")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, pkg.ErrInvalidParams.WithMsg("title required")
	}
	if in.FundingGoal < 0 {
		return nil, pkg.ErrInvalidParams.WithMsg("funding goal must not be negative")
	}
	if in.Type != model.ContentTypeNeed && in.FundingGoal != 0 {
		return nil, pkg.ErrInvalidParams.WithMsg("only needs carry a funding goal")
	}
	if _, err := s.communities.Membership(in.CommunityID, userID); err != nil {
		return nil, err
	}

	c := &model.CommunityContent{
		CommunityID: in.CommunityID,
		AuthorID:    userID,
		Type:        in.Type,
		Title:       title,
		Description: in.Description,
		Status:      model.ContentStatusVoting,
		FundingGoal: in.FundingGoal,
	}
	var award *AwardResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&mysql.ContentRepository{DB: tx}).Create(c); err != nil {
			return err
		}
		var err error
		award, err = s.xp.AwardTx(tx, userID, config.ActionContentCreated, c.ID)
		return err
	})
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	s.xp.AfterCommit(ctx, award)
	v := s.view(c)
	v.Award = award
	return v, nil
}

// VoteTally 票数统计，不受角色权重影响
type VoteTally struct {
	For          int64   `json:"for"`
	Against      int64   `json:"against"`
	Total        int64   `json:"total"`
	ApprovalRate float64 `json:"approval_rate"`
}

// ContentView 内容详情：need 附带筹款进度
type ContentView struct {
	model.CommunityContent
	Funding *calc.FundingSummary `json:"funding,omitempty"`
	Votes   VoteTally            `json:"votes"`
	Award   *AwardResult         `json:"award,omitempty"`
}

func (s *ContentService) view(c *model.CommunityContent) *ContentView {
	v := &ContentView{CommunityContent: *c}
	if c.Type == model.ContentTypeNeed {
		sum := calc.Summarize(c.CurrentFunding, c.FundingGoal, s.policy.Urgency)
		v.Funding = &sum
	}
	total := c.VotesFor + c.VotesAgainst
	v.Votes = VoteTally{For: c.VotesFor, Against: c.VotesAgainst, Total: total}
	if total > 0 {
		v.Votes.ApprovalRate = float64(c.VotesFor) * 100 / float64(total)
	}
	return v
}

func (s *ContentService) Get(contentID uint64) (*ContentView, error) {
	c, err := s.repo.FindByID(contentID)
	if err != nil {
		return nil, dbErr(err)
	}
	return s.view(c), nil
}

// VoteResult Changed=false 表示此前已投过
type VoteResult struct {
	Changed bool         `json:"changed"`
	Votes   VoteTally    `json:"votes"`
	Award   *AwardResult `json:"award,omitempty"`
}

// Vote 每人每条内容一票，仅 voting 状态可投
func (s *ContentService) Vote(ctx context.Context, userID, contentID uint64, approve bool) (*VoteResult, error) {
	c, err := s.repo.FindByID(contentID)
	if err != nil {
		return nil, dbErr(err)
	}
	if _, err := s.communities.Membership(c.CommunityID, userID); err != nil {
		return nil, err
	}
	if c.Status != model.ContentStatusVoting {
		return nil, pkg.ErrInvalidTransition.WithMsg("voting is closed")
	}
	out := &VoteResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err := (&mysql.ContentRepository{DB: tx}).Vote(userID, contentID, approve)
		if err != nil || !changed {
			return err
		}
		out.Changed = true
		out.Award, err = s.xp.AwardTx(tx, userID, config.ActionVote, contentID)
		return err
	})
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	s.xp.AfterCommit(ctx, out.Award)
	fresh, err := s.repo.FindByID(contentID)
	if err != nil {
		return nil, dbErr(err)
	}
	out.Votes = s.view(fresh).Votes
	return out, nil
}

// SetStatus founder/admin 推进状态；通过时给作者发 content_approved
func (s *ContentService) SetStatus(ctx context.Context, actorID, contentID uint64, to string) (*ContentView, error) {
	c, err := s.repo.FindByID(contentID)
	if err != nil {
		return nil, dbErr(err)
	}
	if _, err := s.communities.Manager(c.CommunityID, actorID); err != nil {
		return nil, err
	}
	if !model.CanTransition(c.Status, to) {
		return nil, pkg.ErrInvalidTransition.WithMsg("cannot move from " + c.Status + " to " + to)
	}
	var award *AwardResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&mysql.ContentRepository{DB: tx}).UpdateStatus(contentID, c.Status, to); err != nil {
			return err
		}
		if to != model.ContentStatusApproved {
			return nil
		}
		var err error
		award, err = s.xp.AwardTx(tx, c.AuthorID, config.ActionContentApproved, contentID)
		return err
	})
	if errors.Is(err, mysql.ErrStatusChanged) {
		return nil, pkg.ErrInvalidTransition.WithMsg("content status changed, reload and retry")
	}
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	s.xp.AfterCommit(ctx, award)
	c.Status = to
	return s.view(c), nil
}

// ContentPage 游标分页结果；NextTS 为 unix 纳秒
type ContentPage struct {
	Items  []*ContentView `json:"items"`
	NextID uint64         `json:"next_id"`
	NextTS int64          `json:"next_ts"`
}

// ListByCommunity 首页 lastID/lastTS 传 0
func (s *ContentService) ListByCommunity(communityID uint64, f mysql.ContentFilter, lastID uint64, lastTS int64, size int) (*ContentPage, error) {
	if size <= 0 || size > 50 {
		size = 20
	}
	var cursor time.Time
	if lastTS > 0 {
		cursor = time.Unix(0, lastTS)
	}
	list, err := s.repo.ListByCommunityCursor(communityID, f, lastID, cursor, size)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	page := &ContentPage{Items: make([]*ContentView, 0, len(list))}
	for i := range list {
		page.Items = append(page.Items, s.view(&list[i]))
	}
	if len(list) == size {
		last := list[len(list)-1]
		page.NextID = last.ID
		page.NextTS = last.CreatedAt.UnixNano()
	}
	return page, nil
}

// SearchResult 搜索命中按相关度排序
type SearchResult struct {
	Total int64          `json:"total"`
	Items []*ContentView `json:"items"`
}

// Search 走 ES 取 id，再回库取详情；索引已删的 id 跳过
func (s *ContentService) Search(ctx context.Context, q elastic.SearchQuery) (*SearchResult, error) {
	if s.index == nil {
		return nil, pkg.ErrFeatureDisabled.WithMsg("search is not configured")
	}
	ids, total, err := s.index.Search(ctx, q)
	if err != nil {
		s.log.Error("content search failed", zap.String("text", q.Text), zap.Error(err))
		return nil, pkg.ErrInternal.Wrap(err)
	}
	list, err := s.repo.FindByIDs(ids)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	byID := make(map[uint64]*model.CommunityContent, len(list))
	for i := range list {
		byID[list[i].ID] = &list[i]
	}
	res := &SearchResult{Total: total, Items: make([]*ContentView, 0, len(ids))}
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			res.Items = append(res.Items, s.view(c))
		}
	}
	return res, nil
}

// RSVP 活动报名，首次报名发 event_rsvp
func (s *ContentService) RSVP(ctx context.Context, userID, contentID uint64) (bool, error) {
	c, err := s.repo.FindByID(contentID)
	if err != nil {
		return false, dbErr(err)
	}
	if c.Type != model.ContentTypeEvent {
		return false, pkg.ErrInvalidParams.WithMsg("content is not an event")
	}
	if c.Status == model.ContentStatusRejected || c.Status == model.ContentStatusCompleted {
		return false, pkg.ErrInvalidTransition.WithMsg("event is closed")
	}
	if _, err := s.communities.Membership(c.CommunityID, userID); err != nil {
		return false, err
	}
	var (
		added bool
		award *AwardResult
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		added, err = (&mysql.ContentRepository{DB: tx}).RSVP(contentID, userID)
		if err != nil || !added {
			return err
		}
		award, err = s.xp.AwardTx(tx, userID, config.ActionEventRSVP, contentID)
		return err
	})
	if err != nil {
		return false, pkg.ErrInternal.Wrap(err)
	}
	s.xp.AfterCommit(ctx, award)
	return added, nil
}

// ConfirmAttendance founder/admin 确认到场，发 event_attended
func (s *ContentService) ConfirmAttendance(ctx context.Context, actorID, contentID, userID uint64) (bool, error) {
	c, err := s.repo.FindByID(contentID)
	if err != nil {
		return false, dbErr(err)
	}
	if c.Type != model.ContentTypeEvent {
		return false, pkg.ErrInvalidParams.WithMsg("content is not an event")
	}
	if _, err := s.communities.Manager(c.CommunityID, actorID); err != nil {
		return false, err
	}
	var (
		marked bool
		award  *AwardResult
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		marked, err = (&mysql.ContentRepository{DB: tx}).MarkAttended(contentID, userID)
		if err != nil || !marked {
			return err
		}
		award, err = s.xp.AwardTx(tx, userID, config.ActionEventAttended, contentID)
		return err
	})
	if err != nil {
		return false, pkg.ErrInternal.Wrap(err)
	}
	s.xp.AfterCommit(ctx, award)
	return marked, nil
}

func (s *ContentService) Attendees(contentID uint64) ([]model.EventRSVP, error) {
	if _, err := s.repo.FindByID(contentID); err != nil {
		return nil, dbErr(err)
	}
	list, err := s.repo.ListRSVPs(contentID)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return list, nil
}

// UploadImage 作者或 founder/admin 可改配图
func (s *ContentService) UploadImage(ctx context.Context, userID, contentID uint64, data []byte) (string, error) {
	c, err := s.repo.FindByID(contentID)
	if err != nil {
		return "", dbErr(err)
	}
	if c.AuthorID != userID {
		if _, err := s.communities.Manager(c.CommunityID, userID); err != nil {
			return "", err
		}
	}
	up, err := s.uploader.Put(ctx, s.bucket, userID, data)
	if err != nil {
		return "", err
	}
	old, err := s.repo.SwapImage(contentID, up.URL, up.Path)
	if err != nil {
		s.uploader.Discard(ctx, s.bucket, up.Path)
		return "", dbErr(err)
	}
	if old != "" && old != up.Path {
		s.uploader.Discard(ctx, s.bucket, old)
	}
	return up.URL, nil
}
