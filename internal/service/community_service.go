package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/config"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/mysql"
)

type CommunityService struct {
	repo       *mysql.CommunityRepository
	memberRepo *mysql.CommunityMemberRepository
	users      *mysql.UserRepository
	policy     *config.Policy
	uploader   *Uploader
	bucket     string
	log        *zap.Logger
}

func NewCommunityService(db *gorm.DB, policy *config.Policy, uploader *Uploader, bucket string, log *zap.Logger) *CommunityService {
	return &CommunityService{
		repo:       &mysql.CommunityRepository{DB: db},
		memberRepo: &mysql.CommunityMemberRepository{DB: db},
		users:      &mysql.UserRepository{DB: db},
		policy:     policy,
		uploader:   uploader,
		bucket:     bucket,
		log:        log,
	}
}

type CreateCommunityInput struct {
	Name        string
	Description string
	CoreValues  []string
	Address     string
}

// Create 创建者在同一事务内以 founder 身份加入
func (s *CommunityService) Create(userID uint64, in CreateCommunityInput) (*model.Community, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, pkg.ErrInvalidParams.WithMsg("community name required")
	}
	values := in.CoreValues
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, pkg.ErrInvalidParams.Wrap(err)
	}
	community := &model.Community{
		Name:        name,
		Description: in.Description,
		CoreValues:  datatypes.JSON(raw),
		Address:     in.Address,
		CreatorID:   userID,
	}
	if _, err := s.repo.Create(community); err != nil {
		if isDuplicate(err) {
			return nil, pkg.ErrConflict.WithMsg("community name already taken")
		}
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return community, nil
}

func (s *CommunityService) Get(communityID uint64) (*model.Community, error) {
	c, err := s.repo.FindByID(communityID)
	if err != nil {
		return nil, dbErr(err)
	}
	return c, nil
}

// Join 幂等加入，返回是否新加入
func (s *CommunityService) Join(userID, communityID uint64) (bool, error) {
	if _, err := s.Get(communityID); err != nil {
		return false, err
	}
	joined, err := s.memberRepo.Join(&model.CommunityMember{
		CommunityID: communityID,
		UserID:      userID,
		Role:        model.RoleMember,
	})
	if err != nil {
		return false, pkg.ErrInternal.Wrap(err)
	}
	return joined, nil
}

// Leave 幂等退出；founder 不能退出
func (s *CommunityService) Leave(userID, communityID uint64) (bool, error) {
	m, err := s.memberRepo.Get(communityID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, pkg.ErrInternal.Wrap(err)
	}
	if m.Role == model.RoleFounder {
		return false, pkg.ErrForbidden.WithMsg("founder cannot leave the community")
	}
	left, err := s.memberRepo.Leave(communityID, userID)
	if err != nil {
		return false, pkg.ErrInternal.Wrap(err)
	}
	return left, nil
}

func (s *CommunityService) List(page, size int) ([]model.Community, error) {
	offset, limit := pageArgs(page, size)
	list, err := s.repo.List(offset, limit)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return list, nil
}

// Membership 非成员返回 ErrNotMember
func (s *CommunityService) Membership(communityID, userID uint64) (*model.CommunityMember, error) {
	m, err := s.memberRepo.Get(communityID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkg.ErrNotMember
	}
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return m, nil
}

// Manager founder/admin 才能通过
func (s *CommunityService) Manager(communityID, userID uint64) (*model.CommunityMember, error) {
	m, err := s.Membership(communityID, userID)
	if err != nil {
		return nil, err
	}
	if !m.CanManage() {
		return nil, pkg.ErrForbidden.WithMsg("founder or admin role required")
	}
	return m, nil
}

// SetRole founder/admin 可把成员设为 admin 或 member；不能产生第二个 founder，
// founder 的角色不可修改，降级 admin 只能由 founder 操作
func (s *CommunityService) SetRole(actorID, communityID, targetID uint64, role string) error {
	if role != model.RoleAdmin && role != model.RoleMember {
		return pkg.ErrInvalidParams.WithMsg("role must be admin or member")
	}
	actor, err := s.Manager(communityID, actorID)
	if err != nil {
		return err
	}
	target, err := s.Membership(communityID, targetID)
	if err != nil {
		return err
	}
	if target.Role == model.RoleFounder {
		return pkg.ErrForbidden.WithMsg("founder role cannot be changed")
	}
	if target.Role == model.RoleAdmin && actor.Role != model.RoleFounder {
		return pkg.ErrForbidden.WithMsg("only the founder can change an admin")
	}
	if target.Role == role {
		return nil
	}
	if _, err := s.memberRepo.UpdateRole(communityID, targetID, role); err != nil {
		return pkg.ErrInternal.Wrap(err)
	}
	return nil
}

// MemberView 成员列表行，voting power 由角色推导
type MemberView struct {
	UserID      uint64 `json:"user_id"`
	Username    string `json:"username"`
	FullName    string `json:"full_name"`
	AvatarURL   string `json:"avatar_url"`
	Role        string `json:"role"`
	VotingPower int    `json:"voting_power"`
}

func (s *CommunityService) Members(communityID uint64) ([]MemberView, error) {
	if _, err := s.Get(communityID); err != nil {
		return nil, err
	}
	members, err := s.memberRepo.ListByCommunity(communityID)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := s.users.FindByIDs(ids)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	byID := make(map[uint64]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	out := make([]MemberView, 0, len(members))
	for _, m := range members {
		u := byID[m.UserID]
		out = append(out, MemberView{
			UserID:      m.UserID,
			Username:    u.Username,
			FullName:    u.FullName,
			AvatarURL:   u.AvatarURL,
			Role:        m.Role,
			VotingPower: s.policy.VotingWeight(m.Role),
		})
	}
	return out, nil
}

// UploadImage 社区封面，founder/admin 可改
func (s *CommunityService) UploadImage(ctx context.Context, userID, communityID uint64, data []byte) (string, error) {
	if _, err := s.Manager(communityID, userID); err != nil {
		return "", err
	}
	up, err := s.uploader.Put(ctx, s.bucket, userID, data)
	if err != nil {
		return "", err
	}
	old, err := s.repo.SwapImage(communityID, up.URL, up.Path)
	if err != nil {
		s.uploader.Discard(ctx, s.bucket, up.Path)
		return "", dbErr(err)
	}
	if old != "" && old != up.Path {
		s.uploader.Discard(ctx, s.bucket, old)
	}
	return up.URL, nil
}
