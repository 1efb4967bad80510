package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/mysql"
	"Crowd_Conscious/internal/repository/redis"
)

type UserService struct {
	repo         *mysql.UserRepository
	tokens       *redis.UserRepository
	emailSvc     *EmailService
	tm           *pkg.TokenManager
	uploader     *Uploader
	avatarBucket string
	log          *zap.Logger
}

func NewUserService(db *gorm.DB, tokens *redis.UserRepository, emailSvc *EmailService, tm *pkg.TokenManager,
	uploader *Uploader, avatarBucket string, log *zap.Logger) *UserService {
	return &UserService{
		repo:         &mysql.UserRepository{DB: db},
		tokens:       tokens,
		emailSvc:     emailSvc,
		tm:           tm,
		uploader:     uploader,
		avatarBucket: avatarBucket,
		log:          log,
	}
}

type RegisterInput struct {
	Username string
	Password string
	Email    string
	Code     string
	FullName string
	UserType string
}

// Register 校验邮箱验证码后注册；管理员不能自助注册
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	switch in.UserType {
	case "":
		in.UserType = model.UserTypeUser
	case model.UserTypeUser, model.UserTypeBrand:
	default:
		return nil, pkg.ErrInvalidParams.WithMsg("invalid user type")
	}

	ok, err := s.emailSvc.VerifyCode(ctx, redis.ScopeRegister, in.Email, in.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkg.ErrVerificationFailed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	user := &model.User{
		Username: in.Username,
		Password: string(hash),
		Email:    in.Email,
		FullName: in.FullName,
		UserType: in.UserType,
	}
	if err := s.repo.Create(user); err != nil {
		if isDuplicate(err) {
			return nil, pkg.ErrConflict.WithMsg("username or email already registered")
		}
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return user, nil
}

// Login 签发 token 对，access token 写入 redis 作为唯一有效登录态
func (s *UserService) Login(ctx context.Context, username, password string) (*pkg.Pair, *model.User, error) {
	user, err := s.repo.FindByLogin(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkg.ErrUnauthorized.WithMsg("invalid username or password")
		}
		return nil, nil, pkg.ErrInternal.Wrap(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, nil, pkg.ErrUnauthorized.WithMsg("invalid username or password")
	}
	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

func (s *UserService) issue(ctx context.Context, user *model.User) (*pkg.Pair, error) {
	pair, err := s.tm.GeneratePair(user.ID, user.UserType)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	if err := s.tokens.AddUserToken(ctx, user.ID, pair.AccessToken); err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return pair, nil
}

func (s *UserService) Logout(ctx context.Context, userID uint64) error {
	if err := s.tokens.DeleteUserToken(ctx, userID); err != nil {
		return pkg.ErrInternal.Wrap(err)
	}
	return nil
}

// Refresh 用 refresh token 换新的一对 token，旧 access token 随之失效
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*pkg.Pair, error) {
	claims, err := s.tm.ParseRefresh(refreshToken)
	if err != nil {
		return nil, pkg.ErrUnauthorized.WithMsg("invalid refresh token").Wrap(err)
	}
	user, err := s.repo.FindByID(claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkg.ErrUnauthorized.WithMsg("user not found")
		}
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return s.issue(ctx, user)
}

func (s *UserService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	ok, err := s.emailSvc.VerifyCode(ctx, redis.ScopeReset, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return pkg.ErrVerificationFailed
	}
	user, err := s.repo.FindByEmail(email)
	if err != nil {
		return dbErr(err)
	}
	if err := s.setPassword(user, newPassword); err != nil {
		return err
	}
	return s.Logout(ctx, user.ID)
}

// ChangePassword 登录态修改密码，成功后需要重新登录
func (s *UserService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	user, err := s.repo.FindByID(userID)
	if err != nil {
		return dbErr(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)) != nil {
		return pkg.ErrInvalidParams.WithMsg("old password is incorrect")
	}
	if err := s.setPassword(user, newPassword); err != nil {
		return err
	}
	return s.Logout(ctx, userID)
}

func (s *UserService) setPassword(user *model.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return pkg.ErrInternal.Wrap(err)
	}
	if err := s.repo.SetPassword(user.ID, string(hash)); err != nil {
		return pkg.ErrInternal.Wrap(err)
	}
	return nil
}

func (s *UserService) Profile(userID uint64) (*model.User, error) {
	user, err := s.repo.FindByID(userID)
	if err != nil {
		return nil, dbErr(err)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(userID uint64, fullName string) (*model.User, error) {
	if err := s.repo.UpdateProfile(userID, fullName); err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return s.Profile(userID)
}

// UploadAvatar 上传新头像并清理旧文件
func (s *UserService) UploadAvatar(ctx context.Context, userID uint64, data []byte) (string, error) {
	up, err := s.uploader.Put(ctx, s.avatarBucket, userID, data)
	if err != nil {
		return "", err
	}
	old, err := s.repo.SwapAvatar(userID, up.URL, up.Path)
	if err != nil {
		s.uploader.Discard(ctx, s.avatarBucket, up.Path)
		return "", dbErr(err)
	}
	if old != "" && old != up.Path {
		s.uploader.Discard(ctx, s.avatarBucket, old)
	}
	return up.URL, nil
}
