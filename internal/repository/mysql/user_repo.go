package mysql

import (
	"gorm.io/gorm"

	"Crowd_Conscious/internal/model"
)

// UserRepository 账号表
type UserRepository struct {
	DB *gorm.DB
}

func (r *UserRepository) Create(user *model.User) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) take(query string, args ...any) (*model.User, error) {
	var u model.User
	if err := r.DB.Where(query, args...).Take(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByLogin 用户名或邮箱均可登录
func (r *UserRepository) FindByLogin(login string) (*model.User, error) {
	return r.take("username = ? OR email = ?", login, login)
}

func (r *UserRepository) FindByID(id uint64) (*model.User, error) {
	return r.take("id = ?", id)
}

func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	return r.take("email = ?", email)
}

// FindByIDs 批量补全展示信息，顺序不保证
func (r *UserRepository) FindByIDs(ids []uint64) ([]model.User, error) {
	var users []model.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.DB.Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *UserRepository) SetPassword(userID uint64, hash string) error {
	return r.DB.Model(&model.User{}).Where("id = ?", userID).Update("password", hash).Error
}

// UpdateProfile 目前只有姓名可改
func (r *UserRepository) UpdateProfile(userID uint64, fullName string) error {
	return r.DB.Model(&model.User{}).Where("id = ?", userID).
		Update("full_name", fullName).Error
}

// SwapAvatar 写入新头像，返回旧文件路径供调用方清理
func (r *UserRepository) SwapAvatar(userID uint64, url, path string) (string, error) {
	var old string
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var u model.User
		if err := tx.Select("id", "avatar_path").Take(&u, userID).Error; err != nil {
			return err
		}
		old = u.AvatarPath
		return tx.Model(&model.User{}).Where("id = ?", userID).
			Updates(map[string]any{"avatar_url": url, "avatar_path": path}).Error
	})
	return old, err
}
