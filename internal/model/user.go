package model

import "time"

const (
	UserTypeUser  = "user"
	UserTypeBrand = "brand"
	UserTypeAdmin = "admin"
)

// User 平台用户（profiles）
type User struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	Username  string `gorm:"uniqueIndex;size:32;not null" json:"username"`
	Password  string `gorm:"size:255;not null" json:"-"`
	Email     string `gorm:"uniqueIndex;size:64;not null" json:"email"`
	FullName  string `gorm:"size:128" json:"full_name"`
	AvatarURL string `gorm:"size:512" json:"avatar_url"`
	// avatar 在存储桶中的路径，替换头像时用于删除旧文件
	AvatarPath string    `gorm:"size:255" json:"-"`
	UserType   string    `gorm:"size:16;not null;default:'user'" json:"user_type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (u *User) IsBrand() bool { return u.UserType == UserTypeBrand }

func (u *User) IsAdmin() bool { return u.UserType == UserTypeAdmin }
