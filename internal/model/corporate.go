package model

import "time"

const (
	EnrollmentNotStarted = "not_started"
	EnrollmentInProgress = "in_progress"
	EnrollmentCompleted  = "completed"
)

// CorporateAccount B2B 培训租户
type CorporateAccount struct {
	ID            uint64    `gorm:"primaryKey" json:"id"`
	CompanyName   string    `gorm:"uniqueIndex;size:128;not null" json:"company_name"`
	AdminID       uint64    `gorm:"not null;index" json:"admin_id"`
	ProgramTier   string    `gorm:"size:32;not null;default:'starter'" json:"program_tier"`
	EmployeeLimit int       `gorm:"not null;default:50" json:"employee_limit"`
	Investment    int64     `gorm:"not null;default:0" json:"investment"` // 分
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Course struct {
	ID          uint64         `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"size:200;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Modules     []CourseModule `gorm:"foreignKey:CourseID" json:"modules,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type CourseModule struct {
	ID       uint64 `gorm:"primaryKey" json:"id"`
	CourseID uint64 `gorm:"not null;index" json:"course_id"`
	Title    string `gorm:"size:200;not null" json:"title"`
	Position int    `gorm:"not null;default:0" json:"position"`
	XPReward int64  `gorm:"not null;default:0" json:"xp_reward"`
}

type CourseEnrollment struct {
	ID                 uint64     `gorm:"primaryKey" json:"id"`
	CorporateAccountID uint64     `gorm:"not null;index" json:"corporate_account_id"`
	CourseID           uint64     `gorm:"not null;uniqueIndex:uk_enroll_user_course" json:"course_id"`
	UserID             uint64     `gorm:"not null;uniqueIndex:uk_enroll_user_course" json:"user_id"`
	Status             string     `gorm:"size:16;not null;default:'not_started'" json:"status"`
	Progress           float64    `gorm:"not null;default:0" json:"progress"` // 0-100
	CompletedModules   int        `gorm:"not null;default:0" json:"completed_modules"`
	CompletedAt        *time.Time `json:"completed_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ModuleCompletion 模块完成记录，用于幂等计算进度
type ModuleCompletion struct {
	ID           uint64 `gorm:"primaryKey"`
	EnrollmentID uint64 `gorm:"not null;uniqueIndex:uk_enroll_module"`
	ModuleID     uint64 `gorm:"not null;uniqueIndex:uk_enroll_module"`
	CreatedAt    time.Time
}

type Certification struct {
	ID               uint64    `gorm:"primaryKey" json:"id"`
	EnrollmentID     uint64    `gorm:"not null;uniqueIndex" json:"enrollment_id"`
	UserID           uint64    `gorm:"not null;index" json:"user_id"`
	CourseID         uint64    `gorm:"not null" json:"course_id"`
	VerificationCode string    `gorm:"size:64;not null;uniqueIndex" json:"verification_code"`
	XPEarned         int64     `gorm:"not null;default:0" json:"xp_earned"`
	IssuedAt         time.Time `json:"issued_at"`
}

// EnrollmentStatusFor 状态由进度推导
func EnrollmentStatusFor(progress float64) string {
	switch {
	case progress >= 100:
		return EnrollmentCompleted
	case progress > 0:
		return EnrollmentInProgress
	}
	return EnrollmentNotStarted
}
