package mysql

import (
	"time"

	"Crowd_Conscious/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CorporateRepository struct {
	DB *gorm.DB
}

// AccountStats 企业看板聚合
type AccountStats struct {
	Employees   int64   `json:"employees"`
	Enrollments int64   `json:"enrollments"`
	Completed   int64   `json:"completed"`
	AvgProgress float64 `json:"avg_progress"`
}

// ---------- 企业账户 ----------

func (r *CorporateRepository) CreateAccount(a *model.CorporateAccount) error {
	return r.DB.Create(a).Error
}

func (r *CorporateRepository) FindAccount(id uint64) (*model.CorporateAccount, error) {
	var a model.CorporateAccount
	err := r.DB.First(&a, id).Error
	return &a, err
}

// LockAccount 报名时锁账户行，串行化人数上限判断
func (r *CorporateRepository) LockAccount(id uint64) (*model.CorporateAccount, error) {
	var a model.CorporateAccount
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, id).Error
	return &a, err
}

// CountEmployees 账户下已报名的不同员工数
func (r *CorporateRepository) CountEmployees(accountID uint64) (int64, error) {
	var n int64
	err := r.DB.Model(&model.CourseEnrollment{}).
		Where("corporate_account_id = ?", accountID).
		Distinct("user_id").Count(&n).Error
	return n, err
}

func (r *CorporateRepository) HasEmployee(accountID, userID uint64) (bool, error) {
	var n int64
	err := r.DB.Model(&model.CourseEnrollment{}).
		Where("corporate_account_id = ? AND user_id = ?", accountID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *CorporateRepository) Stats(accountID uint64) (*AccountStats, error) {
	var s AccountStats
	err := r.DB.Model(&model.CourseEnrollment{}).
		Select(`COUNT(DISTINCT user_id) AS employees, COUNT(*) AS enrollments,
			COUNT(DISTINCT CASE WHEN status = ? THEN user_id END) AS completed,
			COALESCE(AVG(progress), 0) AS avg_progress`, model.EnrollmentCompleted).
		Where("corporate_account_id = ?", accountID).
		Scan(&s).Error
	return &s, err
}

// ---------- 课程 ----------

// CreateCourse 连同模块一起写入
func (r *CorporateRepository) CreateCourse(c *model.Course) error {
	return r.DB.Create(c).Error
}

// FindCourse 模块按 position 排序
func (r *CorporateRepository) FindCourse(id uint64) (*model.Course, error) {
	var c model.Course
	err := r.DB.Preload("Modules", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC, id ASC")
	}).First(&c, id).Error
	return &c, err
}

func (r *CorporateRepository) AddModule(m *model.CourseModule) error {
	return r.DB.Create(m).Error
}

func (r *CorporateRepository) FindModule(id uint64) (*model.CourseModule, error) {
	var m model.CourseModule
	err := r.DB.First(&m, id).Error
	return &m, err
}

func (r *CorporateRepository) CountModules(courseID uint64) (int64, error) {
	var n int64
	err := r.DB.Model(&model.CourseModule{}).Where("course_id = ?", courseID).Count(&n).Error
	return n, err
}

// SumModuleXP 课程全部模块的 XP 之和，未设置 XP 的模块按 fallback 计
func (r *CorporateRepository) SumModuleXP(courseID uint64, fallback int64) (int64, error) {
	var total int64
	err := r.DB.Model(&model.CourseModule{}).
		Select("COALESCE(SUM(CASE WHEN xp_reward > 0 THEN xp_reward ELSE ? END), 0)", fallback).
		Where("course_id = ?", courseID).
		Scan(&total).Error
	return total, err
}

// ---------- 报名与进度 ----------

// Enroll 幂等报名，已报名返回 false
func (r *CorporateRepository) Enroll(e *model.CourseEnrollment) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(e)
	return res.RowsAffected > 0, res.Error
}

func (r *CorporateRepository) FindEnrollment(courseID, userID uint64) (*model.CourseEnrollment, error) {
	var e model.CourseEnrollment
	err := r.DB.Where("course_id = ? AND user_id = ?", courseID, userID).First(&e).Error
	return &e, err
}

func (r *CorporateRepository) LockEnrollment(id uint64) (*model.CourseEnrollment, error) {
	var e model.CourseEnrollment
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&e, id).Error
	return &e, err
}

func (r *CorporateRepository) ListEnrollments(accountID uint64) ([]model.CourseEnrollment, error) {
	var list []model.CourseEnrollment
	err := r.DB.Where("corporate_account_id = ?", accountID).Order("id ASC").Find(&list).Error
	return list, err
}

// InsertCompletion 模块完成记录，重复提交返回 false
func (r *CorporateRepository) InsertCompletion(enrollmentID, moduleID uint64) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment_id"}, {Name: "module_id"}},
		DoNothing: true,
	}).Create(&model.ModuleCompletion{EnrollmentID: enrollmentID, ModuleID: moduleID})
	return res.RowsAffected > 0, res.Error
}

func (r *CorporateRepository) CountCompletions(enrollmentID uint64) (int64, error) {
	var n int64
	err := r.DB.Model(&model.ModuleCompletion{}).Where("enrollment_id = ?", enrollmentID).Count(&n).Error
	return n, err
}

func (r *CorporateRepository) UpdateProgress(e *model.CourseEnrollment) error {
	return r.DB.Model(&model.CourseEnrollment{}).Where("id = ?", e.ID).
		Updates(map[string]any{
			"progress":          e.Progress,
			"completed_modules": e.CompletedModules,
			"status":            e.Status,
			"completed_at":      e.CompletedAt,
		}).Error
}

// ---------- 证书 ----------

// CreateCertification 写证书与 certificate.issued 事件，需在事务内调用
func (r *CorporateRepository) CreateCertification(c *model.Certification) error {
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now()
	}
	if err := r.DB.Create(c).Error; err != nil {
		return err
	}
	return insertOutbox(r.DB, model.EventCertificateIssued, c.ID, map[string]any{
		"user_id":   c.UserID,
		"course_id": c.CourseID,
		"code":      c.VerificationCode,
	})
}

func (r *CorporateRepository) FindCertification(id uint64) (*model.Certification, error) {
	var c model.Certification
	err := r.DB.First(&c, id).Error
	return &c, err
}

func (r *CorporateRepository) FindCertificationByCode(code string) (*model.Certification, error) {
	var c model.Certification
	err := r.DB.Where("verification_code = ?", code).First(&c).Error
	return &c, err
}

func (r *CorporateRepository) FindCertificationByEnrollment(enrollmentID uint64) (*model.Certification, error) {
	var c model.Certification
	err := r.DB.Where("enrollment_id = ?", enrollmentID).First(&c).Error
	return &c, err
}

func (r *CorporateRepository) ListEnrollmentsByUser(userID uint64) ([]model.CourseEnrollment, error) {
	var list []model.CourseEnrollment
	err := r.DB.Where("user_id = ?", userID).Order("id DESC").Find(&list).Error
	return list, err
}
