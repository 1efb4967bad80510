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
	"Crowd_Conscious/internal/repository/mysql"
)

// 各档位默认员工上限
var tierLimits = map[string]int{
	"starter":    50,
	"growth":     200,
	"enterprise": 1000,
}

type CorporateService struct {
	db     *gorm.DB
	repo   *mysql.CorporateRepository
	users  *mysql.UserRepository
	xp     *GamificationService
	policy *config.Policy
	log    *zap.Logger
	now    func() time.Time
}

func NewCorporateService(db *gorm.DB, xp *GamificationService, policy *config.Policy, log *zap.Logger) *CorporateService {
	return &CorporateService{
		db:     db,
		repo:   &mysql.CorporateRepository{DB: db},
		users:  &mysql.UserRepository{DB: db},
		xp:     xp,
		policy: policy,
		log:    log,
		now:    time.Now,
	}
}

type CreateAccountInput struct {
	CompanyName   string
	ProgramTier   string
	EmployeeLimit int
	Investment    int64
}

// CreateAccount 创建者成为企业管理员
func (s *CorporateService) CreateAccount(actorID uint64, in CreateAccountInput) (*model.CorporateAccount, error) {
	name := strings.TrimSpace(in.CompanyName)
	if name == "" {
		return nil, pkg.ErrInvalidParams.WithMsg("company name required")
	}
	tier := in.ProgramTier
	if tier == "" {
		tier = "starter"
	}
	limit, ok := tierLimits[tier]
	if !ok {
		return nil, pkg.ErrInvalidParams.WithMsg("unknown program tier")
	}
	if in.EmployeeLimit < 0 || in.Investment < 0 {
		return nil, pkg.ErrInvalidParams.WithMsg("limit and investment must not be negative")
	}
	if in.EmployeeLimit > 0 {
		limit = in.EmployeeLimit
	}
	a := &model.CorporateAccount{
		CompanyName:   name,
		AdminID:       actorID,
		ProgramTier:   tier,
		EmployeeLimit: limit,
		Investment:    in.Investment,
	}
	if err := s.repo.CreateAccount(a); err != nil {
		if isDuplicate(err) {
			return nil, pkg.ErrConflict.WithMsg("company already registered")
		}
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return a, nil
}

// accountAdmin 企业管理员或平台管理员
func (s *CorporateService) accountAdmin(actorID, accountID uint64) (*model.CorporateAccount, error) {
	a, err := s.repo.FindAccount(accountID)
	if err != nil {
		return nil, dbErr(err)
	}
	if a.AdminID == actorID {
		return a, nil
	}
	if err := s.platformAdmin(actorID); err != nil {
		return nil, pkg.ErrForbidden.WithMsg("account admin required")
	}
	return a, nil
}

func (s *CorporateService) platformAdmin(actorID uint64) error {
	u, err := s.users.FindByID(actorID)
	if err != nil {
		return dbErr(err)
	}
	if !u.IsAdmin() {
		return pkg.ErrForbidden.WithMsg("platform admin required")
	}
	return nil
}

type ModuleInput struct {
	Title    string
	Position int
	XPReward int64
}

type CreateCourseInput struct {
	Title       string
	Description string
	Modules     []ModuleInput
}

// CreateCourse 平台管理员维护课程目录
func (s *CorporateService) CreateCourse(actorID uint64, in CreateCourseInput) (*model.Course, error) {
	if err := s.platformAdmin(actorID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, pkg.ErrInvalidParams.WithMsg("course title required")
	}
	c := &model.Course{Title: title, Description: in.Description}
	for i, m := range in.Modules {
		mod, err := buildModule(m, i)
		if err != nil {
			return nil, err
		}
		c.Modules = append(c.Modules, *mod)
	}
	if err := s.repo.CreateCourse(c); err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return c, nil
}

func buildModule(in ModuleInput, fallbackPos int) (*model.CourseModule, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, pkg.ErrInvalidParams.WithMsg("module title required")
	}
	if in.XPReward < 0 {
		return nil, pkg.ErrInvalidParams.WithMsg("xp reward must not be negative")
	}
	pos := in.Position
	if pos <= 0 {
		pos = fallbackPos + 1
	}
	return &model.CourseModule{Title: title, Position: pos, XPReward: in.XPReward}, nil
}

func (s *CorporateService) AddModule(actorID, courseID uint64, in ModuleInput) (*model.CourseModule, error) {
	if err := s.platformAdmin(actorID); err != nil {
		return nil, err
	}
	n, err := s.repo.CountModules(courseID)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	if _, err := s.repo.FindCourse(courseID); err != nil {
		return nil, dbErr(err)
	}
	m, err := buildModule(in, int(n))
	if err != nil {
		return nil, err
	}
	m.CourseID = courseID
	if err := s.repo.AddModule(m); err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return m, nil
}

func (s *CorporateService) Course(courseID uint64) (*model.Course, error) {
	c, err := s.repo.FindCourse(courseID)
	if err != nil {
		return nil, dbErr(err)
	}
	return c, nil
}

type EnrollInput struct {
	AccountID uint64
	CourseID  uint64
	UserID    uint64
}

// Enroll 企业管理员为员工报名；在账户行锁内检查人数上限
func (s *CorporateService) Enroll(ctx context.Context, actorID uint64, in EnrollInput) (*model.CourseEnrollment, bool, error) {
	a, err := s.accountAdmin(actorID, in.AccountID)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.repo.FindCourse(in.CourseID); err != nil {
		return nil, false, dbErr(err)
	}
	if _, err := s.users.FindByID(in.UserID); err != nil {
		return nil, false, dbErr(err)
	}
	e := &model.CourseEnrollment{
		CorporateAccountID: a.ID,
		CourseID:           in.CourseID,
		UserID:             in.UserID,
		Status:             model.EnrollmentNotStarted,
	}
	var created bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &mysql.CorporateRepository{DB: tx}
		locked, err := repo.LockAccount(a.ID)
		if err != nil {
			return err
		}
		known, err := repo.HasEmployee(a.ID, in.UserID)
		if err != nil {
			return err
		}
		if !known {
			n, err := repo.CountEmployees(a.ID)
			if err != nil {
				return err
			}
			if n >= int64(locked.EmployeeLimit) {
				return pkg.ErrEmployeeLimit
			}
		}
		created, err = repo.Enroll(e)
		return err
	})
	if err != nil {
		var ae *pkg.AppError
		if errors.As(err, &ae) {
			return nil, false, ae
		}
		return nil, false, pkg.ErrInternal.Wrap(err)
	}
	if !created {
		existing, err := s.repo.FindEnrollment(in.CourseID, in.UserID)
		if err != nil {
			return nil, false, dbErr(err)
		}
		return existing, false, nil
	}
	return e, true, nil
}

// ProgressResult 一次模块完成的结果
type ProgressResult struct {
	Enrollment    *model.CourseEnrollment `json:"enrollment"`
	Counted       bool                    `json:"counted"`
	Award         *AwardResult            `json:"award,omitempty"`
	Certification *model.Certification    `json:"certification,omitempty"`
}

func (s *CorporateService) moduleXP(m *model.CourseModule) int64 {
	if m.XPReward > 0 {
		return m.XPReward
	}
	return s.policy.Reward(config.ActionModuleCompleted)
}

// CompleteModule 员工完成模块：进度与状态由完成数推导，全部完成时发证书
func (s *CorporateService) CompleteModule(ctx context.Context, userID, moduleID uint64) (*ProgressResult, error) {
	mod, err := s.repo.FindModule(moduleID)
	if err != nil {
		return nil, dbErr(err)
	}
	course, err := s.repo.FindCourse(mod.CourseID)
	if err != nil {
		return nil, dbErr(err)
	}
	enrollment, err := s.repo.FindEnrollment(mod.CourseID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkg.ErrForbidden.WithMsg("not enrolled in this course")
	}
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}

	out := &ProgressResult{}
	issued := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &mysql.CorporateRepository{DB: tx}
		e, err := repo.LockEnrollment(enrollment.ID)
		if err != nil {
			return err
		}
		out.Enrollment = e
		inserted, err := repo.InsertCompletion(e.ID, mod.ID)
		if err != nil || !inserted {
			return err
		}
		out.Counted = true
		done, err := repo.CountCompletions(e.ID)
		if err != nil {
			return err
		}
		total := int64(len(course.Modules))
		progress := 100.0
		if total > 0 && done < total {
			progress = float64(done) * 100 / float64(total)
		}
		wasCompleted := e.Status == model.EnrollmentCompleted
		e.CompletedModules = int(done)
		// 已结业的报名保持结业状态，后加的模块只记完成数与 XP
		if !wasCompleted {
			e.Progress = progress
			e.Status = model.EnrollmentStatusFor(progress)
			if e.Status == model.EnrollmentCompleted && e.CompletedAt == nil {
				now := s.now()
				e.CompletedAt = &now
			}
		}
		if err := repo.UpdateProgress(e); err != nil {
			return err
		}

		out.Award, err = s.xp.AwardPointsTx(tx, userID, config.ActionModuleCompleted, s.moduleXP(mod), mod.ID)
		if err != nil {
			return err
		}
		if wasCompleted {
			cert, err := repo.FindCertificationByEnrollment(e.ID)
			if err == nil {
				out.Certification = cert
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return nil
		}
		if e.Status != model.EnrollmentCompleted {
			return nil
		}
		bonus, err := s.xp.AwardTx(tx, userID, config.ActionCourseCompleted, course.ID)
		if err != nil {
			return err
		}
		out.Award.merge(bonus)

		earned, err := repo.SumModuleXP(course.ID, s.policy.Reward(config.ActionModuleCompleted))
		if err != nil {
			return err
		}
		earned += s.policy.Reward(config.ActionCourseCompleted)
		cert := &model.Certification{
			EnrollmentID:     e.ID,
			UserID:           userID,
			CourseID:         course.ID,
			VerificationCode: pkg.CertificateCode(),
			XPEarned:         earned,
			IssuedAt:         s.now(),
		}
		if err := repo.CreateCertification(cert); err != nil {
			return err
		}
		out.Certification = cert
		issued = true
		return nil
	})
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	s.xp.AfterCommit(ctx, out.Award)
	if issued {
		s.log.Info("certificate issued",
			zap.Uint64("user_id", userID),
			zap.Uint64("course_id", course.ID),
			zap.String("code", out.Certification.VerificationCode))
	}
	return out, nil
}

func (s *CorporateService) MyEnrollments(userID uint64) ([]model.CourseEnrollment, error) {
	list, err := s.repo.ListEnrollmentsByUser(userID)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return list, nil
}

// Dashboard 企业看板：ROI 以货币单位计算，投资额存储为分
type Dashboard struct {
	Account     *model.CorporateAccount  `json:"account"`
	Stats       *mysql.AccountStats      `json:"stats"`
	Projection  calc.Projection          `json:"projection"`
	Enrollments []model.CourseEnrollment `json:"enrollments"`
}

func (s *CorporateService) Dashboard(actorID, accountID uint64) (*Dashboard, error) {
	a, err := s.accountAdmin(actorID, accountID)
	if err != nil {
		return nil, err
	}
	st, err := s.repo.Stats(a.ID)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	list, err := s.repo.ListEnrollments(a.ID)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return &Dashboard{
		Account:     a,
		Stats:       st,
		Projection:  calc.Project(int(st.Completed), st.AvgProgress, float64(a.Investment)/100, s.policy.ESG),
		Enrollments: list,
	}, nil
}
