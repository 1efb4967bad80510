package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/certificate"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/mysql"
)

type CertificateService struct {
	repo    *mysql.CorporateRepository
	users   *mysql.UserRepository
	raster  certificate.Rasterizer
	baseURL string
	log     *zap.Logger
}

// NewCertificateService raster 为 nil 时导出 HTML
func NewCertificateService(db *gorm.DB, raster certificate.Rasterizer, baseURL string, log *zap.Logger) *CertificateService {
	return &CertificateService{
		repo:    &mysql.CorporateRepository{DB: db},
		users:   &mysql.UserRepository{DB: db},
		raster:  raster,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// Rendered 导出的证书文件
type Rendered struct {
	Data        []byte
	ContentType string
	Filename    string
}

func (s *CertificateService) data(cert *model.Certification) (*certificate.Data, *model.CourseEnrollment, error) {
	user, err := s.users.FindByID(cert.UserID)
	if err != nil {
		return nil, nil, err
	}
	course, err := s.repo.FindCourse(cert.CourseID)
	if err != nil {
		return nil, nil, err
	}
	enrollment, err := s.repo.FindEnrollment(cert.CourseID, cert.UserID)
	if err != nil {
		return nil, nil, err
	}
	company := ""
	if a, err := s.repo.FindAccount(enrollment.CorporateAccountID); err == nil {
		company = a.CompanyName
	}
	name := user.FullName
	if name == "" {
		name = user.Username
	}
	d := &certificate.Data{
		EmployeeName:     name,
		CourseTitle:      course.Title,
		Company:          company,
		IssuedAt:         cert.IssuedAt,
		VerificationCode: cert.VerificationCode,
		XPEarned:         cert.XPEarned,
	}
	if s.baseURL != "" {
		d.VerifyURL = s.baseURL + "/api/certificates/verify/" + cert.VerificationCode
	}
	return d, enrollment, nil
}

// Image 本人、企业管理员或平台管理员可导出
func (s *CertificateService) Image(ctx context.Context, actorID, certID uint64) (*Rendered, error) {
	cert, err := s.repo.FindCertification(certID)
	if err != nil {
		return nil, dbErr(err)
	}
	d, enrollment, err := s.data(cert)
	if err != nil {
		return nil, dbErr(err)
	}
	if actorID != cert.UserID {
		if err := s.canView(actorID, enrollment.CorporateAccountID); err != nil {
			return nil, err
		}
	}
	html, err := certificate.RenderHTML(*d)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	base := "certificate-" + cert.VerificationCode
	if s.raster == nil {
		return &Rendered{Data: html, ContentType: "text/html; charset=utf-8", Filename: base + ".html"}, nil
	}
	png, err := s.raster.PNG(ctx, html)
	if err != nil {
		s.log.Error("rasterise certificate failed", zap.Uint64("certificate_id", certID), zap.Error(err))
		return nil, pkg.ErrInternal.WithMsg("render certificate failed").Wrap(err)
	}
	return &Rendered{Data: png, ContentType: "image/png", Filename: base + ".png"}, nil
}

func (s *CertificateService) canView(actorID, accountID uint64) error {
	if a, err := s.repo.FindAccount(accountID); err == nil && a.AdminID == actorID {
		return nil
	}
	u, err := s.users.FindByID(actorID)
	if err != nil {
		return dbErr(err)
	}
	if !u.IsAdmin() {
		return pkg.ErrForbidden
	}
	return nil
}

// Verification 公开核验结果
type Verification struct {
	Valid        bool      `json:"valid"`
	Code         string    `json:"code"`
	EmployeeName string    `json:"employee_name"`
	CourseTitle  string    `json:"course_title"`
	Company      string    `json:"company"`
	IssuedAt     time.Time `json:"issued_at"`
	XPEarned     int64     `json:"xp_earned"`
}

func (s *CertificateService) Verify(code string) (*Verification, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	cert, err := s.repo.FindCertificationByCode(code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Verification{Valid: false, Code: code}, nil
	}
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	d, _, err := s.data(cert)
	if err != nil {
		return nil, dbErr(err)
	}
	return &Verification{
		Valid:        true,
		Code:         cert.VerificationCode,
		EmployeeName: d.EmployeeName,
		CourseTitle:  d.CourseTitle,
		Company:      d.Company,
		IssuedAt:     cert.IssuedAt,
		XPEarned:     cert.XPEarned,
	}, nil
}
