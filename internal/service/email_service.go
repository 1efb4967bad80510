package service

import (
	"context"

	"go.uber.org/zap"

	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/redis"
)

type EmailService struct {
	rds    *redis.EmailRepository
	mailer pkg.Mailer
	log    *zap.Logger
}

func NewEmailService(rds *redis.EmailRepository, mailer pkg.Mailer, log *zap.Logger) *EmailService {
	return &EmailService{rds: rds, mailer: mailer, log: log}
}

type codeMail struct {
	subject string
	purpose string
}

var codeMails = map[string]codeMail{
	redis.ScopeRegister: {subject: "Your Crowd Conscious verification code", purpose: "registration"},
	redis.ScopeReset:    {subject: "Reset your Crowd Conscious password", purpose: "password reset"},
}

// SendCode 先写 pending，邮件发出后再转为 confirmed
func (s *EmailService) SendCode(ctx context.Context, scope, email string) error {
	mail, ok := codeMails[scope]
	if !ok {
		return pkg.ErrInvalidParams.WithMsg("invalid scope")
	}
	code, err := pkg.NumericCode(6)
	if err != nil {
		return pkg.ErrInternal.Wrap(err)
	}
	if err := s.rds.SavePending(ctx, scope, email, code); err != nil {
		return pkg.ErrInternal.Wrap(err)
	}

	html := pkg.CodeMailHTML(mail.purpose, code, redis.DefaultEmailCodeTTL)
	if err := s.mailer.Send(email, mail.subject, html); err != nil {
		_ = s.rds.DeletePending(ctx, scope, email)
		s.log.Error("send code email failed", zap.String("scope", scope), zap.Error(err))
		return pkg.ErrInternal.WithMsg("failed to send email").Wrap(err)
	}

	if err := s.rds.Confirm(ctx, scope, email); err != nil {
		_ = s.rds.DeletePending(ctx, scope, email)
		return pkg.ErrInternal.Wrap(err)
	}
	return nil
}

// VerifyCode 校验成功后删除，验证码只能使用一次
func (s *EmailService) VerifyCode(ctx context.Context, scope, email, code string) (bool, error) {
	val, err := s.rds.GetConfirmed(ctx, scope, email)
	if err != nil {
		return false, nil
	}
	if val != code {
		return false, nil
	}
	if err := s.rds.DeleteConfirmed(ctx, scope, email); err != nil {
		return false, pkg.ErrInternal.Wrap(err)
	}
	return true, nil
}
