package pkg

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // 为空时使用 Username
}

// Mailer 便于测试替换
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPMailer{dialer: d, from: from}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	if m.dialer.Host == "" {
		return errors.New("smtp host not configured")
	}
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, "Crowd Conscious")
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)
	return m.dialer.DialAndSend(msg)
}

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "code"}}<p>Hello,</p>
<p>Your {{.Purpose}} code is <b style="font-size:18px;">{{.Code}}</b>.</p>
<p>It expires in {{.Minutes}} minutes. Do not share it with anyone.</p>{{end}}
{{define "receipt"}}<p>Thank you for sponsoring <b>{{.Title}}</b>.</p>
<p>Amount: {{.Amount}} {{.Currency}}<br/>Platform fee: {{.Fee}} {{.Currency}}<br/>Delivered to the community: {{.Net}} {{.Currency}}</p>{{end}}
`))

func renderMail(name string, data any) string {
	var buf bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		panic(err)
	}
	return buf.String()
}

// CodeMailHTML 验证码邮件正文
func CodeMailHTML(purpose, code string, ttl time.Duration) string {
	return renderMail("code", map[string]any{
		"Purpose": purpose,
		"Code":    code,
		"Minutes": int(ttl.Minutes()),
	})
}

// ReceiptMailHTML 赞助到账回执，金额单位为分
func ReceiptMailHTML(contentTitle string, amount, fee, net int64, currency string) string {
	return renderMail("receipt", map[string]any{
		"Title":    contentTitle,
		"Amount":   FormatCents(amount),
		"Fee":      FormatCents(fee),
		"Net":      FormatCents(net),
		"Currency": currency,
	})
}

// FormatCents 1234 -> "12.34"
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
