// Package certificate 培训证书：HTML 模板与 PNG 导出
package certificate

import (
	"bytes"
	"context"
	"html/template"
	"time"
)

// Data 证书展示内容
type Data struct {
	EmployeeName     string
	CourseTitle      string
	Company          string
	IssuedAt         time.Time
	VerificationCode string
	XPEarned         int64
	VerifyURL        string
}

// ElementID 截图目标节点
const ElementID = "certificate"

var tmpl = template.Must(template.New("certificate").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.UTC().Format("January 2, 2006") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body{margin:0;background:#f4f7f2;font-family:Georgia,serif}
#certificate{width:1100px;height:780px;box-sizing:border-box;padding:64px;background:#fff;border:14px solid #2f7d4f;text-align:center}
h1{font-size:46px;color:#2f7d4f;margin:24px 0 8px}
.name{font-size:40px;margin:36px 0 12px;border-bottom:2px solid #ccc;display:inline-block;padding:0 48px 8px}
.course{font-size:28px;font-style:italic}
.meta{margin-top:64px;font-size:16px;color:#555}
.code{font-family:monospace;font-size:18px;color:#222}
</style>
</head>
<body>
<div id="certificate">
  <div>Crowd Conscious</div>
  <h1>Certificate of Completion</h1>
  <div>This certifies that</div>
  <div class="name">{{.EmployeeName}}</div>
  <div>has completed</div>
  <div class="course">{{.CourseTitle}}</div>
  {{if .Company}}<div>on behalf of {{.Company}}</div>{{end}}
  <div class="meta">
    <div>Issued {{date .IssuedAt}} &middot; {{.XPEarned}} XP earned</div>
    <div class="code">{{.VerificationCode}}</div>
    {{if .VerifyURL}}<div>Verify at {{.VerifyURL}}</div>{{end}}
  </div>
</div>
</body>
</html>
`))

func RenderHTML(d Data) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Rasterizer 把证书 HTML 转成 PNG
type Rasterizer interface {
	PNG(ctx context.Context, html []byte) ([]byte, error)
	Close() error
}
