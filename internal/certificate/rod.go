package certificate

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodRasterizer 无头 Chrome 截图，浏览器在第一次使用时启动
type RodRasterizer struct {
	bin string

	mu      sync.Mutex
	browser *rod.Browser
}

func NewRodRasterizer(chromeBin string) *RodRasterizer {
	return &RodRasterizer{bin: chromeBin}
}

func (r *RodRasterizer) ensure() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}
	l := launcher.New().Headless(true)
	if r.bin != "" {
		l = l.Bin(r.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	r.browser = b
	return b, nil
}

func (r *RodRasterizer) PNG(ctx context.Context, html []byte) ([]byte, error) {
	b, err := r.ensure()
	if err != nil {
		return nil, err
	}
	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx)
	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	el, err := page.Element("#" + ElementID)
	if err != nil {
		return nil, fmt.Errorf("find certificate element: %w", err)
	}
	return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

func (r *RodRasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}
