// Package storage 图片存储：头像、社区与内容配图
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"Crowd_Conscious/internal/config"
)

var ErrUnsupportedType = errors.New("unsupported image type")

// Store 对象存储后端
type Store interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	PublicURL(bucket, path string) string
	Delete(ctx context.Context, bucket, path string) error
}

var imageExt = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// Sniff 按内容判断图片类型，不信任客户端声明的 Content-Type
func Sniff(data []byte) (contentType, ext string, err error) {
	contentType = http.DetectContentType(data)
	ext, ok := imageExt[contentType]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return contentType, ext, nil
}

// ObjectPath <userID>/<unix-ms>.<ext>
func ObjectPath(userID uint64, ext string, now time.Time) string {
	return fmt.Sprintf("%d/%d.%s", userID, now.UnixMilli(), ext)
}

// New 按配置选择后端
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "supabase":
		if cfg.SupabaseURL == "" {
			return nil, errors.New("supabase url required")
		}
		return NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, nil), nil
	case "gcs":
		return NewGCSStore(ctx, cfg.GCSCredentials)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
