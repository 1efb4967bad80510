package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/storage"
)

// Uploader 图片上传：校验大小与类型后写入存储桶
type Uploader struct {
	store    storage.Store
	maxBytes int64
	log      *zap.Logger
	now      func() time.Time
}

func NewUploader(store storage.Store, maxBytes int64, log *zap.Logger) *Uploader {
	return &Uploader{store: store, maxBytes: maxBytes, log: log, now: time.Now}
}

// Uploaded 上传结果，Path 用于之后删除
type Uploaded struct {
	URL  string `json:"url"`
	Path string `json:"-"`
}

func (u *Uploader) Put(ctx context.Context, bucket string, userID uint64, data []byte) (*Uploaded, error) {
	if len(data) == 0 {
		return nil, pkg.ErrInvalidParams.WithMsg("empty file")
	}
	if u.maxBytes > 0 && int64(len(data)) > u.maxBytes {
		return nil, pkg.ErrTooLarge
	}
	contentType, ext, err := storage.Sniff(data)
	if err != nil {
		return nil, pkg.ErrUnsupportedMedia.Wrap(err)
	}
	path := storage.ObjectPath(userID, ext, u.now())
	if err := u.store.Upload(ctx, bucket, path, data, contentType); err != nil {
		u.log.Error("upload failed", zap.String("bucket", bucket), zap.String("path", path), zap.Error(err))
		return nil, pkg.ErrInternal.WithMsg("upload failed").Wrap(err)
	}
	return &Uploaded{URL: u.store.PublicURL(bucket, path), Path: path}, nil
}

// Discard 删除被替换的旧文件，失败只记日志
func (u *Uploader) Discard(ctx context.Context, bucket, path string) {
	if path == "" {
		return
	}
	if err := u.store.Delete(ctx, bucket, path); err != nil {
		u.log.Warn("delete superseded file failed", zap.String("bucket", bucket), zap.String("path", path), zap.Error(err))
	}
}
