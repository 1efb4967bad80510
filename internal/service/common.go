package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"Crowd_Conscious/internal/pkg"
)

// dbErr 记录不存在转为 not_found，其余为 internal
func dbErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkg.ErrNotFound.Wrap(err)
	}
	return pkg.ErrInternal.Wrap(err)
}

// isDuplicate 唯一键冲突；未开启 TranslateError 的驱动按错误文本判断
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// pageArgs 页码从 1 开始，每页最多 50 条
func pageArgs(page, size int) (offset, limit int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 50 {
		size = 20
	}
	return (page - 1) * size, size
}
