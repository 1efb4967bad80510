package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Crowd_Conscious/internal/logger"
	"Crowd_Conscious/internal/middleware"
	"Crowd_Conscious/internal/pkg"
)

// Response 统一响应体
type Response struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: "ok", Msg: "ok", Data: data})
}

// fail internal 错误只记日志，不把底层原因返回给客户端
func fail(c *gin.Context, err error) {
	ae := pkg.AsAppError(err)
	if ae.Status >= http.StatusInternalServerError {
		logger.L.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(ae.Status, Response{Code: ae.Code, Msg: ae.Msg})
}

func badRequest(c *gin.Context, msg string) {
	fail(c, pkg.ErrInvalidParams.WithMsg(msg))
}

func currentUser(c *gin.Context) uint64 {
	return c.GetUint64(middleware.ContextUserIDKey)
}

// pathID 解析路径中的正整数 id
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) int {
	n, _ := strconv.Atoi(c.Query(name))
	return n
}

// readUpload 读取 multipart 的 file 字段，超过 max 字节返回 too_large
func readUpload(c *gin.Context, max int64) ([]byte, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, pkg.ErrInvalidParams.WithMsg("file field required")
	}
	if max > 0 && fh.Size > max {
		return nil, pkg.ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, pkg.ErrInvalidParams.Wrap(err)
	}
	defer f.Close()
	limit := max
	if limit <= 0 {
		limit = 32 << 20
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, pkg.ErrInvalidParams.Wrap(err)
	}
	if int64(len(data)) > limit {
		return nil, pkg.ErrTooLarge
	}
	return data, nil
}
