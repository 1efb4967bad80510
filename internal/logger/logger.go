package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L 全局 logger，main 中初始化；未初始化时为 Nop，方便测试
var L = zap.NewNop()

// New debug 模式输出彩色控制台日志，其余为 JSON
func New(mode string) (*zap.Logger, error) {
	if mode == "debug" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Init 初始化全局 logger 并替换 zap 全局实例
func Init(mode string) error {
	l, err := New(mode)
	if err != nil {
		return err
	}
	L = l
	zap.ReplaceGlobals(l)
	return nil
}

func Sync() {
	_ = L.Sync()
}
