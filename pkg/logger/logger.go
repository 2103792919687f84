package logger

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls log output. When File is empty everything goes to stdout.
type LogConfig struct {
	Level      string `env:"LOG_LEVEL"`
	File       string `env:"LOG_FILE"`
	MaxSize    int    `env:"LOG_MAX_SIZE"` // megabytes
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
	MaxAge     int    `env:"LOG_MAX_AGE"` // days
	Compress   bool   `env:"LOG_COMPRESS"`
}

// Lg is the global logger instance.
var Lg *zap.Logger

// Init builds the global logger. In production mode output is JSON with file
// rotation (when a file is configured); otherwise a colored console encoder.
func Init(cfg *LogConfig, mode string) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if mode == "production" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSize, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 7),
			MaxAge:     orDefault(cfg.MaxAge, 30),
			Compress:   cfg.Compress,
		})
	} else {
		sink = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, level)
	Lg = zap.New(core, zap.AddCaller())
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func Debug(msg string, fields ...zap.Field) { get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { get().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { get().Fatal(msg, fields...) }

// Sync flushes buffered log entries.
func Sync() {
	if Lg != nil {
		_ = Lg.Sync()
	}
}

// get returns the global logger, falling back to a no-op logger so packages
// can log before Init (mostly in tests).
func get() *zap.Logger {
	if Lg == nil {
		Lg = zap.NewNop()
	}
	return Lg
}
