// Package obslog initializes the process-wide zap logger. Console and file
// sinks can run at the same time.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger *zap.Logger = zap.NewNop()

// L returns the global logger.
func L() *zap.Logger { return globalLogger }

// Settings selects the sinks and encoding of the global logger.
type Settings struct {
	Level      string
	Format     string // console or json
	Console    bool
	File       string // empty disables the file sink
	ShowCaller bool
}

// FromEnv reads LOG_* variables into Settings.
func FromEnv() Settings {
	s := Settings{
		Level:      envOr("LOG_LEVEL", "info"),
		Format:     strings.ToLower(strings.TrimSpace(envOr("LOG_FORMAT", "console"))),
		Console:    envBool("LOG_TO_CONSOLE", true),
		ShowCaller: envBool("LOG_CALLER", false),
	}
	if envBool("LOG_TO_FILE", false) {
		s.File = strings.TrimSpace(envOr("LOG_FILE", filepath.Join("logs", "bot.log")))
	}
	return s
}

// InitFromEnv builds and installs the global logger from the environment.
func InitFromEnv() error {
	return Init(FromEnv())
}

// Init builds and installs the global logger.
func Init(s Settings) error {
	level := parseLevel(s.Level)

	var cores []zapcore.Core
	if s.Console {
		cores = append(cores, zapcore.NewCore(encoderFor(s.Format), zapcore.AddSync(os.Stdout), level))
	}
	if s.File != "" {
		sink, err := openLogFile(s.File)
		if err != nil {
			return err
		}
		cores = append(cores, zapcore.NewCore(encoderFor(s.Format), sink, level))
	}
	if len(cores) == 0 {
		// a logger with no sinks helps nobody
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), level))
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if s.ShowCaller {
		opts = append(opts, zap.AddCaller())
	}
	globalLogger = zap.New(zapcore.NewTee(cores...), opts...)
	return nil
}

func openLogFile(path string) (zapcore.WriteSyncer, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.AddSync(f), nil
}

func encoderFor(format string) zapcore.Encoder {
	if format == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " | "
	return zapcore.NewConsoleEncoder(cfg)
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}
