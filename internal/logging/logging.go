// Package logging builds the process zap logger.
package logging

import (
	"errors"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures logger construction.
type Config struct {
	// Level is one of debug|info|warn|error.
	Level string
	// Format is auto|json|console. auto picks console when Output is a terminal.
	Format string
	// File enables a rotating JSON file sink next to Output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New builds a logger writing to Output and, when configured, a rotating file.
// The returned close function flushes and releases the file sink.
func New(cfg Config) (*zap.Logger, func() error) {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	level := zap.NewAtomicLevelAt(Level(cfg.Level))

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEncoder zapcore.Encoder
	if useConsole(cfg.Format, output) {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(consoleConfig)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(output)), level),
	}

	closeFn := func() error { return nil }
	if strings.TrimSpace(cfg.File) != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotating), level))
		closeFn = rotating.Close
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger, func() error {
		syncErr := logger.Sync()
		if IgnorableSyncError(syncErr) {
			syncErr = nil
		}
		return errors.Join(syncErr, closeFn())
	}
}

// Level maps a configured level name to a zap level. Unknown names map to info.
func Level(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IgnorableSyncError reports whether a Sync error only means the sink is a
// terminal or pipe that cannot be fsynced.
func IgnorableSyncError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}

func useConsole(format string, output io.Writer) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console":
		return true
	case "json":
		return false
	}
	file, ok := output.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
