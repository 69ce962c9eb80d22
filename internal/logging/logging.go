// Package logging настраивает структурированный логгер zap.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options содержит настройки логгера.
type Options struct {
	// Level - debug, info, warn, error.
	Level string

	// Format - console или json.
	Format string

	// File - путь к файлу логов с ротацией (пусто = не писать в файл).
	File string

	// MaxSizeMB - размер файла до ротации.
	MaxSizeMB int

	// MaxBackups - количество старых файлов.
	MaxBackups int

	// MaxAgeDays - срок хранения старых файлов.
	MaxAgeDays int

	// Writer - основной вывод (по умолчанию os.Stderr).
	Writer io.Writer
}

// New создаёт логгер по настройкам.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEnc zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "console":
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(consoleCfg)
	case "json":
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("неизвестный формат логов: %s (доступны: console, json)", opts.Format)
	}

	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.AddSync(writer), level),
	}

	// Файл всегда пишется в JSON, чтобы его можно было разбирать
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 30),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// ParseLevel разбирает уровень логирования.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return level, fmt.Errorf("неизвестный уровень логов %q: %w", s, err)
	}
	return level, nil
}

// Component возвращает дочерний логгер компонента.
func Component(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return l.With(zap.String("component", name))
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
