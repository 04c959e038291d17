// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type (
	// Logger contains the config items for logger
	Logger struct {
		// Stdout is true then the output needs to goto standard out
		// By default this is false and output will go to standard error
		Stdout bool `yaml:"stdout"`
		// Level is the desired log level
		Level string `yaml:"level"`
		// OutputFile is the path to the log output file
		// Stdout must be false, otherwise Stdout will take precedence
		OutputFile string `yaml:"outputFile"`
		// LevelKey is the desired log level, defaults to "level"
		LevelKey string `yaml:"levelKey"`
		// Encoding decides the format, supports "console" and "json".
		// "json" will print the log in JSON format(better for machine), while "console" will print in plain-text format(more human friendly)
		// Default is "json"
		Encoding string `yaml:"encoding"`
		// Rotation rotates OutputFile, ignored when logging to stdout/stderr
		Rotation *LogRotation `yaml:"rotation"`
	}

	LogRotation struct {
		// MaxSizeMB is the size of a file before it gets rotated. Default is 100.
		MaxSizeMB int `yaml:"maxSizeMB"`
		// MaxBackups is the number of old files to keep. Default is 5.
		MaxBackups int `yaml:"maxBackups"`
		// MaxAgeDays is the age of old files to keep. Default is 7.
		MaxAgeDays int  `yaml:"maxAgeDays"`
		Compress   bool `yaml:"compress"`
	}
)

// NewZapLogger builds and returns a new
// Zap logger for this logging configuration
func (cfg *Logger) NewZapLogger() (*zap.Logger, error) {
	levelKey := cfg.LevelKey
	if levelKey == "" {
		levelKey = "level"
	}

	encodeConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       levelKey,
		NameKey:        "logger",
		CallerKey:      "",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   nil,
	}

	outputPath := "stderr"
	if cfg.Stdout {
		outputPath = "stdout"
	} else if len(cfg.OutputFile) > 0 {
		outputPath = cfg.OutputFile
	}

	encoding := "json"
	if cfg.Encoding != "" {
		if cfg.Encoding == "json" || cfg.Encoding == "console" {
			encoding = cfg.Encoding
		} else {
			return nil, fmt.Errorf("invalid encoding for log, only supporting json or console")
		}
	}

	level := zap.NewAtomicLevelAt(parseZapLevel(cfg.Level))

	if cfg.Rotation != nil && !cfg.Stdout && cfg.OutputFile != "" {
		var encoder zapcore.Encoder
		if encoding == "json" {
			encoder = zapcore.NewJSONEncoder(encodeConfig)
		} else {
			encoder = zapcore.NewConsoleEncoder(encodeConfig)
		}
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    orDefault(cfg.Rotation.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.Rotation.MaxBackups, 5),
			MaxAge:     orDefault(cfg.Rotation.MaxAgeDays, 7),
			Compress:   cfg.Rotation.Compress,
		})
		return zap.New(zapcore.NewCore(encoder, writer, level)), nil
	}

	config := zap.Config{
		Level:            level,
		Development:      false,
		Sampling:         nil,
		Encoding:         encoding,
		EncoderConfig:    encodeConfig,
		OutputPaths:      []string{outputPath},
		ErrorOutputPaths: []string{outputPath},
	}
	return config.Build()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseZapLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}
