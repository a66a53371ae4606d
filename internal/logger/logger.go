/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger builds the zap logger shared by the master and its workers.
// logger 包构建 master 与 worker 共用的 zap 日志记录器。
//
// Every process appends to the same log file. Each write holds an exclusive
// file lock so lines from different processes never interleave.
// 每个进程都追加写入同一个日志文件，每次写入都持有排他文件锁，因此不同进程的日志行不会交错。
package logger

import (
	"errors"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
// Config 保存日志配置
type Config struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	File       string `mapstructure:"file" yaml:"file"`               // 共享日志文件，空表示仅终端 / Shared log file, empty = terminal only
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`       // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // 保留的旧文件数 / Old files to keep
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`         // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`       // 压缩旧文件 / Gzip old files
}

// Options control where a process writes its log lines
// Options 控制进程将日志写到哪里
type Options struct {
	// Console enables the terminal output, off for detached processes
	// Console 启用终端输出，脱离终端的进程关闭
	Console bool

	// Stdout is the terminal writer, os.Stdout when nil
	// Stdout 是终端输出，为 nil 时使用 os.Stdout
	Stdout io.Writer
}

// ParseLevel parses a level name, defaulting to info
// ParseLevel 解析日志级别名称，默认为 info
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// New creates the process logger together with its shared log file.
// The returned *LockedFile is nil when no log file is configured.
// New 创建进程日志记录器及其共享日志文件，未配置日志文件时返回的 *LockedFile 为 nil。
func New(cfg Config, opts Options) (*zap.Logger, *LockedFile, error) {
	level := ParseLevel(cfg.Level)
	encoder := zapcore.NewConsoleEncoder(encoderConfig())

	var cores []zapcore.Core
	if opts.Console {
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(out), level))
	}

	var file *LockedFile
	if cfg.File != "" {
		f, err := OpenLocked(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		file = f
		cores = append(cores, zapcore.NewCore(encoder.Clone(), file, level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil, nil
	}
	return zap.New(zapcore.NewTee(cores...)), file, nil
}

// encoderConfig mirrors "[time] [master pid] [worker:id pid] message"
// encoderConfig 对应 "[时间] [master pid] [worker:id pid] 消息" 格式
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000000"),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

// Master tags a logger with the master pid and run id
// Master 为日志记录器添加 master pid 与运行 ID
func Master(l *zap.Logger, masterPID int, runID string) *zap.Logger {
	fields := []zap.Field{zap.Int("master", masterPID)}
	if runID != "" {
		fields = append(fields, zap.String("run", runID))
	}
	return l.With(fields...)
}

// Worker tags a logger with the master pid, worker id, worker pid and run id
// Worker 为日志记录器添加 master pid、worker ID、worker pid 与运行 ID
func Worker(l *zap.Logger, masterPID, id, pid int, runID string) *zap.Logger {
	return Master(l, masterPID, runID).With(zap.Int("worker", id), zap.Int("pid", pid))
}

// Close flushes the logger and closes the log file, if any
// Close 刷新日志记录器并关闭日志文件（如有）
func Close(l *zap.Logger, file *LockedFile) error {
	var errs []error
	if l != nil {
		if err := l.Sync(); err != nil && !isIgnorableSyncError(err) {
			errs = append(errs, err)
		}
	}
	if file != nil {
		if err := file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// isIgnorableSyncError reports fsync failures on terminals and pipes
// isIgnorableSyncError 判断终端和管道上的 fsync 失败
func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "inappropriate ioctl") ||
		strings.Contains(msg, "bad file descriptor")
}
