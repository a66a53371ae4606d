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

package logger

import (
	"fmt"

	"gopkg.in/natefinch/lumberjack.v2"
)

const megabyte = 1024 * 1024

// Rotator rotates the shared log file once it grows past MaxBytes.
// Only the master runs it. Workers notice the new file on their next write.
// Rotator 在共享日志文件超过 MaxBytes 时进行轮转，仅由 master 执行，worker 在下一次写入时感知新文件。
type Rotator struct {
	// MaxBytes is the rotation threshold, 0 disables rotation
	// MaxBytes 是轮转阈值，0 表示不轮转
	MaxBytes int64

	file *LockedFile
	lj   *lumberjack.Logger
}

// NewRotator creates a rotator for file. Backups, age and compression follow cfg.
// NewRotator 为 file 创建轮转器，备份数量、保留时间和压缩遵循 cfg。
func NewRotator(file *LockedFile, cfg Config) *Rotator {
	return &Rotator{
		MaxBytes: int64(cfg.MaxSize) * megabyte,
		file:     file,
		lj: &lumberjack.Logger{
			Filename:   file.Path(),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		},
	}
}

// RotateIfNeeded rotates the file when it is over the threshold.
// It reports whether a rotation happened.
// RotateIfNeeded 在文件超过阈值时进行轮转，并返回是否发生了轮转。
func (r *Rotator) RotateIfNeeded() (bool, error) {
	if r == nil || r.MaxBytes <= 0 {
		return false, nil
	}

	rotated := false
	err := r.file.WithLock(func(size int64) error {
		if size < r.MaxBytes {
			return nil
		}
		// lumberjack renames the current file to a timestamped backup and
		// creates a fresh one in its place.
		if err := r.lj.Rotate(); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
		rotated = true
		return r.lj.Close()
	})
	return rotated, err
}

// Close releases the rotator's handle
// Close 释放轮转器持有的文件句柄
func (r *Rotator) Close() error {
	if r == nil {
		return nil
	}
	return r.lj.Close()
}
