//go:build !windows

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
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrFileClosed is returned by writes after Close
// ErrFileClosed 表示在 Close 之后写入
var ErrFileClosed = errors.New("log file closed")

// LockedFile is an append-only log file shared by many processes.
// Every write holds an exclusive flock for its duration.
// When the path is rotated away the file is reopened before the next write.
// LockedFile 是多个进程共享的只追加日志文件，每次写入期间都持有排他 flock。
// 当路径被轮转后，会在下一次写入前重新打开文件。
type LockedFile struct {
	path string

	mu  sync.Mutex
	f   *os.File
	ino uint64
	dev uint64
}

// OpenLocked opens (creating if needed) the shared log file in append mode
// OpenLocked 以追加模式打开（必要时创建）共享日志文件
func OpenLocked(path string) (*LockedFile, error) {
	l := &LockedFile{path: path}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the file path
// Path 返回文件路径
func (l *LockedFile) Path() string {
	return l.path
}

// File returns the currently open file, or nil after Close
// File 返回当前打开的文件，Close 之后返回 nil
func (l *LockedFile) File() *os.File {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f
}

// Write appends p as one locked write
// Write 以一次加锁写入的方式追加 p
func (l *LockedFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return 0, ErrFileClosed
	}
	if l.moved() {
		if err := l.reopen(); err != nil {
			return 0, err
		}
	}

	var n int
	err := l.withFlock(func() error {
		var werr error
		n, werr = l.f.Write(p)
		return werr
	})
	return n, err
}

// Sync commits the file to stable storage
// Sync 将文件提交到稳定存储
func (l *LockedFile) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.f.Sync()
}

// Close closes the file
// Close 关闭文件
func (l *LockedFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// WithLock runs fn while holding the exclusive flock on the current file.
// fn receives the size of the file at the time the lock was taken.
// WithLock 在持有当前文件排他 flock 期间执行 fn，fn 接收加锁时的文件大小。
func (l *LockedFile) WithLock(fn func(size int64) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return ErrFileClosed
	}
	if l.moved() {
		if err := l.reopen(); err != nil {
			return err
		}
	}
	return l.withFlock(func() error {
		var st unix.Stat_t
		if err := unix.Fstat(int(l.f.Fd()), &st); err != nil {
			return fmt.Errorf("failed to stat log file: %w", err)
		}
		return fn(st.Size)
	})
}

func (l *LockedFile) withFlock(fn func() error) error {
	fd := int(l.f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock log file: %w", err)
	}
	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()
	return fn()
}

func (l *LockedFile) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", l.path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file %s: %w", l.path, err)
	}
	l.f = f
	l.ino = uint64(st.Ino)
	l.dev = uint64(st.Dev)
	return nil
}

func (l *LockedFile) reopen() error {
	old := l.f
	if err := l.open(); err != nil {
		return err
	}
	_ = old.Close()
	return nil
}

// moved reports whether the path no longer names the open file
// moved 判断路径是否已不再指向当前打开的文件
func (l *LockedFile) moved() bool {
	var st unix.Stat_t
	if err := unix.Stat(l.path, &st); err != nil {
		return true
	}
	return uint64(st.Ino) != l.ino || uint64(st.Dev) != l.dev
}
