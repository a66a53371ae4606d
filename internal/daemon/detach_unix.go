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

// Package daemon detaches the master from its terminal and reports readiness to systemd.
// daemon 包使 master 脱离终端，并向 systemd 报告就绪状态。
package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// EnvDetached marks a process that already runs in its own session
// EnvDetached 标记已在独立会话中运行的进程
const EnvDetached = "PREFORK_DETACHED"

// ErrDetachFailed indicates the master could not detach from its terminal
// ErrDetachFailed 表示 master 无法脱离终端
var ErrDetachFailed = errors.New("failed to detach from terminal")

// Detacher moves the calling process into the background.
// On success the original foreground process exits and only the detached copy returns.
// Detacher 将调用进程移到后台，成功时原前台进程退出，只有脱离后的副本返回。
type Detacher interface {
	Detach() error
}

// ReexecDetacher detaches by starting a copy of the program in a new session.
// The working directory and umask are inherited.
// ReexecDetacher 通过在新会话中启动程序副本实现脱离终端，工作目录和 umask 保持继承。
type ReexecDetacher struct {
	// Path is the executable, os.Executable() when empty
	// Path 是可执行文件，为空时使用 os.Executable()
	Path string

	// Args are the arguments after argv[0], os.Args[1:] when nil
	// Args 是 argv[0] 之后的参数，为 nil 时使用 os.Args[1:]
	Args []string

	// LogFile receives stdout and stderr of the detached process, /dev/null when empty
	// LogFile 接收脱离后进程的标准输出和标准错误，为空时使用 /dev/null
	LogFile string

	// Exit ends the foreground process, os.Exit when nil
	// Exit 结束前台进程，为 nil 时使用 os.Exit
	Exit func(code int)

	// Getenv reads the environment, os.Getenv when nil
	// Getenv 读取环境变量，为 nil 时使用 os.Getenv
	Getenv func(key string) string
}

// Detached reports whether the current process is the detached copy
// Detached 表示当前进程是否为脱离终端后的副本
func Detached() bool {
	return os.Getenv(EnvDetached) == "1"
}

// Detach starts the detached copy and exits the foreground process with status 0.
// In the detached copy it is a no-op.
// Detach 启动脱离终端的副本并以状态 0 退出前台进程，在副本中调用时不做任何事。
func (d *ReexecDetacher) Detach() error {
	getenv := d.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if getenv(EnvDetached) == "1" {
		return nil
	}

	path := d.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDetachFailed, err)
		}
		path = exe
	}
	args := d.Args
	if args == nil {
		args = os.Args[1:]
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDetachFailed, err)
	}
	defer devNull.Close()

	out := devNull
	if d.LogFile != "" {
		f, err := os.OpenFile(d.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDetachFailed, err)
		}
		defer f.Close()
		out = f
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), EnvDetached+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDetachFailed, err)
	}
	_ = cmd.Process.Release()

	exit := d.Exit
	if exit == nil {
		exit = os.Exit
	}
	exit(0)
	return nil
}

// NopDetacher never detaches
// NopDetacher 从不脱离终端
type NopDetacher struct{}

// Detach does nothing
// Detach 不做任何事
func (NopDetacher) Detach() error { return nil }
