//go:build !windows
// +build !windows

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

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcGroupAttr puts every worker in its own process group
// setProcGroupAttr 将每个 worker 放入独立的进程组
// A terminal Ctrl-C then reaches the master only, and the master decides what the workers get.
// 这样终端的 Ctrl-C 只会到达 master，由 master 决定向 worker 发送什么信号。
func setProcGroupAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // Create new process group / 创建新进程组
	}
}

// signalGroup sends sig to the process group led by pid, falling back to the process itself
// signalGroup 向以 pid 为首的进程组发送信号，失败时退回到进程本身
func signalGroup(pid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return errors.New("unsupported signal type")
	}
	if err := unix.Kill(-pid, s); err == nil {
		return nil
	}
	return unix.Kill(pid, s)
}

// killGroup sends SIGKILL to the process group led by pid
// killGroup 向以 pid 为首的进程组发送 SIGKILL
func killGroup(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

// IsAlive checks if a process with the given PID is alive
// IsAlive 检查给定 PID 的进程是否存活
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
