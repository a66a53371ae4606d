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

// Package process creates and signals worker processes for the supervisor.
// process 包为 supervisor 创建 worker 进程并向其发送信号。
//
// Go cannot fork a running runtime, so a worker is a fresh image of the same
// program started with worker-mode environment variables.
// Go 无法 fork 正在运行的运行时，因此 worker 是以 worker 模式环境变量启动的同一程序的新进程映像。
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Common errors for process management
// 进程管理的常见错误
var (
	// ErrStartFailed indicates the process failed to start
	// ErrStartFailed 表示进程启动失败
	ErrStartFailed = errors.New("process failed to start")

	// ErrProcessDone indicates the process has already been reaped
	// ErrProcessDone 表示进程已被回收
	ErrProcessDone = errors.New("process already finished")
)

// Spec describes one worker process to spawn.
// Spec 描述要创建的一个 worker 进程。
type Spec struct {
	// Label replaces argv[0] so the worker shows up as e.g. "crawler worker" in ps
	// Label 替换 argv[0]，使 worker 在 ps 中显示为例如 "crawler worker"
	Label string

	// Env holds extra environment variables appended to the base environment
	// Env 保存追加到基础环境变量之后的额外环境变量
	Env []string
}

// Handle is a started process owned by the supervisor.
// Handle 是由 supervisor 持有的已启动进程。
type Handle interface {
	// PID returns the process id
	// PID 返回进程 ID
	PID() int

	// Signal forwards sig to the process (and its process group)
	// Signal 将 sig 转发给进程（及其进程组）
	Signal(sig os.Signal) error

	// Kill force-kills the process
	// Kill 强制杀死进程
	Kill() error

	// Wait blocks until the process exits and returns how it exited
	// Wait 阻塞直到进程退出，并返回其退出方式
	Wait() ExitStatus
}

// Spawner starts worker processes.
// Spawner 启动 worker 进程。
type Spawner interface {
	Spawn(spec Spec) (Handle, error)
}

// ExecSpawner re-executes a binary (by default the running one) for each worker.
// ExecSpawner 为每个 worker 重新执行一个二进制文件（默认为当前运行的程序）。
type ExecSpawner struct {
	// Path is the executable to run
	// Path 是要运行的可执行文件
	Path string

	// Args are the arguments after argv[0]
	// Args 是 argv[0] 之后的参数
	Args []string

	// Env is the base environment, os.Environ() when nil
	// Env 是基础环境变量，为 nil 时使用 os.Environ()
	Env []string

	// Dir is the working directory, inherited when empty
	// Dir 是工作目录，为空时继承当前目录
	Dir string

	// Stdout and Stderr receive the worker's output, inherited when nil
	// Stdout 和 Stderr 接收 worker 的输出，为 nil 时继承
	Stdout io.Writer
	Stderr io.Writer
}

// NewSelfSpawner returns a spawner that re-executes the current program with its own arguments.
// NewSelfSpawner 返回一个使用当前程序及其参数重新执行的 spawner。
func NewSelfSpawner() (*ExecSpawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable: %w", err)
	}
	return &ExecSpawner{
		Path: exe,
		Args: append([]string(nil), os.Args[1:]...),
	}, nil
}

// Spawn starts one worker process.
// Spawn 启动一个 worker 进程。
func (s *ExecSpawner) Spawn(spec Spec) (Handle, error) {
	cmd := exec.Command(s.Path, s.Args...)
	if spec.Label != "" {
		cmd.Args[0] = spec.Label
	}

	base := s.Env
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = append(append([]string(nil), base...), spec.Env...)
	cmd.Dir = s.Dir

	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if s.Stdout != nil {
		cmd.Stdout = s.Stdout
	}
	if s.Stderr != nil {
		cmd.Stderr = s.Stderr
	}

	setProcGroupAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStartFailed, s.Path, err)
	}

	return &execHandle{cmd: cmd, pid: cmd.Process.Pid}, nil
}

// execHandle wraps a started exec.Cmd
// execHandle 封装已启动的 exec.Cmd
type execHandle struct {
	cmd  *exec.Cmd
	pid  int
	mu   sync.Mutex
	done bool
}

func (h *execHandle) PID() int {
	return h.pid
}

func (h *execHandle) Signal(sig os.Signal) error {
	if h.exited() {
		return ErrProcessDone
	}
	return signalGroup(h.pid, sig)
}

func (h *execHandle) Kill() error {
	if h.exited() {
		return ErrProcessDone
	}
	return killGroup(h.pid)
}

func (h *execHandle) Wait() ExitStatus {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.done = true
	h.mu.Unlock()

	return exitStatusFrom(h.cmd.ProcessState, err)
}

func (h *execHandle) exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}
