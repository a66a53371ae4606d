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
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/seatunnel/prefork/internal/signals"
)

// Exit codes shared by the supervisor and the worker runtime
// supervisor 与 worker 运行时共用的退出码
const (
	// ExitOK means the job completed normally
	// ExitOK 表示任务正常完成
	ExitOK = 0

	// ExitCrashed means the job failed with an unhandled error or panic
	// ExitCrashed 表示任务因未处理的错误或 panic 而失败
	ExitCrashed = 250
)

// ExitStatus describes how a worker process exited
// ExitStatus 描述 worker 进程的退出方式
type ExitStatus struct {
	// Code is the exit code, -1 when the process was killed by a signal
	// Code 是退出码，被信号杀死时为 -1
	Code int `json:"code"`

	// Signal is the name of the terminating signal, if any
	// Signal 是终止信号的名称（如有）
	Signal string `json:"signal,omitempty"`

	// Err is a wait error that is not an exit status
	// Err 是不属于退出状态的等待错误
	Err error `json:"-"`
}

// Success reports a clean exit with code 0
// Success 表示以退出码 0 正常退出
func (s ExitStatus) Success() bool {
	return s.Err == nil && s.Signal == "" && s.Code == ExitOK
}

// Crashed reports the distinguished job-failure exit code
// Crashed 表示特定的任务失败退出码
func (s ExitStatus) Crashed() bool {
	return s.Signal == "" && s.Code == ExitCrashed
}

// Signaled reports termination by a signal
// Signaled 表示被信号终止
func (s ExitStatus) Signaled() bool {
	return s.Signal != ""
}

func (s ExitStatus) String() string {
	bits := []string{fmt.Sprintf("status=%d", s.Code)}
	if s.Signal != "" {
		bits = append(bits, "signal="+s.Signal)
	}
	if s.Crashed() {
		bits = append(bits, "reason=crashed")
	}
	if s.Err != nil {
		bits = append(bits, "error="+s.Err.Error())
	}
	return strings.Join(bits, ", ")
}

// exitStatusFrom converts the result of exec.Cmd.Wait
// exitStatusFrom 转换 exec.Cmd.Wait 的结果
func exitStatusFrom(state *os.ProcessState, err error) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1, Err: err}
	}

	status := ExitStatus{Code: state.ExitCode()}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		status.Err = err
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Code = -1
		status.Signal = signals.Name(ws.Signal())
	}
	return status
}
