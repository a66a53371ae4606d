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

package worker

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/seatunnel/prefork/internal/logger"
	"github.com/seatunnel/prefork/internal/process"
	"github.com/seatunnel/prefork/internal/signals"
)

// Job is the user work executed once per worker process.
// A nil error is success. An error or a panic is a failure.
// Job 是每个 worker 进程执行一次的用户任务，返回 nil 表示成功，返回错误或 panic 表示失败。
type Job func(ctx context.Context, wc *Context) error

// Runtime executes a Job and turns its outcome into an exit code.
// Runtime 执行 Job 并将结果转换为退出码。
type Runtime struct {
	logger      *zap.Logger
	exit        func(code int)
	crashOutput *os.File
	once        sync.Once
}

// Option configures a Runtime
// Option 配置 Runtime
type Option func(*Runtime)

// WithExit replaces os.Exit
// WithExit 替换 os.Exit
func WithExit(exit func(code int)) Option {
	return func(r *Runtime) {
		r.exit = exit
	}
}

// WithCrashOutput sets the file that receives fatal runtime crash reports
// WithCrashOutput 设置接收运行时致命崩溃报告的文件
func WithCrashOutput(f *os.File) Option {
	return func(r *Runtime) {
		r.crashOutput = f
	}
}

// NewRuntime creates a worker runtime
// NewRuntime 创建 worker 运行时
func NewRuntime(log *zap.Logger, opts ...Option) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runtime{
		logger: log,
		exit:   os.Exit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run invokes job and returns ExitOK on success and ExitCrashed on error or panic.
// Run 调用 job，成功返回 ExitOK，出错或 panic 时返回 ExitCrashed。
func (r *Runtime) Run(ctx context.Context, job Job, wc *Context) (code int) {
	log := r.tagged(wc)
	log.Info("process started")

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("job panicked",
				zap.String("panic", fmt.Sprint(rec)),
				zap.ByteString("stack", debug.Stack()))
			code = process.ExitCrashed
		}
	}()

	if err := job(ctx, wc); err != nil {
		log.Error("job failed", zap.Error(err))
		return process.ExitCrashed
	}
	return process.ExitOK
}

// Main is the worker process entry point. It never returns when exit is os.Exit.
// The first SIGINT or SIGTERM ends the worker with status 0.
// Main 是 worker 进程入口，exit 为 os.Exit 时不会返回。第一个 SIGINT 或 SIGTERM 使 worker 以状态 0 退出。
func (r *Runtime) Main(job Job, wc *Context) {
	log := r.tagged(wc)

	stop := signals.InstallWorker(func(sig os.Signal) {
		log.Info(fmt.Sprintf("received %s, exiting", signals.Name(sig)))
		r.terminate(log, process.ExitOK)
	})
	defer stop()

	if r.crashOutput != nil {
		if err := debug.SetCrashOutput(r.crashOutput, debug.CrashOptions{}); err != nil {
			log.Warn("failed to set crash output", zap.Error(err))
		}
	}

	code := r.Run(context.Background(), job, wc)
	r.terminate(log, code)
}

// terminate logs the final line, flushes and exits, once
// terminate 记录最后一行日志、刷新并退出，仅执行一次
func (r *Runtime) terminate(log *zap.Logger, code int) {
	r.once.Do(func() {
		log.Info("process terminated", zap.Int("status", code))
		_ = log.Sync()
		r.exit(code)
	})
}

func (r *Runtime) tagged(wc *Context) *zap.Logger {
	if wc == nil {
		return r.logger
	}
	return logger.Worker(r.logger, wc.MasterPID, wc.ID, wc.PID, wc.RunID)
}
