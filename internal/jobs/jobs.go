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

// Package jobs provides the built-in jobs run by the prefork CLI.
// jobs 包提供 prefork CLI 运行的内置任务。
//
// Each job claims the slice of the work range that belongs to its worker id, when a range is configured.
// 配置了工作范围时，每个任务领取属于其 worker ID 的切片。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"github.com/seatunnel/prefork/internal/config"
	"github.com/seatunnel/prefork/internal/logger"
	"github.com/seatunnel/prefork/internal/segment"
	"github.com/seatunnel/prefork/internal/worker"
)

// Environment passed to the exec job's command
// 传递给 exec 任务命令的环境变量
const (
	EnvRangeStart = "PREFORK_RANGE_START"
	EnvRangeEnd   = "PREFORK_RANGE_END"
	EnvRangeSize  = "PREFORK_RANGE_SIZE"
)

// ErrUnknownJob indicates an unsupported job type
// ErrUnknownJob 表示不支持的任务类型
var ErrUnknownJob = errors.New("unknown job type")

// claim computes the worker's slice of [start, end]
// claim 计算 worker 在 [start, end] 中的切片
func claim(wc *worker.Context, start, end int) (segment.Range, error) {
	r, err := segment.SegmentRange(wc.ID, wc.Count, start, end)
	if err != nil {
		return segment.Range{}, fmt.Errorf("failed to claim range: %w", err)
	}
	return r, nil
}

// Echo returns a job that writes every item of its slice to out, one per line
// Echo 返回一个将其切片中每个工作项逐行写入 out 的任务
func Echo(start, end int, out io.Writer, base *zap.Logger) worker.Job {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, wc *worker.Context) error {
		log := logger.Worker(base, wc.MasterPID, wc.ID, wc.PID, wc.RunID)

		r, err := claim(wc, start, end)
		if err != nil {
			return err
		}
		if r.Empty() {
			log.Info("no work for this worker", zap.Stringer("range", r))
			return nil
		}
		log.Info("claimed range", zap.Stringer("range", r))

		return r.Each(func(n int) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := fmt.Fprintf(out, "worker=%d pid=%d item=%d\n", wc.ID, wc.PID, n)
			return err
		})
	}
}

// Domain is an inclusive range of work items split across the workers
// Domain 是在各 worker 之间切分的工作项闭区间
type Domain struct {
	Start int
	End   int
}

// Exec returns a job that runs command once.
// With a domain the worker's slice is passed in the environment and a worker with an
// empty slice skips the command. Without a domain every worker runs the command.
// Exec 返回一个执行一次 command 的任务。有范围时通过环境变量传入 worker 的切片，切片为空的
// worker 跳过命令；没有范围时每个 worker 都执行命令。
func Exec(domain *Domain, command string, args []string, base *zap.Logger) worker.Job {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, wc *worker.Context) error {
		log := logger.Worker(base, wc.MasterPID, wc.ID, wc.PID, wc.RunID)

		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = os.Environ()
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		fields := []zap.Field{zap.String("command", command), zap.Strings("args", args)}
		if domain != nil {
			r, err := claim(wc, domain.Start, domain.End)
			if err != nil {
				return err
			}
			if r.Empty() {
				log.Info("no work for this worker", zap.Stringer("range", r))
				return nil
			}
			cmd.Env = append(cmd.Env,
				EnvRangeStart+"="+strconv.Itoa(r.Start),
				EnvRangeEnd+"="+strconv.Itoa(r.End),
				EnvRangeSize+"="+strconv.Itoa(r.Size),
			)
			fields = append(fields, zap.Stringer("range", r))
		}

		log.Info("running command", fields...)
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("command %s failed: %w", command, err)
		}
		return nil
	}
}

// FromConfig builds the job described by the job section
// FromConfig 根据任务配置构建任务
func FromConfig(cfg config.JobConfig, out io.Writer, base *zap.Logger) (worker.Job, error) {
	start, end := cfg.Domain()
	switch cfg.Type {
	case config.JobTypeEcho:
		return Echo(start, end, out, base), nil
	case config.JobTypeExec:
		if cfg.Command == "" {
			return nil, fmt.Errorf("%w: exec requires a command", ErrUnknownJob)
		}
		var domain *Domain
		if cfg.HasDomain() {
			domain = &Domain{Start: start, End: end}
		}
		return Exec(domain, cfg.Command, cfg.Args, base), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownJob, cfg.Type)
}
