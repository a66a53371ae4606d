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

package config

import (
	"time"

	"github.com/seatunnel/prefork/internal/logger"
	"github.com/seatunnel/prefork/internal/restart"
)

// Job types understood by the CLI
// CLI 支持的任务类型
const (
	JobTypeEcho = "echo"
	JobTypeExec = "exec"
)

// Config represents the prefork configuration
// Config 表示 prefork 配置
type Config struct {
	// Supervisor configuration / Supervisor 配置
	Supervisor SupervisorConfig `mapstructure:"supervisor"`

	// Log configuration / 日志配置
	Log LogConfig `mapstructure:"log"`

	// Job configuration / 任务配置
	Job JobConfig `mapstructure:"job"`
}

// SupervisorConfig contains master process settings
// SupervisorConfig 包含 master 进程设置
type SupervisorConfig struct {
	// Name labels processes as "<name> master" and "<name> worker"
	// Name 将进程标记为 "<name> master" 和 "<name> worker"
	Name string `mapstructure:"name"`

	// Workers is the number of worker processes
	// Workers 是 worker 进程数量
	Workers int `mapstructure:"workers"`

	// Detach moves the master into the background
	// Detach 将 master 移到后台运行
	Detach bool `mapstructure:"detach"`

	// Refork replaces exited workers while not shutting down
	// Refork 在未关闭时替换已退出的 worker
	Refork bool `mapstructure:"refork"`

	// GracePeriod is how long workers get after the shutdown signal before SIGKILL
	// GracePeriod 是收到关闭信号后到发送 SIGKILL 之前留给 worker 的时间
	GracePeriod time.Duration `mapstructure:"grace_period"`

	// MaxRestarts limits reforks of one slot per RestartWindow, 0 = unlimited
	// MaxRestarts 限制每个 RestartWindow 内单个槽位的重新 fork 次数，0 表示不限制
	MaxRestarts int `mapstructure:"max_restarts"`

	// RestartWindow is the window for MaxRestarts
	// RestartWindow 是 MaxRestarts 的时间窗口
	RestartWindow time.Duration `mapstructure:"restart_window"`
}

// LogConfig contains logging settings
// LogConfig 包含日志设置
type LogConfig struct {
	Level          string        `mapstructure:"level"`
	File           string        `mapstructure:"file"`
	MaxSize        int           `mapstructure:"max_size"`
	MaxBackups     int           `mapstructure:"max_backups"`
	MaxAge         int           `mapstructure:"max_age"`
	Compress       bool          `mapstructure:"compress"`
	RotateInterval time.Duration `mapstructure:"rotate_interval"`
}

// JobConfig selects the built-in job run by each worker
// JobConfig 选择每个 worker 运行的内置任务
type JobConfig struct {
	// Type is echo or exec
	// Type 为 echo 或 exec
	Type string `mapstructure:"type"`

	// Total splits [1, Total] across workers when positive
	// Total 为正数时将 [1, Total] 分配给各 worker
	Total int `mapstructure:"total"`

	// RangeStart and RangeEnd give an explicit range when Total is 0
	// Total 为 0 时 RangeStart 和 RangeEnd 给出显式范围
	RangeStart int `mapstructure:"range_start"`
	RangeEnd   int `mapstructure:"range_end"`

	// Command and Args are run by the exec job
	// Command 和 Args 由 exec 任务执行
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// Domain returns the inclusive range of work items
// Domain 返回工作项的闭区间
func (j JobConfig) Domain() (start, end int) {
	if j.Total > 0 {
		return 1, j.Total
	}
	return j.RangeStart, j.RangeEnd
}

// HasDomain reports whether a work range is configured.
// The default range [1, 0] is empty and means the job claims no range.
// HasDomain 表示是否配置了工作范围，默认范围 [1, 0] 为空，表示任务不领取范围。
func (j JobConfig) HasDomain() bool {
	start, end := j.Domain()
	return end >= start
}

// LoggerConfig converts the log section for the logger package
// LoggerConfig 将日志配置转换为 logger 包使用的配置
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}

// RestartConfig converts the refork settings for the restart package
// RestartConfig 将重新 fork 设置转换为 restart 包使用的配置
func (c *Config) RestartConfig() restart.Config {
	return restart.Config{
		Enabled:     c.Supervisor.Refork,
		MaxRestarts: c.Supervisor.MaxRestarts,
		TimeWindow:  c.Supervisor.RestartWindow,
	}
}
