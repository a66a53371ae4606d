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

// Package config provides configuration management for prefork.
// config 包提供 prefork 的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Command line arguments / 命令行参数
// 2. Environment variables (PREFORK_*) / 环境变量（PREFORK_*）
// 3. Configuration file / 配置文件
// 4. Default values / 默认值
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath     = "/etc/prefork/prefork.yaml"
	DefaultName           = "prefork"
	DefaultWorkers        = 4
	DefaultGracePeriod    = 1 * time.Second
	DefaultRestartWindow  = 1 * time.Minute
	DefaultLogLevel       = "info"
	DefaultLogMaxSize     = 100 // MB
	DefaultLogMaxBackups  = 3
	DefaultLogMaxAge      = 7 // days
	DefaultRotateInterval = 10 * time.Second
	DefaultJobType        = JobTypeEcho
)

// EnvConfigPath names the config file when no path is given
// EnvConfigPath 在未指定路径时给出配置文件位置
const EnvConfigPath = "PREFORK_CONFIG_PATH"

// ErrInvalidConfig indicates a configuration that fails validation
// ErrInvalidConfig 表示配置未通过验证
var ErrInvalidConfig = errors.New("invalid configuration")

// Load loads configuration from file and environment variables
// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	return LoadWithPriority(configPath, nil)
}

// LoadWithPriority loads configuration with explicit priority handling
// LoadWithPriority 使用显式优先级处理加载配置
// Priority: cmdArgs > envVars > configFile > defaults
// 优先级：命令行参数 > 环境变量 > 配置文件 > 默认值
func LoadWithPriority(configPath string, cmdArgs map[string]interface{}) (*Config, error) {
	v := viper.New()

	// Set default values / 设置默认值
	setDefaults(v)

	// Set config file path / 设置配置文件路径
	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath
	}
	v.SetConfigFile(configPath)

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix("PREFORK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file / 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// A missing default file falls back to defaults, a missing explicit file is an error
		// 默认配置文件缺失时使用默认值，显式指定的文件缺失则报错
		_, statErr := os.Stat(configPath)
		if explicit || statErr == nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Apply command line arguments (highest priority)
	// 应用命令行参数（最高优先级）
	for key, value := range cmdArgs {
		v.Set(key, value)
	}

	return unmarshal(v)
}

// LoadFromYAML loads configuration from YAML bytes
// LoadFromYAML 从 YAML 字节加载配置
func LoadFromYAML(yamlData []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults first / 首先设置默认值
	setDefaults(v)

	// Read from bytes / 从字节读取
	if err := v.ReadConfig(bytes.NewReader(yamlData)); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// Supervisor defaults / Supervisor 默认值
	v.SetDefault("supervisor.name", DefaultName)
	v.SetDefault("supervisor.workers", DefaultWorkers)
	v.SetDefault("supervisor.detach", false)
	v.SetDefault("supervisor.refork", true)
	v.SetDefault("supervisor.grace_period", DefaultGracePeriod)
	v.SetDefault("supervisor.max_restarts", 0)
	v.SetDefault("supervisor.restart_window", DefaultRestartWindow)

	// Log defaults / 日志默认值
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.rotate_interval", DefaultRotateInterval)

	// Job defaults / 任务默认值
	v.SetDefault("job.type", DefaultJobType)
	v.SetDefault("job.total", 0)
	v.SetDefault("job.range_start", 1)
	v.SetDefault("job.range_end", 0)
	v.SetDefault("job.command", "")
	v.SetDefault("job.args", []string{})
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	// Validate supervisor / 验证 supervisor
	if strings.TrimSpace(c.Supervisor.Name) == "" {
		return fmt.Errorf("%w: supervisor.name is required", ErrInvalidConfig)
	}
	if c.Supervisor.Workers < 1 {
		return fmt.Errorf("%w: supervisor.workers must be at least 1", ErrInvalidConfig)
	}
	if c.Supervisor.GracePeriod <= 0 {
		return fmt.Errorf("%w: supervisor.grace_period must be positive", ErrInvalidConfig)
	}
	if c.Supervisor.MaxRestarts < 0 {
		return fmt.Errorf("%w: supervisor.max_restarts must not be negative", ErrInvalidConfig)
	}
	if c.Supervisor.MaxRestarts > 0 && c.Supervisor.RestartWindow <= 0 {
		return fmt.Errorf("%w: supervisor.restart_window must be positive when max_restarts is set", ErrInvalidConfig)
	}

	// Validate log level / 验证日志级别
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug, info, warn, or error)", ErrInvalidConfig, c.Log.Level)
	}
	if c.Log.MaxSize < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAge < 0 {
		return fmt.Errorf("%w: log.max_size, log.max_backups and log.max_age must not be negative", ErrInvalidConfig)
	}
	if c.Log.RotateInterval < 0 {
		return fmt.Errorf("%w: log.rotate_interval must not be negative", ErrInvalidConfig)
	}

	// Validate job / 验证任务
	switch c.Job.Type {
	case JobTypeEcho:
	case JobTypeExec:
		if c.Job.Command == "" {
			return fmt.Errorf("%w: job.command is required for the exec job", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown job type: %s (must be echo or exec)", ErrInvalidConfig, c.Job.Type)
	}
	if c.Job.Total < 0 {
		return fmt.Errorf("%w: job.total must not be negative", ErrInvalidConfig)
	}
	if start, end := c.Job.Domain(); end < start-1 {
		return fmt.Errorf("%w: job range [%d, %d] is inverted", ErrInvalidConfig, start, end)
	}

	return nil
}

// String returns a string representation of the config (for debugging)
// String 返回配置的字符串表示（用于调试）
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Supervisor.Name: %s, Supervisor.Workers: %d, Supervisor.Refork: %t, Log.Level: %s, Job.Type: %s}",
		c.Supervisor.Name,
		c.Supervisor.Workers,
		c.Supervisor.Refork,
		c.Log.Level,
		c.Job.Type,
	)
}

// yamlDocument mirrors Config with durations spelled as strings
// yamlDocument 与 Config 结构一致，但时长以字符串表示
type yamlDocument struct {
	Supervisor struct {
		Name          string `yaml:"name"`
		Workers       int    `yaml:"workers"`
		Detach        bool   `yaml:"detach"`
		Refork        bool   `yaml:"refork"`
		GracePeriod   string `yaml:"grace_period"`
		MaxRestarts   int    `yaml:"max_restarts"`
		RestartWindow string `yaml:"restart_window"`
	} `yaml:"supervisor"`
	Log struct {
		Level          string `yaml:"level"`
		File           string `yaml:"file"`
		MaxSize        int    `yaml:"max_size"`
		MaxBackups     int    `yaml:"max_backups"`
		MaxAge         int    `yaml:"max_age"`
		Compress       bool   `yaml:"compress"`
		RotateInterval string `yaml:"rotate_interval"`
	} `yaml:"log"`
	Job struct {
		Type       string   `yaml:"type"`
		Total      int      `yaml:"total"`
		RangeStart int      `yaml:"range_start"`
		RangeEnd   int      `yaml:"range_end"`
		Command    string   `yaml:"command"`
		Args       []string `yaml:"args"`
	} `yaml:"job"`
}

// ToYAML serializes the configuration to YAML format
// ToYAML 将配置序列化为 YAML 格式
func (c *Config) ToYAML() ([]byte, error) {
	var doc yamlDocument

	doc.Supervisor.Name = c.Supervisor.Name
	doc.Supervisor.Workers = c.Supervisor.Workers
	doc.Supervisor.Detach = c.Supervisor.Detach
	doc.Supervisor.Refork = c.Supervisor.Refork
	doc.Supervisor.GracePeriod = c.Supervisor.GracePeriod.String()
	doc.Supervisor.MaxRestarts = c.Supervisor.MaxRestarts
	doc.Supervisor.RestartWindow = c.Supervisor.RestartWindow.String()

	doc.Log.Level = c.Log.Level
	doc.Log.File = c.Log.File
	doc.Log.MaxSize = c.Log.MaxSize
	doc.Log.MaxBackups = c.Log.MaxBackups
	doc.Log.MaxAge = c.Log.MaxAge
	doc.Log.Compress = c.Log.Compress
	doc.Log.RotateInterval = c.Log.RotateInterval.String()

	doc.Job.Type = c.Job.Type
	doc.Job.Total = c.Job.Total
	doc.Job.RangeStart = c.Job.RangeStart
	doc.Job.RangeEnd = c.Job.RangeEnd
	doc.Job.Command = c.Job.Command
	doc.Job.Args = c.Job.Args
	if doc.Job.Args == nil {
		doc.Job.Args = []string{}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// Equal compares two configs for equality
// Equal 比较两个配置是否相等
func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}

	// Compare Supervisor / 比较 Supervisor
	if c.Supervisor != other.Supervisor {
		return false
	}

	// Compare Log / 比较 Log
	if c.Log != other.Log {
		return false
	}

	// Compare Job / 比较 Job
	if c.Job.Type != other.Job.Type ||
		c.Job.Total != other.Job.Total ||
		c.Job.RangeStart != other.Job.RangeStart ||
		c.Job.RangeEnd != other.Job.RangeEnd ||
		c.Job.Command != other.Job.Command {
		return false
	}
	if len(c.Job.Args) != len(other.Job.Args) {
		return false
	}
	for i, arg := range c.Job.Args {
		if arg != other.Job.Args[i] {
			return false
		}
	}

	return true
}
