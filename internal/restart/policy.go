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

// Package restart decides whether an exited worker slot is reforked.
// restart 包决定已退出的 worker 槽位是否重新 fork。
//
// This package provides:
// 此包提供：
// - The refork on/off switch / 重新 fork 开关
// - An optional crash-loop limit per slot / 可选的按槽位崩溃循环限制
// - Refork history tracking / 重新 fork 历史跟踪
package restart

import (
	"sync"
	"time"
)

// Default configuration values
// 默认配置值
const (
	DefaultMaxRestarts = 0               // 0 = unlimited / 0 表示不限制
	DefaultTimeWindow  = 1 * time.Minute // 默认时间窗口 / Default time window
)

// Config holds the refork configuration
// Config 保存重新 fork 配置
type Config struct {
	Enabled     bool          `json:"enabled"`      // 是否重新 fork / Refork exited workers
	MaxRestarts int           `json:"max_restarts"` // 窗口内最大次数，0 不限 / Max reforks per window, 0 = unlimited
	TimeWindow  time.Duration `json:"time_window"`  // 时间窗口 / Time window
}

// DefaultConfig returns the default refork configuration
// DefaultConfig 返回默认重新 fork 配置
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		MaxRestarts: DefaultMaxRestarts,
		TimeWindow:  DefaultTimeWindow,
	}
}

// History tracks reforks of one worker slot
// History 跟踪一个 worker 槽位的重新 fork 历史
type History struct {
	ID           int         `json:"id"`
	RestartCount int         `json:"restart_count"`
	LastRestart  time.Time   `json:"last_restart"`
	RestartTimes []time.Time `json:"restart_times"` // 窗口内的重新 fork 时间 / Refork times inside the window
}

// Policy applies Config to worker slots
// Policy 将 Config 应用于 worker 槽位
type Policy struct {
	config  Config
	history map[int]*History
	mu      sync.RWMutex
}

// NewPolicy creates a new Policy instance
// NewPolicy 创建一个新的 Policy 实例
func NewPolicy(config Config) *Policy {
	if config.TimeWindow <= 0 {
		config.TimeWindow = DefaultTimeWindow
	}
	return &Policy{
		config:  config,
		history: make(map[int]*History),
	}
}

// Enabled returns whether exited workers are reforked at all
// Enabled 返回是否会重新 fork 已退出的 worker
func (p *Policy) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.Enabled
}

// Allow checks if slot id may be reforked at now
// Allow 检查槽位 id 在 now 时刻是否允许重新 fork
func (p *Policy) Allow(id int, now time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.config.Enabled {
		return false
	}
	if p.config.MaxRestarts <= 0 {
		return true
	}

	history, exists := p.history[id]
	if !exists {
		return true
	}

	// Count reforks within time window / 计算时间窗口内的重新 fork 次数
	windowStart := now.Add(-p.config.TimeWindow)
	inWindow := 0
	for _, t := range history.RestartTimes {
		if t.After(windowStart) {
			inWindow++
		}
	}
	return inWindow < p.config.MaxRestarts
}

// Record records a refork of slot id
// Record 记录槽位 id 的一次重新 fork
func (p *Policy) Record(id int, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	history, exists := p.history[id]
	if !exists {
		history = &History{ID: id}
		p.history[id] = history
	}

	history.RestartCount++
	history.LastRestart = now
	history.RestartTimes = append(history.RestartTimes, now)

	// Clean up old refork times / 清理旧的重新 fork 时间
	windowStart := now.Add(-p.config.TimeWindow)
	kept := history.RestartTimes[:0]
	for _, t := range history.RestartTimes {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	history.RestartTimes = kept
}

// History returns a copy of the refork history of slot id, or nil
// History 返回槽位 id 的重新 fork 历史副本，不存在时返回 nil
func (p *Policy) History(id int) *History {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if history, exists := p.history[id]; exists {
		historyCopy := *history
		historyCopy.RestartTimes = make([]time.Time, len(history.RestartTimes))
		copy(historyCopy.RestartTimes, history.RestartTimes)
		return &historyCopy
	}
	return nil
}

// Restarts returns the total number of reforks of slot id
// Restarts 返回槽位 id 的重新 fork 总次数
func (p *Policy) Restarts(id int) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if history, exists := p.history[id]; exists {
		return history.RestartCount
	}
	return 0
}

// Config returns the current configuration
// Config 返回当前配置
func (p *Policy) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}
