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

package supervisor

import (
	"time"

	"github.com/seatunnel/prefork/internal/process"
)

// State represents the lifecycle state of the supervisor
// State 表示 supervisor 的生命周期状态
type State string

const (
	// StateStarting covers detach, signal setup and the initial spawns
	// StateStarting 包括脱离终端、信号设置以及初始 worker 创建
	StateStarting State = "starting"

	// StateRunning indicates the master is supervising its workers
	// StateRunning 表示 master 正在监管 worker
	StateRunning State = "running"

	// StateShuttingDown indicates a termination signal was observed
	// StateShuttingDown 表示已观察到终止信号
	StateShuttingDown State = "shutting_down"

	// StateStopped indicates no workers are left and Start returned
	// StateStopped 表示没有剩余 worker 且 Start 已返回
	StateStopped State = "stopped"
)

// WorkerState represents the state of one worker slot
// WorkerState 表示一个 worker 槽位的状态
type WorkerState string

const (
	// WorkerRunning indicates the worker process is alive
	// WorkerRunning 表示 worker 进程存活
	WorkerRunning WorkerState = "running"

	// WorkerStopping indicates the shutdown signal was forwarded to the worker
	// WorkerStopping 表示已向 worker 转发关闭信号
	WorkerStopping WorkerState = "stopping"

	// WorkerExited indicates the worker process was reaped, reported by EventExited only
	// WorkerExited 表示 worker 进程已被回收，仅由 EventExited 报告
	WorkerExited WorkerState = "exited"
)

// WorkerInfo is a snapshot of one live worker
// WorkerInfo 是一个存活 worker 的快照
type WorkerInfo struct {
	ID        int         `json:"id"`
	PID       int         `json:"pid"`
	State     WorkerState `json:"state"`
	StartedAt time.Time   `json:"started_at"`
	Restarts  int         `json:"restarts"`
}

// EventType represents a supervisor lifecycle event
// EventType 表示 supervisor 生命周期事件
type EventType string

const (
	// EventStarted indicates a worker was spawned
	// EventStarted 表示已创建 worker
	EventStarted EventType = "started"

	// EventExited indicates a worker was reaped
	// EventExited 表示 worker 已被回收
	EventExited EventType = "exited"

	// EventReforked indicates an exited worker was replaced under the same id
	// EventReforked 表示已退出的 worker 以相同 ID 被替换
	EventReforked EventType = "reforked"

	// EventSignalled indicates the shutdown signal was forwarded to a worker
	// EventSignalled 表示已向 worker 转发关闭信号
	EventSignalled EventType = "signalled"

	// EventKilled indicates a worker was force-killed after the grace period
	// EventKilled 表示 worker 在宽限期后被强制杀死
	EventKilled EventType = "killed"

	// EventStateChanged indicates the supervisor changed state
	// EventStateChanged 表示 supervisor 状态发生变化
	EventStateChanged EventType = "state_changed"
)

// Event describes something that happened in the master loop
// Event 描述主循环中发生的事件
type Event struct {
	Type     EventType           `json:"type"`
	Time     time.Time           `json:"time"`
	WorkerID int                 `json:"worker_id"`
	PID      int                 `json:"pid,omitempty"`
	Status   *process.ExitStatus `json:"status,omitempty"` // EventExited only
	Signal   string              `json:"signal,omitempty"` // EventSignalled only
	State    State               `json:"state,omitempty"`  // EventStateChanged only

	// Worker is the worker state after the event, empty for EventStateChanged
	// Worker 是事件发生后的 worker 状态，EventStateChanged 时为空
	Worker WorkerState `json:"worker_state,omitempty"`
}

// EventHandler receives events synchronously from the master loop.
// It must not block and must not call Start.
// EventHandler 在主循环中同步接收事件，不得阻塞，也不得调用 Start。
type EventHandler func(event Event)
