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

// Package worker runs the user job inside a worker process.
// worker 包在 worker 进程中运行用户任务。
//
// A worker learns its identity from environment variables set by the master.
// worker 通过 master 设置的环境变量获知自身身份。
package worker

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Environment variables passed from the master to each worker
// master 传递给每个 worker 的环境变量
const (
	EnvWorkerID    = "PREFORK_WORKER_ID"
	EnvWorkerCount = "PREFORK_WORKER_COUNT"
	EnvMasterPID   = "PREFORK_MASTER_PID"
	EnvName        = "PREFORK_NAME"
	EnvRunID       = "PREFORK_RUN_ID"
)

// ErrInvalidEnv indicates malformed worker environment variables
// ErrInvalidEnv 表示 worker 环境变量格式错误
var ErrInvalidEnv = errors.New("invalid worker environment")

// Context is the read-only identity of one worker process.
// Context 是一个 worker 进程的只读身份信息。
type Context struct {
	Name      string `json:"name"`       // 程序名 / Program name
	ID        int    `json:"id"`         // 0 到 Count-1 / 0 to Count-1
	Count     int    `json:"count"`      // worker 总数 / Total workers
	MasterPID int    `json:"master_pid"` // master 进程 ID / Master pid
	PID       int    `json:"pid"`        // 当前进程 ID / Own pid
	RunID     string `json:"run_id"`     // master 生成的运行 ID / Run id from the master
}

// Env renders the worker-mode environment for one identity
// Env 为一个身份生成 worker 模式的环境变量
func Env(name string, id, count, masterPID int, runID string) []string {
	return []string{
		EnvWorkerID + "=" + strconv.Itoa(id),
		EnvWorkerCount + "=" + strconv.Itoa(count),
		EnvMasterPID + "=" + strconv.Itoa(masterPID),
		EnvName + "=" + name,
		EnvRunID + "=" + runID,
	}
}

// FromEnv builds the worker context of the current process.
// ok is false when the process is not a worker.
// FromEnv 构建当前进程的 worker 上下文，当前进程不是 worker 时 ok 为 false。
func FromEnv() (wc *Context, ok bool, err error) {
	return FromLookup(os.LookupEnv, os.Getpid())
}

// FromLookup is FromEnv with an explicit environment lookup and pid
// FromLookup 是使用显式环境变量查找函数和 pid 的 FromEnv
func FromLookup(lookup func(string) (string, bool), pid int) (*Context, bool, error) {
	rawID, ok := lookup(EnvWorkerID)
	if !ok {
		return nil, false, nil
	}

	id, err := atoi(EnvWorkerID, rawID)
	if err != nil {
		return nil, true, err
	}
	rawCount, _ := lookup(EnvWorkerCount)
	count, err := atoi(EnvWorkerCount, rawCount)
	if err != nil {
		return nil, true, err
	}
	rawMaster, _ := lookup(EnvMasterPID)
	masterPID, err := atoi(EnvMasterPID, rawMaster)
	if err != nil {
		return nil, true, err
	}

	if count < 1 || id < 0 || id >= count {
		return nil, true, fmt.Errorf("%w: worker id %d outside [0, %d)", ErrInvalidEnv, id, count)
	}

	name, _ := lookup(EnvName)
	runID, _ := lookup(EnvRunID)
	return &Context{
		Name:      name,
		ID:        id,
		Count:     count,
		MasterPID: masterPID,
		PID:       pid,
		RunID:     runID,
	}, true, nil
}

func atoi(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidEnv, key, value)
	}
	return n, nil
}
