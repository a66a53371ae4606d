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

package daemon

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier reports supervisor lifecycle to a service manager
// Notifier 向服务管理器报告 supervisor 的生命周期
type Notifier interface {
	// Ready is sent once all initial workers are spawned
	// Ready 在所有初始 worker 创建完成后发送
	Ready() error

	// Stopping is sent when shutdown begins
	// Stopping 在开始关闭时发送
	Stopping() error
}

// SystemdNotifier speaks the sd_notify protocol. Outside systemd it does nothing.
// SystemdNotifier 使用 sd_notify 协议，不在 systemd 下运行时不做任何事。
type SystemdNotifier struct{}

// Ready sends READY=1
// Ready 发送 READY=1
func (SystemdNotifier) Ready() error {
	return notify(daemon.SdNotifyReady)
}

// Stopping sends STOPPING=1
// Stopping 发送 STOPPING=1
func (SystemdNotifier) Stopping() error {
	return notify(daemon.SdNotifyStopping)
}

func notify(state string) error {
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("sd_notify %s: %w", state, err)
	}
	return nil
}

// NopNotifier discards notifications
// NopNotifier 丢弃所有通知
type NopNotifier struct{}

func (NopNotifier) Ready() error    { return nil }
func (NopNotifier) Stopping() error { return nil }
