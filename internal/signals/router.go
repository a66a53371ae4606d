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

// Package signals routes termination signals to the supervisor and its workers.
// signals 包将终止信号路由到 supervisor 及其 worker。
//
// The handler side only flips a shutdown flag and wakes the master loop.
// All logging, signalling of children and table updates happen in the loop itself.
// 处理器一侧只设置关闭标志并唤醒主循环，日志、向子进程发送信号以及进程表更新都在主循环中完成。
package signals

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// Termination signals handled by the router
// 路由器处理的终止信号
var (
	SigInt  os.Signal = syscall.SIGINT
	SigTerm os.Signal = syscall.SIGTERM
	SigKill os.Signal = syscall.SIGKILL
)

// Flag is a set-once shutdown flag. Once set it never resets.
// Flag 是只能设置一次的关闭标志，一旦设置便不会重置。
type Flag struct {
	set atomic.Bool
	sig atomic.Value
}

// Set marks the flag with the signal that caused shutdown.
// It returns true only for the call that actually set the flag.
// Set 用触发关闭的信号标记该标志，只有真正设置标志的那次调用返回 true。
func (f *Flag) Set(sig os.Signal) bool {
	if !f.set.CompareAndSwap(false, true) {
		return false
	}
	f.sig.Store(stored{sig})
	return true
}

// IsSet reports whether shutdown has been requested.
// IsSet 表示是否已请求关闭。
func (f *Flag) IsSet() bool {
	return f.set.Load()
}

// Signal returns the signal that set the flag, or nil.
// Signal 返回设置该标志的信号，未设置时返回 nil。
func (f *Flag) Signal() os.Signal {
	if v := f.sig.Load(); v != nil {
		return v.(stored).sig
	}
	return nil
}

// stored keeps the concrete type in the atomic.Value constant.
type stored struct {
	sig os.Signal
}

// Router delivers SIGINT/SIGTERM to the master loop.
// Router 将 SIGINT/SIGTERM 传递给主循环。
type Router struct {
	flag   *Flag
	notify chan os.Signal
	wake   chan os.Signal
	done   chan struct{}
	once   sync.Once
}

// NewRouter creates a router bound to flag without subscribing to OS signals.
// NewRouter 创建绑定到 flag 的路由器，但不订阅操作系统信号。
func NewRouter(flag *Flag) *Router {
	return &Router{
		flag: flag,
		wake: make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
}

// Install creates a router and subscribes it to SIGINT and SIGTERM.
// Install 创建路由器并订阅 SIGINT 和 SIGTERM。
func Install(flag *Flag) *Router {
	r := NewRouter(flag)
	r.notify = make(chan os.Signal, 4)
	signal.Notify(r.notify, SigInt, SigTerm)
	go r.pump()
	return r
}

func (r *Router) pump() {
	for {
		select {
		case sig := <-r.notify:
			r.Deliver(sig)
		case <-r.done:
			return
		}
	}
}

// Deliver is the handler body: set the flag and wake the loop.
// Signals arriving after the flag is set are dropped and Deliver returns false.
// Deliver 是处理器主体：设置标志并唤醒主循环。标志已设置后到达的信号会被丢弃，并返回 false。
func (r *Router) Deliver(sig os.Signal) bool {
	if !r.flag.Set(sig) {
		return false
	}
	select {
	case r.wake <- sig:
	default:
	}
	return true
}

// Wake yields the signal that started shutdown, at most once.
// Wake 最多产生一次触发关闭的信号。
func (r *Router) Wake() <-chan os.Signal {
	return r.wake
}

// Flag returns the shutdown flag the router sets.
// Flag 返回路由器设置的关闭标志。
func (r *Router) Flag() *Flag {
	return r.flag
}

// Stop unsubscribes from OS signals.
// Stop 取消对操作系统信号的订阅。
func (r *Router) Stop() {
	r.once.Do(func() {
		if r.notify != nil {
			signal.Stop(r.notify)
		}
		close(r.done)
	})
}

// Early subscription of a worker process, taken over by InstallWorker
// worker 进程的提前订阅，由 InstallWorker 接管
var (
	heldMu sync.Mutex
	held   chan os.Signal
)

// Hold subscribes to SIGINT and SIGTERM before the worker can act on them.
// A signal received in the meantime is kept for the next InstallWorker instead of
// killing the process. Calling Hold again before InstallWorker is a no-op.
// Hold 在 worker 能够处理信号之前订阅 SIGINT 和 SIGTERM，其间收到的信号会保留给下一次
// InstallWorker，而不会杀死进程。在 InstallWorker 之前重复调用 Hold 不做任何事。
func Hold() {
	heldMu.Lock()
	defer heldMu.Unlock()
	if held != nil {
		return
	}
	held = make(chan os.Signal, 1)
	signal.Notify(held, SigInt, SigTerm)
}

func takeHeld() chan os.Signal {
	heldMu.Lock()
	defer heldMu.Unlock()
	ch := held
	held = nil
	return ch
}

// InstallWorker subscribes a worker process to SIGINT and SIGTERM.
// It takes over the subscription of a previous Hold, including a signal already received.
// onSignal runs once, for the first signal only. The returned func unsubscribes.
// InstallWorker 为 worker 进程订阅 SIGINT 和 SIGTERM，并接管之前 Hold 的订阅（包括已收到的信号）。
// onSignal 仅在第一个信号时执行一次。返回的函数用于取消订阅。
func InstallWorker(onSignal func(os.Signal)) (stop func()) {
	ch := takeHeld()
	if ch == nil {
		ch = make(chan os.Signal, 1)
		signal.Notify(ch, SigInt, SigTerm)
	}
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-ch:
			onSignal(sig)
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}

// Name returns the conventional upper-case name of a signal, e.g. SIGTERM.
// Name 返回信号的常规大写名称，例如 SIGTERM。
func Name(sig os.Signal) string {
	switch sig {
	case nil:
		return "signal"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGABRT:
		return "SIGABRT"
	}
	return sig.String()
}
