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
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/seatunnel/prefork/internal/process"
	"github.com/seatunnel/prefork/internal/worker"
)

// errForkFailed stands in for EAGAIN from the kernel
var errForkFailed = errors.New("resource temporarily unavailable")

// fakeSpawner hands out in-memory processes
type fakeSpawner struct {
	mu            sync.Mutex
	nextPID       int
	calls         int
	failAt        map[int]bool // 1-based Spawn call numbers that fail
	ignoreSignals bool
	handles       []*fakeHandle
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{nextPID: 1000, failAt: map[int]bool{}}
}

func (f *fakeSpawner) Spawn(spec process.Spec) (process.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failAt[f.calls] {
		return nil, errForkFailed
	}
	f.nextPID++
	h := &fakeHandle{
		pid:           f.nextPID,
		spec:          spec,
		id:            envInt(spec.Env, worker.EnvWorkerID),
		ignoreSignals: f.ignoreSignals,
		done:          make(chan process.ExitStatus, 1),
	}
	f.handles = append(f.handles, h)
	return h, nil
}

// spawnCount returns the number of successful spawns
func (f *fakeSpawner) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

// all returns every handle ever spawned
func (f *fakeSpawner) all() []*fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeHandle(nil), f.handles...)
}

// latest returns the newest handle for worker id
func (f *fakeSpawner) latest(id int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.handles) - 1; i >= 0; i-- {
		if f.handles[i].id == id {
			return f.handles[i]
		}
	}
	return nil
}

func envInt(env []string, key string) int {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			n, _ := strconv.Atoi(v)
			return n
		}
	}
	return -1
}

// fakeHandle is a process that exits when told to
type fakeHandle struct {
	pid           int
	id            int
	spec          process.Spec
	ignoreSignals bool

	mu      sync.Mutex
	signals []os.Signal
	kills   int
	exited  bool
	done    chan process.ExitStatus
}

func (h *fakeHandle) PID() int { return h.pid }

func (h *fakeHandle) Signal(sig os.Signal) error {
	h.mu.Lock()
	h.signals = append(h.signals, sig)
	ignore := h.ignoreSignals
	h.mu.Unlock()

	if !ignore {
		h.exit(process.ExitStatus{Code: process.ExitOK})
	}
	return nil
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	h.kills++
	h.mu.Unlock()
	h.exit(process.ExitStatus{Code: -1, Signal: "SIGKILL"})
	return nil
}

func (h *fakeHandle) Wait() process.ExitStatus {
	return <-h.done
}

// exit makes the process exit with status, once
func (h *fakeHandle) exit(status process.ExitStatus) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return false
	}
	h.exited = true
	h.done <- status
	return true
}

func (h *fakeHandle) crash() bool {
	return h.exit(process.ExitStatus{Code: process.ExitCrashed})
}

func (h *fakeHandle) signalCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.signals)
}

func (h *fakeHandle) killCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kills
}

// eventLog records events delivered by the master loop
type eventLog struct {
	mu     sync.Mutex
	events []Event
	notify chan Event
}

func newEventLog() *eventLog {
	return &eventLog{notify: make(chan Event, 1024)}
}

func (l *eventLog) handle(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	select {
	case l.notify <- ev:
	default:
	}
}

func (l *eventLog) count(t EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// workerStates returns the worker states reported by events of type t
func (l *eventLog) workerStates(t EventType) []WorkerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var states []WorkerState
	for _, ev := range l.events {
		if ev.Type == t {
			states = append(states, ev.Worker)
		}
	}
	return states
}

func (l *eventLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var states []State
	for _, ev := range l.events {
		if ev.Type == EventStateChanged {
			states = append(states, ev.State)
		}
	}
	return states
}

func noopJob(ctx context.Context, wc *worker.Context) error { return nil }
