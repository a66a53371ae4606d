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
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/seatunnel/prefork/internal/process"
)

// poll waits until cond holds or the timeout passes
func poll(cond func() bool) bool {
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

// **Property: Refork convergence**
// With refork enabled and no shutdown signal, after any sequence of worker exits
// the number of live workers returns to the configured count, every id in
// [0, count) is held by exactly one worker, and no pid is reused.
// 启用重新 fork 且无关闭信号时，任意 worker 退出序列之后存活 worker 数量都会恢复到配置数量，
// [0, count) 中每个 ID 恰好由一个 worker 持有，且 pid 不会重复。
func TestProperty_ReforkConvergence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(1, 6).Draw(t, "count")
		exits := rapid.SliceOfN(rapid.IntRange(0, count-1), 1, 12).Draw(t, "exits")

		sp := newFakeSpawner()
		events := newEventLog()
		s, err := New(testConfig(count), noopJob, WithSpawner(sp), WithEventHandler(events.handle))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		go func() { errCh <- s.Start(ctx) }()

		if !poll(func() bool { return s.State() == StateRunning && len(s.Workers()) == count }) {
			t.Fatalf("supervisor did not reach %d running workers", count)
		}

		for i, id := range exits {
			code := rapid.SampledFrom([]int{process.ExitOK, process.ExitCrashed, 1}).Draw(t, "code")
			sp.latest(id).exit(process.ExitStatus{Code: code})

			reforks := i + 1
			if !poll(func() bool {
				return events.count(EventReforked) == reforks && len(s.Workers()) == count
			}) {
				t.Fatalf("after exit %d of worker %d: %d workers, %d reforks", reforks, id, len(s.Workers()), events.count(EventReforked))
			}

			seen := make(map[int]bool)
			for _, w := range s.Workers() {
				if seen[w.ID] {
					t.Fatalf("worker id %d held twice", w.ID)
				}
				seen[w.ID] = true
			}
		}

		pids := make(map[int]bool)
		for _, fh := range sp.all() {
			if pids[fh.pid] {
				t.Fatalf("pid %d reused", fh.pid)
			}
			pids[fh.pid] = true
		}
		if sp.spawnCount() != count+len(exits) {
			t.Fatalf("spawned %d workers, want %d", sp.spawnCount(), count+len(exits))
		}

		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
		case <-time.After(waitTimeout):
			t.Fatalf("Start did not return after cancel")
		}
		if len(s.Workers()) != 0 {
			t.Fatalf("workers left after shutdown: %v", s.Workers())
		}
	})
}
