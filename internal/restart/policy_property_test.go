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

package restart

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// **Property: Refork count limit**
// Within the configured window a slot is reforked at most MaxRestarts times.
// 在配置的时间窗口内，一个槽位最多被重新 fork MaxRestarts 次。
func TestProperty_RestartCountLimit(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxRestarts := rapid.IntRange(1, 5).Draw(t, "maxRestarts")
		window := time.Duration(rapid.IntRange(60, 300).Draw(t, "window")) * time.Second
		id := rapid.IntRange(0, 64).Draw(t, "id")

		p := NewPolicy(Config{Enabled: true, MaxRestarts: maxRestarts, TimeWindow: window})
		now := time.Unix(1_700_000_000, 0)

		for i := 0; i < maxRestarts; i++ {
			if !p.Allow(id, now) {
				t.Fatalf("refork %d should be allowed (max %d)", i+1, maxRestarts)
			}
			p.Record(id, now)
		}

		if p.Allow(id, now) {
			t.Fatalf("refork must be denied after %d reforks", maxRestarts)
		}

		// Other slots are unaffected / 其他槽位不受影响
		if !p.Allow(id+1, now) {
			t.Fatalf("slot %d must not be limited by slot %d", id+1, id)
		}

		// After the window passes the slot is allowed again / 窗口过后槽位再次允许
		if !p.Allow(id, now.Add(window+time.Second)) {
			t.Fatalf("refork should be allowed after the window passed")
		}
	})
}

// **Property: Unlimited policy always reforks**
// With MaxRestarts == 0 and Enabled, every refork is allowed.
// MaxRestarts 为 0 且启用时，每次重新 fork 都被允许。
func TestProperty_UnlimitedAlwaysAllows(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 200).Draw(t, "reforks")
		p := NewPolicy(DefaultConfig())
		now := time.Unix(1_700_000_000, 0)

		for i := 0; i < n; i++ {
			if !p.Allow(0, now) {
				t.Fatalf("unlimited policy denied refork %d", i+1)
			}
			p.Record(0, now)
		}
		if got := p.Restarts(0); got != n {
			t.Fatalf("Restarts = %d, want %d", got, n)
		}
	})
}
