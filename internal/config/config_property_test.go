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
	"testing"
	"time"

	"pgregory.net/rapid"
)

// **Property: Config YAML Round-Trip**
// For any valid configuration, serializing to YAML and parsing back
// produces an equivalent configuration.
// 对于任何有效配置，序列化为 YAML 并解析回来应该产生等效的配置。
func TestProperty_ConfigYAMLRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := generateValidConfig(t)
		if err := cfg.Validate(); err != nil {
			t.Fatalf("generated config is invalid: %v", err)
		}

		yamlData, err := cfg.ToYAML()
		if err != nil {
			t.Fatalf("Failed to serialize config to YAML: %v", err)
		}

		parsedCfg, err := LoadFromYAML(yamlData)
		if err != nil {
			t.Fatalf("Failed to parse config from YAML: %v\nYAML content:\n%s", err, string(yamlData))
		}

		if !cfg.Equal(parsedCfg) {
			t.Fatalf("Round-trip failed\nOriginal: %+v\nParsed: %+v\nYAML:\n%s", cfg, parsedCfg, string(yamlData))
		}
	})
}

// generateValidConfig generates a valid Config for property testing
// generateValidConfig 为属性测试生成有效的 Config
func generateValidConfig(t *rapid.T) *Config {
	word := func(label string) string {
		return rapid.StringMatching(`[a-z]{1,4}-[a-z0-9]{1,8}`).Draw(t, label)
	}
	millis := func(label string, min int) time.Duration {
		return time.Duration(rapid.IntRange(min, 600000).Draw(t, label)) * time.Millisecond
	}

	jobType := rapid.SampledFrom([]string{JobTypeEcho, JobTypeExec}).Draw(t, "jobType")
	command := ""
	if jobType == JobTypeExec {
		command = "/usr/bin/" + word("command")
	}
	numArgs := rapid.IntRange(0, 4).Draw(t, "numArgs")
	args := make([]string, numArgs)
	for i := range args {
		args[i] = word("arg")
	}

	logFile := ""
	if rapid.Bool().Draw(t, "hasLogFile") {
		logFile = "/var/log/" + word("logFile") + ".log"
	}

	rangeStart := rapid.IntRange(-1000, 1000).Draw(t, "rangeStart")

	return &Config{
		Supervisor: SupervisorConfig{
			Name:          word("name"),
			Workers:       rapid.IntRange(1, 256).Draw(t, "workers"),
			Detach:        rapid.Bool().Draw(t, "detach"),
			Refork:        rapid.Bool().Draw(t, "refork"),
			GracePeriod:   millis("gracePeriod", 1),
			MaxRestarts:   rapid.IntRange(0, 20).Draw(t, "maxRestarts"),
			RestartWindow: millis("restartWindow", 1),
		},
		Log: LogConfig{
			Level:          rapid.SampledFrom([]string{"debug", "info", "warn", "error"}).Draw(t, "logLevel"),
			File:           logFile,
			MaxSize:        rapid.IntRange(0, 1000).Draw(t, "maxSize"),
			MaxBackups:     rapid.IntRange(0, 100).Draw(t, "maxBackups"),
			MaxAge:         rapid.IntRange(0, 365).Draw(t, "maxAge"),
			Compress:       rapid.Bool().Draw(t, "compress"),
			RotateInterval: millis("rotateInterval", 0),
		},
		Job: JobConfig{
			Type:       jobType,
			Total:      rapid.IntRange(0, 100000).Draw(t, "total"),
			RangeStart: rangeStart,
			RangeEnd:   rangeStart + rapid.IntRange(-1, 1000).Draw(t, "rangeLen"),
			Command:    command,
			Args:       args,
		},
	}
}
