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

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatunnel/prefork/internal/config"
)

// execute runs the root command with args and returns its output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		segCount, segTotal, segStart, segEnd = 0, 0, 0, 0
		for _, name := range []string{"count", "total", "start", "end"} {
			if f := segmentCmd.Flags().Lookup(name); f != nil {
				f.Changed = false
			}
		}
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// TestVersionCommand tests the version command
// TestVersionCommand 测试版本命令
func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    "+Version)
	assert.Contains(t, out, "Go Version:")
}

// TestRootCommand tests the command tree
// TestRootCommand 测试命令树
func TestRootCommand(t *testing.T) {
	assert.Equal(t, "prefork", rootCmd.Use)
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "segment", "version"})
}

// TestRunCommand_Help tests that the run help points finite jobs at --no-refork
// TestRunCommand_Help 测试 run 帮助信息提示有限任务使用 --no-refork
func TestRunCommand_Help(t *testing.T) {
	assert.Contains(t, runCmd.Long, "--no-refork")
	assert.Contains(t, runCmd.Long, "reforked whenever they exit")
	assert.Contains(t, runCmd.Flags().Lookup("no-refork").Usage, "jobs that finish")
}

// TestSegmentCommand tests the partition table for total=10, count=4
// TestSegmentCommand 测试 total=10、count=4 的分区表
func TestSegmentCommand(t *testing.T) {
	out, err := execute(t, "segment", "--count", "4", "--total", "10")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"ID", "START", "END", "SIZE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"0", "1", "3", "3"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"1", "4", "6", "3"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"2", "7", "8", "2"}, strings.Fields(lines[3]))
	assert.Equal(t, []string{"3", "9", "10", "2"}, strings.Fields(lines[4]))
}

// TestSegmentCommand_Range tests an explicit range with empty slices
// TestSegmentCommand_Range 测试包含空切片的显式范围
func TestSegmentCommand_Range(t *testing.T) {
	out, err := execute(t, "segment", "--count", "3", "--start", "10", "--end", "11")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"0", "10", "10", "1"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"1", "11", "11", "1"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"2", "-", "-", "0"}, strings.Fields(lines[3]))
}

// TestSegmentCommand_Invalid tests rejected partition requests
// TestSegmentCommand_Invalid 测试被拒绝的分区请求
func TestSegmentCommand_Invalid(t *testing.T) {
	_, err := execute(t, "segment", "--count", "0", "--total", "10")
	assert.Error(t, err)
}

// TestOverrides tests that only explicitly set flags override the configuration
// TestOverrides 测试只有显式设置的标志会覆盖配置
func TestOverrides(t *testing.T) {
	newRun := func() *cobra.Command {
		c := &cobra.Command{Use: "run"}
		c.Flags().IntVarP(&workers, "workers", "n", 0, "")
		c.Flags().BoolVarP(&detach, "detach", "d", false, "")
		c.Flags().BoolVar(&noRefork, "no-refork", false, "")
		c.Flags().IntVar(&total, "total", 0, "")
		return c
	}

	c := newRun()
	assert.Empty(t, overrides(c, nil))

	c = newRun()
	require.NoError(t, c.Flags().Parse([]string{"--workers", "8", "--no-refork", "--total", "100"}))
	values := overrides(c, []string{"/bin/echo", "hello"})
	assert.Equal(t, 8, values["supervisor.workers"])
	assert.Equal(t, false, values["supervisor.refork"])
	assert.Equal(t, 100, values["job.total"])
	assert.Equal(t, config.JobTypeExec, values["job.type"])
	assert.Equal(t, "/bin/echo", values["job.command"])
	assert.Equal(t, []string{"hello"}, values["job.args"])
	assert.NotContains(t, values, "supervisor.detach")
}

// TestSupervisorConfig tests the conversion of the loaded configuration
// TestSupervisorConfig 测试加载配置的转换
func TestSupervisorConfig(t *testing.T) {
	cfg, err := config.LoadFromYAML([]byte(`
supervisor:
  name: crawler
  workers: 6
  refork: false
  grace_period: 3s
log:
  rotate_interval: 30s
`))
	require.NoError(t, err)

	sc := supervisorConfig(cfg)
	assert.Equal(t, "crawler", sc.Name)
	assert.Equal(t, 6, sc.Workers)
	assert.False(t, sc.Refork)
	assert.Equal(t, 3*time.Second, sc.GracePeriod)
	assert.Equal(t, 30*time.Second, sc.RotateInterval)
}
