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

// Package main is the entry point of the prefork command.
// main 包是 prefork 命令的入口点。
//
// prefork runs a master process that keeps a fixed number of worker processes alive:
// prefork 运行一个 master 进程，维持固定数量的 worker 进程：
// - Each worker claims its slice of a work range / 每个 worker 领取工作范围中属于自己的切片
// - Exited workers are reforked with the same identity / 退出的 worker 以相同标识重新 fork
// - SIGINT/SIGTERM shut workers down, SIGKILL after the grace period / SIGINT/SIGTERM 关闭 worker，宽限期后发送 SIGKILL
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seatunnel/prefork/internal/config"
	"github.com/seatunnel/prefork/internal/daemon"
	"github.com/seatunnel/prefork/internal/jobs"
	"github.com/seatunnel/prefork/internal/logger"
	"github.com/seatunnel/prefork/internal/restart"
	"github.com/seatunnel/prefork/internal/segment"
	"github.com/seatunnel/prefork/internal/signals"
	"github.com/seatunnel/prefork/internal/supervisor"
	"github.com/seatunnel/prefork/internal/worker"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// rootCmd is the root command for the prefork CLI
// rootCmd 是 prefork CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "prefork",
	Short: "prefork - master/worker process supervisor",
	Long: `prefork runs a job in a fixed number of worker processes.
prefork 在固定数量的 worker 进程中运行任务。

The master process:
master 进程负责：
- Spawns the workers and reforks the ones that exit / 创建 worker 并重新 fork 已退出的 worker
- Forwards SIGINT/SIGTERM and kills stragglers after the grace period / 转发 SIGINT/SIGTERM 并在宽限期后强杀
- Optionally detaches from the terminal / 可选地脱离终端运行`,
	SilenceUsage: true,
}

// runCmd starts the master
// runCmd 启动 master
var runCmd = &cobra.Command{
	Use:   "run [-- command args...]",
	Short: "Run the master and its workers / 运行 master 及其 worker",
	Long: `Run the master and its workers.
Without a command every worker prints the items of its range (echo job).
With a command every worker runs it once. When a range is configured
(--total or job.range_start/job.range_end), PREFORK_RANGE_START,
PREFORK_RANGE_END and PREFORK_RANGE_SIZE describe the worker's slice and
workers with an empty slice skip the command.

Workers are reforked whenever they exit, including after finishing normally.
Jobs that finish, such as the echo job or a one-shot command, therefore run
again and again: pass --no-refork to run them once.`,
	Example: `  prefork run --total 100 --no-refork
  prefork run -n 8 -- ./serve --port 8080`,
	RunE: runPrefork,
}

// segmentCmd prints the partition table
// segmentCmd 打印分区表
var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Print the range of every worker identity / 打印每个 worker 标识的范围",
	RunE:  runSegment,
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "prefork\n")
		fmt.Fprintf(out, "  Version:    %s\n", Version)
		fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "  Go Version: %s\n", runtime.Version())
		fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// configFile is the path to the configuration file
// configFile 是配置文件的路径
var configFile string

// run flags / run 命令标志
var (
	workers  int
	detach   bool
	noRefork bool
	total    int
)

// segment flags / segment 命令标志
var (
	segCount int
	segTotal int
	segStart int
	segEnd   int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: "+config.DefaultConfigPath+")")

	runCmd.Flags().IntVarP(&workers, "workers", "n", 0, "number of worker processes")
	runCmd.Flags().BoolVarP(&detach, "detach", "d", false, "detach from the terminal")
	runCmd.Flags().BoolVar(&noRefork, "no-refork", false, "do not replace exited workers (use for jobs that finish)")
	runCmd.Flags().IntVar(&total, "total", 0, "split [1, total] across the workers")

	segmentCmd.Flags().IntVar(&segCount, "count", 0, "number of worker identities")
	segmentCmd.Flags().IntVar(&segTotal, "total", 0, "split [1, total]")
	segmentCmd.Flags().IntVar(&segStart, "start", 0, "first item of an explicit range")
	segmentCmd.Flags().IntVar(&segEnd, "end", 0, "last item of an explicit range")
	_ = segmentCmd.MarkFlagRequired("count")
	segmentCmd.MarkFlagsMutuallyExclusive("total", "start")
	segmentCmd.MarkFlagsMutuallyExclusive("total", "end")
	segmentCmd.MarkFlagsRequiredTogether("start", "end")

	rootCmd.AddCommand(runCmd, segmentCmd, versionCmd)
}

// overrides collects the flags that were set explicitly, keyed by config key
// overrides 收集显式设置的标志，以配置键为键
func overrides(cmd *cobra.Command, args []string) map[string]interface{} {
	values := make(map[string]interface{})
	flags := cmd.Flags()
	if flags.Changed("workers") {
		values["supervisor.workers"] = workers
	}
	if flags.Changed("detach") {
		values["supervisor.detach"] = detach
	}
	if flags.Changed("no-refork") {
		values["supervisor.refork"] = !noRefork
	}
	if flags.Changed("total") {
		values["job.total"] = total
	}
	if len(args) > 0 {
		values["job.type"] = config.JobTypeExec
		values["job.command"] = args[0]
		values["job.args"] = args[1:]
	}
	return values
}

// supervisorConfig converts the loaded configuration for the supervisor
// supervisorConfig 将加载的配置转换为 supervisor 配置
func supervisorConfig(cfg *config.Config) supervisor.Config {
	return supervisor.Config{
		Name:           cfg.Supervisor.Name,
		Workers:        cfg.Supervisor.Workers,
		Detach:         cfg.Supervisor.Detach,
		Refork:         cfg.Supervisor.Refork,
		GracePeriod:    cfg.Supervisor.GracePeriod,
		RotateInterval: cfg.Log.RotateInterval,
	}
}

// runPrefork runs the master, or the job when started as a worker
// runPrefork 运行 master，作为 worker 启动时运行任务
func runPrefork(cmd *cobra.Command, args []string) error {
	// Load configuration / 加载配置
	cfg, err := config.LoadWithPriority(configFile, overrides(cmd, args))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Validate configuration / 验证配置
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// A detached process has no terminal / 脱离终端的进程没有终端输出
	log, file, err := logger.New(cfg.LoggerConfig(), logger.Options{
		Console: !daemon.Detached(),
		Stdout:  cmd.OutOrStdout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close(log, file) }()

	job, err := jobs.FromConfig(cfg.Job, cmd.OutOrStdout(), log)
	if err != nil {
		return err
	}

	opts := []supervisor.Option{
		supervisor.WithLogger(log),
		supervisor.WithDetacher(&daemon.ReexecDetacher{LogFile: cfg.Log.File}),
		supervisor.WithNotifier(daemon.SystemdNotifier{}),
		supervisor.WithRestartPolicy(restart.NewPolicy(cfg.RestartConfig())),
	}
	if file != nil {
		rotator := logger.NewRotator(file, cfg.LoggerConfig())
		defer func() { _ = rotator.Close() }()
		opts = append(opts,
			supervisor.WithRotator(rotator),
			supervisor.WithCrashOutput(file.File()))
	}

	s, err := supervisor.New(supervisorConfig(cfg), job, opts...)
	if err != nil {
		return err
	}
	if err := s.Start(context.Background()); err != nil {
		log.Error("master failed", zap.Error(err))
		return err
	}
	return nil
}

// runSegment prints one line per worker identity
// runSegment 为每个 worker 标识打印一行
func runSegment(cmd *cobra.Command, args []string) error {
	var (
		ranges []segment.Range
		err    error
	)
	if cmd.Flags().Changed("start") {
		ranges, err = segment.TableRange(segCount, segStart, segEnd)
	} else {
		ranges, err = segment.Table(segCount, segTotal)
	}
	if err != nil {
		return err
	}
	return printTable(cmd.OutOrStdout(), ranges)
}

func printTable(out io.Writer, ranges []segment.Range) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tEND\tSIZE")
	for id, r := range ranges {
		if r.Empty() {
			fmt.Fprintf(w, "%d\t-\t-\t0\n", id)
			continue
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", id, r.Start, r.End, r.Size)
	}
	return w.Flush()
}

func main() {
	// Workers keep forwarded signals until the job handler is installed
	// worker 在任务处理器安装之前保留转发来的信号
	if _, ok := os.LookupEnv(worker.EnvWorkerID); ok {
		signals.Hold()
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, supervisor.ErrSpawnFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
