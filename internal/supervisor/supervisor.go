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

// Package supervisor runs a master process that keeps a fixed number of worker processes alive.
// supervisor 包运行一个 master 进程，使固定数量的 worker 进程保持存活。
//
// This package provides:
// 此包提供：
// - Sequential spawning of workers with identities 0..N-1 / 按顺序创建身份为 0..N-1 的 worker
// - Refork of exited workers under the same identity / 以相同身份重新 fork 已退出的 worker
// - Graceful shutdown with a forced kill after the grace period / 优雅关闭，宽限期后强制杀死
//
// The same program is both master and worker. In a worker process Start runs the
// job and exits, in the master it supervises until shutdown.
// 同一个程序既是 master 也是 worker：在 worker 进程中 Start 运行任务后退出，在 master 中一直监管到关闭。
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seatunnel/prefork/internal/daemon"
	"github.com/seatunnel/prefork/internal/logger"
	"github.com/seatunnel/prefork/internal/process"
	"github.com/seatunnel/prefork/internal/restart"
	"github.com/seatunnel/prefork/internal/signals"
	"github.com/seatunnel/prefork/internal/worker"
)

// Common errors for the supervisor
// supervisor 的常见错误
var (
	// ErrSpawnFailed indicates a worker process could not be created
	// ErrSpawnFailed 表示无法创建 worker 进程
	ErrSpawnFailed = errors.New("failed to spawn worker")

	// ErrAlreadyStarted indicates Start was called twice
	// ErrAlreadyStarted 表示 Start 被调用了两次
	ErrAlreadyStarted = errors.New("supervisor already started")

	// ErrInvalidConfig indicates an unusable supervisor configuration
	// ErrInvalidConfig 表示不可用的 supervisor 配置
	ErrInvalidConfig = errors.New("invalid supervisor configuration")
)

// Default configuration values
// 默认配置值
const (
	DefaultName        = "prefork"
	DefaultGracePeriod = 1 * time.Second
)

// Config is the supervisor configuration, immutable after Start
// Config 是 supervisor 配置，Start 之后不可变
type Config struct {
	// Name labels worker processes as "<name> worker"
	// Name 将 worker 进程标记为 "<name> worker"
	Name string

	// Workers is the number of worker processes
	// Workers 是 worker 进程数量
	Workers int

	// Detach moves the master into the background before spawning
	// Detach 在创建 worker 之前将 master 移到后台
	Detach bool

	// Refork replaces exited workers while not shutting down
	// Refork 在未关闭时替换已退出的 worker
	Refork bool

	// GracePeriod is the time between the forwarded signal and SIGKILL
	// GracePeriod 是转发信号与 SIGKILL 之间的时间
	GracePeriod time.Duration

	// RotateInterval is how often the master checks the log file size, 0 disables it
	// RotateInterval 是 master 检查日志文件大小的间隔，0 表示不检查
	RotateInterval time.Duration
}

// DefaultConfig returns the default configuration for n workers
// DefaultConfig 返回 n 个 worker 的默认配置
func DefaultConfig(n int) Config {
	return Config{
		Name:        DefaultName,
		Workers:     n,
		Refork:      true,
		GracePeriod: DefaultGracePeriod,
	}
}

// Option configures a Supervisor
// Option 配置 Supervisor
type Option func(*Supervisor)

// WithLogger sets the base logger
// WithLogger 设置基础日志记录器
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithSpawner replaces the re-exec spawner
// WithSpawner 替换重新执行方式的 spawner
func WithSpawner(sp process.Spawner) Option {
	return func(s *Supervisor) {
		s.spawner = sp
	}
}

// WithDetacher replaces the re-exec detacher
// WithDetacher 替换重新执行方式的 detacher
func WithDetacher(d daemon.Detacher) Option {
	return func(s *Supervisor) {
		s.detacher = d
	}
}

// WithRestartPolicy replaces the policy built from Config.Refork
// WithRestartPolicy 替换根据 Config.Refork 构建的策略
func WithRestartPolicy(p *restart.Policy) Option {
	return func(s *Supervisor) {
		s.policy = p
	}
}

// WithEventHandler sets the event handler
// WithEventHandler 设置事件处理程序
func WithEventHandler(h EventHandler) Option {
	return func(s *Supervisor) {
		s.onEvent = h
	}
}

// WithNotifier replaces the systemd notifier
// WithNotifier 替换 systemd 通知器
func WithNotifier(n daemon.Notifier) Option {
	return func(s *Supervisor) {
		s.notifier = n
	}
}

// WithRotator enables periodic log rotation by the master
// WithRotator 启用由 master 执行的定期日志轮转
func WithRotator(r *logger.Rotator) Option {
	return func(s *Supervisor) {
		s.rotator = r
	}
}

// WithExit replaces os.Exit in worker processes
// WithExit 替换 worker 进程中的 os.Exit
func WithExit(exit func(code int)) Option {
	return func(s *Supervisor) {
		s.exit = exit
	}
}

// WithCrashOutput sets the file that receives worker crash reports
// WithCrashOutput 设置接收 worker 崩溃报告的文件
func WithCrashOutput(f *os.File) Option {
	return func(s *Supervisor) {
		s.crashOutput = f
	}
}

// record is the master-side bookkeeping for one live worker
// record 是 master 端对一个存活 worker 的记录
type record struct {
	id        int
	handle    process.Handle
	state     WorkerState
	startedAt time.Time
	restarts  int
	killed    bool
}

// exitEvent is posted by the waiter goroutine of each child
// exitEvent 由每个子进程的等待协程投递
type exitEvent struct {
	pid    int
	status process.ExitStatus
}

// Supervisor owns the live-worker table of one master process
// Supervisor 持有一个 master 进程的存活 worker 表
type Supervisor struct {
	cfg Config
	job worker.Job

	logger      *zap.Logger
	log         *zap.Logger
	spawner     process.Spawner
	detacher    daemon.Detacher
	notifier    daemon.Notifier
	policy      *restart.Policy
	rotator     *logger.Rotator
	onEvent     EventHandler
	exit        func(code int)
	crashOutput *os.File

	started atomic.Bool
	flag    signals.Flag
	exits   chan exitEvent

	mu        sync.RWMutex
	state     State
	table     map[int]*record
	router    *signals.Router
	masterPID int
	runID     string
}

// New creates a supervisor that runs job in cfg.Workers processes
// New 创建一个在 cfg.Workers 个进程中运行 job 的 supervisor
func New(cfg Config, job worker.Job, opts ...Option) (*Supervisor, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, cfg.Workers)
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job is required", ErrInvalidConfig)
	}

	s := &Supervisor{
		cfg:      cfg,
		job:      job,
		logger:   zap.NewNop(),
		notifier: daemon.NopNotifier{},
		exit:     os.Exit,
		state:    StateStarting,
		table:    make(map[int]*record),
		exits:    make(chan exitEvent, cfg.Workers),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy == nil {
		s.policy = restart.NewPolicy(restart.Config{Enabled: cfg.Refork})
	}
	if s.detacher == nil {
		s.detacher = &daemon.ReexecDetacher{}
	}
	s.log = s.logger
	return s, nil
}

// Config returns the configuration
// Config 返回配置
func (s *Supervisor) Config() Config {
	return s.cfg
}

// State returns the current lifecycle state
// State 返回当前生命周期状态
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RunID returns the id shared by the master and its workers, empty before Start
// RunID 返回 master 与其 worker 共享的运行 ID，Start 之前为空
func (s *Supervisor) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// Workers returns a snapshot of the live workers ordered by id
// Workers 返回按 ID 排序的存活 worker 快照
func (s *Supervisor) Workers() []WorkerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]WorkerInfo, 0, len(s.table))
	for pid, rec := range s.table {
		infos = append(infos, WorkerInfo{
			ID:        rec.id,
			PID:       pid,
			State:     rec.state,
			StartedAt: rec.startedAt,
			Restarts:  rec.restarts,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Signal requests shutdown as if sig had been delivered to the master.
// It reports whether this call started the shutdown.
// Signal 如同 master 收到 sig 一样请求关闭，返回本次调用是否触发了关闭。
func (s *Supervisor) Signal(sig os.Signal) bool {
	s.mu.RLock()
	r := s.router
	s.mu.RUnlock()
	if r == nil {
		return false
	}
	return r.Deliver(sig)
}

// Start runs the supervisor.
// In a worker process it runs the job and exits the process.
// In the master it returns once every worker is gone.
// Start 运行 supervisor：在 worker 进程中运行任务并退出进程，在 master 中等所有 worker 结束后返回。
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	wc, isWorker, err := worker.FromEnv()
	if err != nil {
		return err
	}
	if isWorker {
		signals.Hold()
		s.runWorker(wc)
		return nil
	}
	return s.runMaster(ctx)
}

// runWorker hands the process over to the worker runtime
// runWorker 将进程交给 worker 运行时
func (s *Supervisor) runWorker(wc *worker.Context) {
	opts := []worker.Option{worker.WithExit(s.exit)}
	if s.crashOutput != nil {
		opts = append(opts, worker.WithCrashOutput(s.crashOutput))
	}
	worker.NewRuntime(s.logger, opts...).Main(s.job, wc)
}

func (s *Supervisor) runMaster(ctx context.Context) error {
	// Detach before anything observable happens / 在任何可观察行为发生前脱离终端
	if s.cfg.Detach {
		if err := s.detacher.Detach(); err != nil {
			s.logger.Error("failed to detach", zap.Error(err))
			s.setState(StateStopped)
			return err
		}
	}

	if s.spawner == nil {
		sp, err := process.NewSelfSpawner()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSpawnFailed, err)
		}
		s.spawner = sp
	}

	router := signals.Install(&s.flag)
	defer router.Stop()

	s.mu.Lock()
	s.router = router
	s.masterPID = os.Getpid()
	s.runID = uuid.NewString()
	s.log = logger.Master(s.logger, s.masterPID, s.runID)
	s.mu.Unlock()

	s.log.Info("master started",
		zap.String("name", s.cfg.Name),
		zap.Int("workers", s.cfg.Workers),
		zap.Bool("refork", s.policy.Enabled()))

	for id := 0; id < s.cfg.Workers; id++ {
		// A signal during startup stops further spawns / 启动期间收到信号则停止继续创建
		if s.flag.IsSet() {
			break
		}
		if err := s.spawn(id, 0); err != nil {
			s.abort()
			s.setState(StateStopped)
			return err
		}
	}

	s.setState(StateRunning)
	if err := s.notifier.Ready(); err != nil {
		s.log.Warn("failed to notify readiness", zap.Error(err))
	}

	err := s.loop(ctx)
	s.setState(StateStopped)
	s.log.Info("master stopped")
	return err
}

// loop is the single goroutine that owns the table after startup
// loop 是启动后唯一持有进程表的协程
func (s *Supervisor) loop(ctx context.Context) error {
	var grace <-chan time.Time
	var graceTimer *time.Timer
	defer func() {
		if graceTimer != nil {
			graceTimer.Stop()
		}
	}()

	var rotate <-chan time.Time
	if s.rotator != nil && s.cfg.RotateInterval > 0 {
		ticker := time.NewTicker(s.cfg.RotateInterval)
		defer ticker.Stop()
		rotate = ticker.C
	}

	done := ctx.Done()
	wake := s.router.Wake()

	for s.live() > 0 {
		select {
		case ev := <-s.exits:
			if err := s.handleExit(ev); err != nil {
				return err
			}

		case sig := <-wake:
			wake = nil
			s.beginShutdown(sig)
			graceTimer = time.NewTimer(s.cfg.GracePeriod)
			grace = graceTimer.C

		case <-done:
			// Context cancellation behaves like SIGTERM / 上下文取消等同于 SIGTERM
			done = nil
			s.router.Deliver(signals.SigTerm)

		case <-grace:
			grace = nil
			s.killRemaining()

		case <-rotate:
			s.rotateLog()
		}
	}
	return nil
}

// spawn starts the worker for slot id and records it
// spawn 为槽位 id 启动 worker 并记录
func (s *Supervisor) spawn(id, restarts int) error {
	h, err := s.spawner.Spawn(process.Spec{
		Label: s.cfg.Name + " worker",
		Env:   worker.Env(s.cfg.Name, id, s.cfg.Workers, s.masterPID, s.runID),
	})
	if err != nil {
		s.log.Error("failed to spawn worker", zap.Int("worker", id), zap.Error(err))
		return fmt.Errorf("%w: worker %d: %w", ErrSpawnFailed, id, err)
	}

	pid := h.PID()
	s.mu.Lock()
	s.table[pid] = &record{
		id:        id,
		handle:    h,
		state:     WorkerRunning,
		startedAt: time.Now(),
		restarts:  restarts,
	}
	s.mu.Unlock()

	go func() {
		status := h.Wait()
		s.exits <- exitEvent{pid: pid, status: status}
	}()

	s.log.Info("worker started", zap.Int("worker", id), zap.Int("pid", pid))
	s.emit(Event{Type: EventStarted, WorkerID: id, PID: pid, Worker: WorkerRunning})
	return nil
}

// handleExit removes the exited worker and reforks its slot when allowed
// handleExit 移除已退出的 worker，并在允许时重新 fork 其槽位
func (s *Supervisor) handleExit(ev exitEvent) error {
	s.mu.Lock()
	rec, ok := s.table[ev.pid]
	if ok {
		rec.state = WorkerExited
		delete(s.table, ev.pid)
	}
	s.mu.Unlock()

	if !ok {
		s.log.Debug("ignoring exit of unknown process", zap.Int("pid", ev.pid))
		return nil
	}

	fields := []zap.Field{zap.Int("worker", rec.id), zap.Int("pid", ev.pid)}
	if ev.status.Success() {
		s.log.Info("process stopped with "+ev.status.String(), fields...)
	} else {
		s.log.Warn("process stopped with "+ev.status.String(), fields...)
	}
	status := ev.status
	s.emit(Event{Type: EventExited, WorkerID: rec.id, PID: ev.pid, Status: &status, Worker: rec.state})

	// The flag is checked before deciding to refork, never after
	// 在决定重新 fork 之前检查关闭标志
	if s.flag.IsSet() || !s.policy.Enabled() {
		return nil
	}

	now := time.Now()
	if !s.policy.Allow(rec.id, now) {
		s.log.Warn("worker exceeded restart limit, slot dropped",
			zap.Int("worker", rec.id),
			zap.Int("max_restarts", s.policy.Config().MaxRestarts),
			zap.Duration("window", s.policy.Config().TimeWindow))
		return nil
	}
	s.policy.Record(rec.id, now)

	if err := s.spawn(rec.id, rec.restarts+1); err != nil {
		s.flag.Set(signals.SigTerm)
		s.abort()
		return err
	}
	s.emit(Event{Type: EventReforked, WorkerID: rec.id, PID: s.pidOf(rec.id), Worker: WorkerRunning})
	return nil
}

// beginShutdown forwards sig to every live worker once
// beginShutdown 向每个存活 worker 转发一次 sig
func (s *Supervisor) beginShutdown(sig os.Signal) {
	s.setState(StateShuttingDown)
	s.log.Info(fmt.Sprintf("Received %s scheduling shutdown...", signals.Name(sig)))

	if err := s.notifier.Stopping(); err != nil {
		s.log.Warn("failed to notify stopping", zap.Error(err))
	}

	for _, pid := range s.pids() {
		s.mu.Lock()
		rec := s.table[pid]
		rec.state = WorkerStopping
		s.mu.Unlock()

		if err := rec.handle.Signal(sig); err != nil && !errors.Is(err, process.ErrProcessDone) {
			s.log.Warn("failed to signal worker", zap.Int("worker", rec.id), zap.Int("pid", pid), zap.Error(err))
		}
		s.emit(Event{Type: EventSignalled, WorkerID: rec.id, PID: pid, Signal: signals.Name(sig), Worker: WorkerStopping})
	}
}

// killRemaining force-kills every worker still alive after the grace period
// killRemaining 强制杀死宽限期后仍存活的所有 worker
func (s *Supervisor) killRemaining() {
	for _, pid := range s.pids() {
		s.mu.Lock()
		rec := s.table[pid]
		already := rec.killed
		rec.killed = true
		s.mu.Unlock()
		if already {
			continue
		}

		s.log.Warn("worker still running after grace period, killing",
			zap.Int("worker", rec.id), zap.Int("pid", pid), zap.Duration("grace_period", s.cfg.GracePeriod))
		if err := rec.handle.Kill(); err != nil && !errors.Is(err, process.ErrProcessDone) {
			s.log.Error("failed to kill worker", zap.Int("worker", rec.id), zap.Int("pid", pid), zap.Error(err))
		}
		s.emit(Event{Type: EventKilled, WorkerID: rec.id, PID: pid, Worker: rec.state})
	}
}

// abort kills every live worker and reaps them before a fatal return
// abort 在致命错误返回前杀死并回收所有存活 worker
func (s *Supervisor) abort() {
	s.killRemaining()
	for s.live() > 0 {
		ev := <-s.exits
		s.mu.Lock()
		rec, ok := s.table[ev.pid]
		if ok {
			rec.state = WorkerExited
			delete(s.table, ev.pid)
		}
		s.mu.Unlock()
		if ok {
			status := ev.status
			s.emit(Event{Type: EventExited, WorkerID: rec.id, PID: ev.pid, Status: &status, Worker: WorkerExited})
		}
	}
}

func (s *Supervisor) rotateLog() {
	rotated, err := s.rotator.RotateIfNeeded()
	if err != nil {
		s.log.Warn("failed to rotate log file", zap.Error(err))
		return
	}
	if rotated {
		s.log.Info("log file rotated")
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed {
		s.emit(Event{Type: EventStateChanged, WorkerID: -1, State: state})
	}
}

func (s *Supervisor) emit(ev Event) {
	if s.onEvent == nil {
		return
	}
	ev.Time = time.Now()
	s.onEvent(ev)
}

func (s *Supervisor) live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}

// pids returns the live pids in a stable order
// pids 以稳定顺序返回存活的 pid
func (s *Supervisor) pids() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pids := make([]int, 0, len(s.table))
	for pid := range s.table {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

func (s *Supervisor) pidOf(id int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for pid, rec := range s.table {
		if rec.id == id {
			return pid
		}
	}
	return 0
}
