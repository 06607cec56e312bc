// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flow is the main package of classifier system. It binds ports,
// CoS queues and worker threads together.
//
// Usage pattern:
//	cfg := flow.Config{Interfaces: ..., Mode: ..., Policies: ...}
//	system, err := flow.SystemInit(&cfg)
//	flow.CheckFatal(err)
//	flow.CheckFatal(system.Start(ctx))
//	flow.CheckFatal(system.Close())
package flow

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/intel-go/nff-classifier/classifier"
	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/pktio"
	"github.com/intel-go/nff-classifier/scheduler"
)

// System is configured classifier system. Its configuration can't be
// changed after SystemInit.
type System struct {
	cfg      Config
	ports    []pktio.Device
	ownPorts bool
	rxPool   *packet.Pool

	table     *classifier.Table
	engine    *classifier.Engine
	sched     *scheduler.Scheduler
	placement *scheduler.Placement

	threads  int
	bindings []ThreadBinding
	txQueues *TxQueueAllocator
	workers  []*WorkerStats

	unclassified uint64
	rxErrors     uint64

	server  *http.Server
	started int32
}

func (cfg *Config) setDefaults() {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = packet.DefaultPoolSize
	}
	if cfg.BufSize <= 0 {
		cfg.BufSize = packet.DefaultBufSize
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.PMRCapacity <= 0 {
		cfg.PMRCapacity = pktio.DefaultPMRCapacity
	}
	if cfg.StatsInterval == 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.LogType == 0 {
		cfg.LogType = common.No | common.Initialization
	}
}

// SystemInit checks configuration, opens ports, builds classifier and
// assigns threads to cores. Nothing is started until Start.
func SystemInit(args *Config) (s *System, err error) {
	cfg := *args
	cfg.Interfaces = append([]string(nil), args.Interfaces...)
	cfg.Policies = append([]string(nil), args.Policies...)
	cfg.setDefaults()
	common.SetLogType(cfg.LogType)
	common.LogTitle(common.Initialization, "------------***-------- Initializing classifier -------***------------")

	nports := len(cfg.Devices)
	if nports == 0 {
		nports = len(cfg.Interfaces)
	}
	if nports == 0 || nports > MaxPorts {
		return nil, common.WrapWithNFError(nil, "number of interfaces should be 1.."+strconv.Itoa(MaxPorts)+
			", got "+strconv.Itoa(nports), common.ReqTooManyPorts)
	}
	if cfg.Mode < DirectRecv || cfg.Mode > PlainQueue {
		return nil, common.WrapWithNFError(nil, "unknown mode "+cfg.Mode.String(), common.BadArgument)
	}

	s = &System{cfg: cfg, table: classifier.NewTable(cfg.QueueMask)}
	defer func() {
		if err != nil {
			s.Close()
			s = nil
		}
	}()

	if cfg.Mode != DirectRecv {
		for _, p := range cfg.Policies {
			if err := s.table.AddPolicy(p); err != nil {
				return s, err
			}
		}
	} else if len(cfg.Policies) != 0 {
		common.LogWarning(common.Initialization, "Policies are ignored in", cfg.Mode, "mode")
	}

	cpus := common.GetDefaultCPUs(runtime.NumCPU())
	if cfg.CPUList != "" {
		if cpus, err = common.ParseCPUs(cfg.CPUList, 0); err != nil {
			return s, err
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = len(cpus)
		if cfg.Workers > MaxThreads {
			cfg.Workers = MaxThreads
		}
		s.cfg.Workers = cfg.Workers
	}
	if s.threads, err = ThreadCount(s.table, cfg.Mode, cfg.Workers); err != nil {
		return s, err
	}
	if s.placement, err = scheduler.NewPlacement(cpus, cfg.PinCores); err != nil {
		return s, err
	}
	if s.threads > len(cpus) {
		common.LogWarning(common.Initialization, "Requested", s.threads, "threads, but only", len(cpus),
			"cores are available, threads will share cores")
	}

	var workers [][]int
	if cfg.Mode == DirectRecv {
		workers = BindWorkers(nports, cfg.Workers)
	}
	if err = s.openPorts(workers); err != nil {
		return s, err
	}

	queues := make([]PortQueues, len(s.ports))
	for i, dev := range s.ports {
		queues[i] = PortQueues{RxQueues: dev.RxQueues(), TxQueues: dev.TxQueues()}
	}
	if cfg.Mode == DirectRecv {
		s.bindings = BindQueues(workers, queues)
		s.workers = make([]*WorkerStats, len(s.bindings))
		for i := range s.workers {
			s.workers[i] = &WorkerStats{}
		}
		for _, b := range s.bindings {
			common.LogDebug(common.Initialization, "Thread", b.Thread, "polls", b.Ports)
		}
	} else {
		s.txQueues = NewTxQueueAllocator(queues)
		if err = s.initClassifier(); err != nil {
			return s, err
		}
	}

	if cfg.MetricsAddr != "" {
		if err = s.startServer(cfg.MetricsAddr); err != nil {
			return s, err
		}
	}
	common.LogTitle(common.Initialization, "------------***------ Classifier is configured ------***------------")
	return s, nil
}

func (s *System) openPorts(workers [][]int) error {
	if len(s.cfg.Devices) != 0 {
		s.ports = append([]pktio.Device(nil), s.cfg.Devices...)
		return nil
	}
	var err error
	if s.rxPool, err = packet.NewPool("rx", s.cfg.PoolSize, s.cfg.BufSize); err != nil {
		return err
	}
	s.ownPorts = true
	nports := len(s.cfg.Interfaces)
	var need []PortQueues
	if workers != nil {
		need = QueuesNeeded(workers, nports)
	}
	for i, uri := range s.cfg.Interfaces {
		opts := pktio.Options{
			RxQueues:    1,
			TxQueues:    s.threads,
			PMRCapacity: s.cfg.PMRCapacity,
			QueueDepth:  s.cfg.QueueDepth,
		}
		if need != nil {
			opts.RxQueues = need[i].RxQueues
			opts.TxQueues = need[i].TxQueues
		}
		dev, err := pktio.Open(uri, i, s.rxPool, opts)
		if err != nil {
			return err
		}
		s.ports = append(s.ports, dev)
	}
	return nil
}

func (s *System) initClassifier() error {
	env := classifier.MaterializeEnv{
		Ports:      s.ports,
		PoolSize:   s.cfg.PoolSize,
		BufSize:    s.cfg.BufSize,
		SyncType:   s.cfg.Mode.SyncType(),
		QueueDepth: s.cfg.QueueDepth,
		DropPolicy: s.cfg.DropPolicy,
	}
	if s.cfg.SharedPool {
		env.SharedPool = s.rxPool
		if env.SharedPool == nil {
			var err error
			if env.SharedPool, err = packet.NewPool("shared", s.cfg.PoolSize, s.cfg.BufSize); err != nil {
				return err
			}
		}
	}
	s.engine = classifier.NewEngine(s.ports)
	if err := s.table.Materialize(s.engine, env); err != nil {
		return err
	}
	if err := s.table.MaterializeDefault(s.engine, env); err != nil {
		return err
	}
	for _, pq := range s.engine.PhysicalQueues() {
		common.LogDebug(common.Initialization, "Physical queue", pq.ID, pq.Name, "port", pq.Port,
			"with", pq.PolicyCount(), "CoS")
	}
	if s.cfg.Mode.Scheduled() {
		var queues []*scheduler.Queue
		for _, cos := range s.engine.ExplicitCoS() {
			queues = append(queues, cos.Queue)
		}
		if len(queues) != 0 {
			var err error
			if s.sched, err = scheduler.NewScheduler(queues); err != nil {
				return err
			}
		}
	}
	return nil
}

// Start runs dispatch threads and blocks until ctx is canceled, Config.Time
// passes or one of threads fails. Start can be called only once.
func (s *System) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return common.WrapWithNFError(nil, "system is already started", common.ConfigFrozen)
	}
	if s.cfg.Time > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Time)
		defer cancel()
	}
	common.LogTitle(common.Initialization, "------------***--------- Starting classifier ---------***------------")
	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.Mode == DirectRecv {
		for i, b := range s.bindings {
			b, stats := b, s.workers[i]
			s.placement.Go(gctx, g, "worker"+strconv.Itoa(b.Thread), func(ctx context.Context) error {
				return s.directWorker(ctx, b, stats)
			})
		}
	} else {
		s.startQueueThreads(gctx, g)
	}
	if s.cfg.StatsInterval > 0 {
		g.Go(func() error {
			s.printStatsLoop(gctx)
			return nil
		})
	}
	err := g.Wait()
	if s.cfg.StatsInterval > 0 {
		s.PrintStats(os.Stdout)
	}
	return err
}

func (s *System) startQueueThreads(ctx context.Context, g *errgroup.Group) {
	s.placement.Go(ctx, g, "pump", s.pump)
	for i, cos := range s.engine.ExplicitCoS() {
		txq := s.txQueues.Threads()
		if s.sched == nil {
			cos := cos
			s.placement.Go(ctx, g, cos.Name, func(ctx context.Context) error {
				return s.plainWorker(ctx, cos, txq)
			})
			continue
		}
		w := s.sched.NewWorker()
		s.placement.Go(ctx, g, "scheduled worker "+strconv.Itoa(i), func(ctx context.Context) error {
			return s.scheduledWorker(ctx, w, txq)
		})
	}
	for _, pq := range s.engine.PhysicalQueues() {
		if pq.Default == nil {
			continue
		}
		pq := pq
		s.placement.Go(ctx, g, pq.Default.Name, func(ctx context.Context) error {
			return s.defaultDrain(ctx, pq)
		})
	}
}

func (s *System) printStatsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PrintStats(os.Stdout)
		}
	}
}

// Engine returns classifier engine. It is nil in direct mode.
func (s *System) Engine() *classifier.Engine {
	return s.engine
}

// Ports returns system ports in index order.
func (s *System) Ports() []pktio.Device {
	return s.ports
}

// Threads returns number of dispatch threads.
func (s *System) Threads() int {
	return s.threads
}

// Bindings returns queues polled by direct mode workers.
func (s *System) Bindings() []ThreadBinding {
	return s.bindings
}

// Close stops statistics server, frees packets left in CoS queues and
// closes ports opened by SystemInit. Close shouldn't be called while
// Start is running.
func (s *System) Close() error {
	var err error
	if s.server != nil {
		err = multierr.Append(err, s.server.Close())
		s.server = nil
	}
	if s.engine != nil {
		s.engine.Close()
		packet.ReportPoolsState(s.engine.Pools())
	}
	if s.ownPorts {
		for _, dev := range s.ports {
			err = multierr.Append(err, dev.Close())
		}
		s.ownPorts = false
	}
	return err
}

// CheckFatal is a default error handler for classifier functions. It
// prints error and stops the program if err isn't nil.
func CheckFatal(err error) {
	if err != nil {
		common.LogFatalf(common.No, "failed with message and code: %+v\n", err)
	}
}
