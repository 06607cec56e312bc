// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"strconv"
	"time"

	"github.com/intel-go/nff-classifier/classifier"
	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/pktio"
	"github.com/intel-go/nff-classifier/scheduler"
)

// Mode selects how received packets reach worker threads.
type Mode int

// Dispatch modes.
const (
	// DirectRecv workers poll port queues and forward packets without
	// classification.
	DirectRecv Mode = iota
	// SchedParallel, SchedAtomic and SchedOrdered classify packets into
	// CoS queues served by scheduler with the respective sync type.
	SchedParallel
	SchedAtomic
	SchedOrdered
	// PlainQueue classifies packets into CoS queues, each queue is
	// polled by its own worker.
	PlainQueue
)

var modeNames = [...]string{
	DirectRecv:    "direct",
	SchedParallel: "sched-parallel",
	SchedAtomic:   "sched-atomic",
	SchedOrdered:  "sched-ordered",
	PlainQueue:    "plain-queue",
}

func (m Mode) String() string {
	if m < DirectRecv || m > PlainQueue {
		return "mode" + strconv.Itoa(int(m))
	}
	return modeNames[m]
}

// ParseMode converts command line mode number into Mode.
func ParseMode(n int) (Mode, error) {
	if n < int(DirectRecv) || n > int(PlainQueue) {
		return 0, common.WrapWithNFError(nil, "mode should be 0..4, got "+strconv.Itoa(n), common.BadArgument)
	}
	return Mode(n), nil
}

// Scheduled reports whether CoS queues are served by scheduler.
func (m Mode) Scheduled() bool {
	return m >= SchedParallel && m <= SchedOrdered
}

// SyncType returns synchronization class of explicit CoS queues.
func (m Mode) SyncType() scheduler.SyncType {
	switch m {
	case SchedParallel:
		return scheduler.Parallel
	case SchedAtomic:
		return scheduler.Atomic
	case SchedOrdered:
		return scheduler.Ordered
	}
	return scheduler.Plain
}

// Limits of configuration.
const (
	MaxPorts   = 8
	MaxThreads = 32
)

// Default values of Config fields.
const (
	DefaultBurstSize     = 32
	DefaultQueueDepth    = 1024
	DefaultStatsInterval = 2 * time.Second
)

// Config is a struct with all parameters, which user can pass to
// classifier system. Zero values of numeric fields are replaced by
// defaults. SystemInit keeps its own copy, so Config can't be changed
// after it.
type Config struct {
	// Interfaces are port URIs accepted by pktio.Open, 1 to MaxPorts
	// entries. Ignored if Devices is set.
	Interfaces []string
	// Devices are already opened ports. System doesn't close them.
	Devices []pktio.Device
	// Mode is dispatch mode.
	Mode Mode
	// Policies are classification rules, see classifier.ParsePolicy.
	Policies []string
	// QueueMask selects classified physical queues. Bit 31 enables
	// global physical queue.
	QueueMask uint32
	// Time is run duration. Zero value means running until context of
	// Start is canceled.
	Time time.Duration
	// StatsInterval is period of statistics printing. Default value is
	// 2 seconds, negative value switches printing off.
	StatsInterval time.Duration
	// SrcChange sets Ethernet source address of sent packets to output
	// port address.
	SrcChange bool
	// DstChange sets Ethernet destination address of sent packets to
	// 02:00:00:00:00:(05+output port).
	DstChange bool
	// ErrorCheck drops received packets with malformed headers.
	ErrorCheck bool
	// CPUList specifies cores which can be used by workers, like
	// "0-3,8". All cores are used by default.
	CPUList string
	// PinCores binds worker threads to their cores.
	PinCores bool
	// Workers is number of direct mode workers. Default value is
	// number of cores in CPUList.
	Workers int
	// BurstSize is maximum number of packets processed at once. Default
	// value is 32.
	BurstSize int
	// PoolSize is number of packets in each pool. Default value is
	// 8191.
	PoolSize int
	// BufSize is packet buffer size. Default value is 2048.
	BufSize int
	// QueueDepth is depth of CoS queues. Default value is 1024.
	QueueDepth int
	// SharedPool makes every CoS use receive pool instead of its own.
	SharedPool bool
	// DropPolicy is applied when packet can't be copied to CoS pool.
	DropPolicy classifier.DropPolicy
	// PMRCapacity limits number of rules of one CoS accepted by ports
	// opened from Interfaces. Default value is 16.
	PMRCapacity int
	// MetricsAddr is TCP address of statistics HTTP server, for example
	// ":8080". Server is not started if empty.
	MetricsAddr string
	// LogType specifies logging type. Default value is common.No |
	// common.Initialization.
	LogType common.LogType
}
