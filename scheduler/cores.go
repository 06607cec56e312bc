// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/intel-go/nff-classifier/common"
)

// Placement hands out cores from a core list round-robin. Roles started
// after every core is used share cores with earlier ones.
type Placement struct {
	cores     []int
	next      int
	usedCores int
	pin       bool
}

// NewPlacement creates placement over cores. If pin is false goroutines
// are only locked to OS threads without changing their affinity.
func NewPlacement(cores []int, pin bool) (*Placement, error) {
	if len(cores) == 0 {
		return nil, common.WrapWithNFError(nil, "core list is empty", common.NotEnoughCores)
	}
	return &Placement{cores: append([]int(nil), cores...), pin: pin}, nil
}

// Cores returns the core list.
func (p *Placement) Cores() []int {
	return p.cores
}

// UsedCores returns number of roles placed so far.
func (p *Placement) UsedCores() int {
	return p.usedCores
}

func (p *Placement) getCore() int {
	core := p.cores[p.next]
	p.next = (p.next + 1) % len(p.cores)
	p.usedCores++
	return core
}

// Go starts fn in group g on the next core of the list. name is used for
// logging only.
func (p *Placement) Go(ctx context.Context, g *errgroup.Group, name string, fn func(context.Context) error) {
	core := p.getCore()
	pin := p.pin
	if p.usedCores > len(p.cores) {
		common.LogWarning(common.Initialization, "Role", name, "shares core", core, "with another role")
	}
	common.LogDebug(common.Initialization, "Start", name, "at", core, "core")
	g.Go(func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if pin {
			if err := SetAffinity(core); err != nil {
				common.LogWarning(common.Initialization, "Can't pin", name, "to core", core, ":", err)
			}
		}
		return fn(ctx)
	})
}

// SetAffinity binds calling OS thread to core.
func SetAffinity(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return common.WrapWithNFError(err, "sched_setaffinity failed", common.SetAffinityErr)
	}
	return nil
}
