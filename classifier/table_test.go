// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classifier

import (
	"fmt"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/pktio"
	"github.com/intel-go/nff-classifier/scheduler"
)

func memPorts(pool *packet.Pool, opts pktio.Options, names ...string) []pktio.Device {
	ports := make([]pktio.Device, len(names))
	for i, name := range names {
		ports[i] = pktio.NewMemDevice(name, i, pool, opts, false)
	}
	return ports
}

func testEnv(ports []pktio.Device) MaterializeEnv {
	return MaterializeEnv{
		Ports:      ports,
		SharedPool: packet.GetPoolForTest(),
		SyncType:   scheduler.Plain,
		QueueDepth: 64,
	}
}

func configure(t *testing.T, mask uint32, ports []pktio.Device, policies ...string) *Engine {
	table := NewTable(mask)
	for _, p := range policies {
		require.NoError(t, table.AddPolicy(p), p)
	}
	e := NewEngine(ports)
	env := testEnv(ports)
	require.NoError(t, table.Materialize(e, env))
	require.NoError(t, table.MaterializeDefault(e, env))
	t.Cleanup(e.Close)
	return e
}

func TestPhysicalQueueAllocation(t *testing.T) {
	table := NewTable(0x5 | 1<<GlobalQueueID)
	id, err := table.PhysicalQueueID("eth1")
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	id, err = table.PhysicalQueueID("eth0")
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	id, err = table.PhysicalQueueID("eth1")
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	id, err = table.PhysicalQueueID("GLOBAL")
	require.NoError(t, err)
	assert.Equal(t, GlobalQueueID, id)

	_, err = table.PhysicalQueueID("eth2")
	assert.Equal(t, common.PhysicalQueuesExhausted, common.GetNFErrorCode(err))

	_, err = NewTable(0x1).PhysicalQueueID("global")
	assert.Equal(t, common.PhysicalQueuesExhausted, common.GetNFErrorCode(err))
}

func TestSoftQueueLimit(t *testing.T) {
	table := NewTable(0x1)
	for i := 0; i < MaxSoftQueues; i++ {
		require.NoError(t, table.AddPolicy(fmt.Sprintf("eth0:q%d:IPPROTO:%02x", i, i)))
	}
	assert.Equal(t, MaxSoftQueues, table.PolicyCount(0))
	err := table.AddPolicy("eth0:one-more:IPPROTO:11")
	assert.Equal(t, common.SoftQueuesExhausted, common.GetNFErrorCode(err))
	// Existing soft queue is still reachable.
	sid, err := table.SoftQueueIndex(0, "q3")
	require.NoError(t, err)
	assert.Equal(t, 3, sid)
}

func TestRuleLimit(t *testing.T) {
	table := NewTable(0x3)
	for i := 0; i < MaxRulesPerQueue; i++ {
		require.NoError(t, table.AddPolicy(fmt.Sprintf("eth0:q1:CUSTOM_FRAME%d:00:00", i)))
	}
	err := table.AddPolicy("eth0:q1:IPPROTO:11")
	assert.Equal(t, common.TooManyRules, common.GetNFErrorCode(err))
	assert.Len(t, table.Policies(), MaxRulesPerQueue)

	// Other physical queues have their own slots.
	assert.NoError(t, table.AddPolicy("eth1:q1:IPPROTO:11"))
}

func TestRuleLimitAcrossCoS(t *testing.T) {
	table := NewTable(0x1)
	for sq := 0; sq < 3; sq++ {
		for i := 0; i < 5; i++ {
			require.NoError(t, table.AddPolicy(fmt.Sprintf("eth0:q%d:CUSTOM_FRAME%d:00:00", sq, i)))
		}
	}
	// Rules of all CoS of one physical queue share its slots.
	for _, spec := range []string{"eth0:q0:IPPROTO:11", "eth0:q9:IPPROTO:06"} {
		err := table.AddPolicy(spec)
		assert.Equal(t, common.TooManyRules, common.GetNFErrorCode(err), spec)
	}
	assert.Len(t, table.Policies(), MaxRulesPerQueue)
	assert.Equal(t, 3, table.PolicyCount(0))
}

func TestMaterialize(t *testing.T) {
	ports := memPorts(packet.GetPoolForTest(), pktio.Options{}, "eth0", "eth1", "eth2")
	e := configure(t, 0x7|1<<GlobalQueueID, ports,
		"eth1:q1:IPPROTO:11",
		"eth1:q2:IPPROTO:06",
		"global:g:TCP_DPORT:50",
	)

	pqs := e.PhysicalQueues()
	require.Len(t, pqs, 4)
	// eth1 took the lowest bit, unnamed bits took the remaining ports.
	assert.Equal(t, "eth1", pqs[0].Name)
	assert.Equal(t, 1, pqs[0].Port)
	assert.Equal(t, "eth0", pqs[1].Name)
	assert.Equal(t, 0, pqs[1].Port)
	assert.Equal(t, "eth2", pqs[2].Name)
	assert.Equal(t, 2, pqs[2].Port)
	assert.True(t, pqs[3].IsGlobal())
	assert.Nil(t, pqs[3].Default)

	assert.Equal(t, 2, pqs[0].PolicyCount())
	assert.Equal(t, "q1 @eth1", pqs[0].CoS[0].Name)
	assert.Equal(t, "q2 @eth1", pqs[0].CoS[1].Name)
	assert.Equal(t, 1, pqs[0].CoS[1].SoftIndex)
	for _, pq := range pqs[:3] {
		require.NotNil(t, pq.Default)
		assert.Equal(t, "default @"+pq.Name, pq.Default.Name)
		assert.True(t, pq.Default.IsDefault())
		assert.Equal(t, scheduler.Plain, pq.Default.Queue.SyncType())
	}
	assert.Same(t, pqs[0].CoS[0], pqs[0].CoS[0].Queue.Context)
	assert.Len(t, e.AllCoS(), 6)
	assert.Empty(t, e.Pools())
}

func TestMaterializeOwnPools(t *testing.T) {
	ports := memPorts(packet.GetPoolForTest(), pktio.Options{}, "eth0")
	table := NewTable(0x1)
	require.NoError(t, table.AddPolicy("eth0:q1:IPPROTO:11"))
	e := NewEngine(ports)
	env := MaterializeEnv{Ports: ports, PoolSize: 16, BufSize: 256, SyncType: scheduler.Atomic, QueueDepth: 8}
	require.NoError(t, table.Materialize(e, env))
	require.NoError(t, table.MaterializeDefault(e, env))
	defer e.Close()

	assert.Len(t, e.Pools(), 2)
	cos := e.PortQueue(0).CoS[0]
	assert.Equal(t, 16, cos.Pool.Size())
	assert.Equal(t, scheduler.Atomic, cos.Queue.SyncType())
}

type noPMRDevice struct {
	*pktio.MemDevice
}

func (noPMRDevice) PMRCapacity() int { return 0 }

func TestMaterializeNoPMRCapacity(t *testing.T) {
	mem := pktio.NewMemDevice("eth0", 0, packet.GetPoolForTest(), pktio.Options{}, false)
	ports := []pktio.Device{noPMRDevice{mem}}
	table := NewTable(0x1)
	require.NoError(t, table.AddPolicy("eth0:q1:IPPROTO:11"))
	e := NewEngine(ports)
	defer e.Close()
	err := table.Materialize(e, testEnv(ports))
	assert.Equal(t, common.CreateCoSErr, common.GetNFErrorCode(err))
	// CoS without rules would catch every packet.
	assert.Empty(t, e.AllCoS())
}

func TestMaterializeErrors(t *testing.T) {
	ports := memPorts(packet.GetPoolForTest(), pktio.Options{}, "eth0")
	table := NewTable(0x1)
	require.NoError(t, table.AddPolicy("eth7:q1:IPPROTO:11"))
	err := table.Materialize(NewEngine(ports), testEnv(ports))
	assert.Equal(t, common.WrongPort, common.GetNFErrorCode(err))

	table = NewTable(0x1)
	require.NoError(t, table.AddPolicy("eth0:q1:IPPROTO:11"))
	e := NewEngine(ports)
	require.NoError(t, table.Materialize(e, testEnv(ports)))
	defer e.Close()
	err = table.AddPolicy("eth0:q2:IPPROTO:06")
	assert.Equal(t, common.ConfigFrozen, common.GetNFErrorCode(err))
	err = table.Materialize(e, testEnv(ports))
	assert.Equal(t, common.ConfigFrozen, common.GetNFErrorCode(err))
	require.NoError(t, table.MaterializeDefault(e, testEnv(ports)))
	err = table.MaterializeDefault(e, testEnv(ports))
	assert.Equal(t, common.ConfigFrozen, common.GetNFErrorCode(err))
}

func TestBindPMRSetCapacity(t *testing.T) {
	pool := packet.GetPoolForTest()
	ports := memPorts(pool, pktio.Options{PMRCapacity: 2}, "eth0")
	table := NewTable(0x1)
	for _, p := range []string{"eth0:q1:IPPROTO:06", "eth0:q1:TCP_DPORT:50", "eth0:q1:TCP_SPORT:ffff"} {
		require.NoError(t, table.AddPolicy(p))
	}
	e := NewEngine(ports)
	require.NoError(t, table.Materialize(e, testEnv(ports)))
	require.NoError(t, table.MaterializeDefault(e, testEnv(ports)))
	defer e.Close()

	cos := e.PortQueue(0).CoS[0]
	require.Len(t, cos.Rules, 2)
	// The third rule was dropped, so any TCP packet to port 80 matches.
	pkt := packet.GenerateTestPacket(pool, packet.TestFrame{Proto: layers.IPProtocolTCP, SrcPort: 1, DstPort: 80})
	defer pkt.Free()
	got, _ := e.Classify(0, pkt)
	assert.Same(t, cos, got)
}
