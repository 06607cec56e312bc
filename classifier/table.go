// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classifier

import (
	"strconv"
	"strings"

	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/pktio"
	"github.com/intel-go/nff-classifier/scheduler"
)

type softEntry struct {
	name  string
	rules []MatchRule
}

type pqEntry struct {
	id    int
	name  string
	soft  []*softEntry
	rules int
}

// Table maps (physical queue, soft queue) pairs to rule sets. It is
// filled from policies during configuration and materialized into Engine
// once. Table is not safe for concurrent use.
type Table struct {
	mask    uint32
	entries [GlobalQueueID + 1]*pqEntry
	// named keeps ids of named physical queues in creation order.
	named        []int
	materialized bool
	frozen       bool
}

// NewTable creates table for physical queues selected by queueMask.
// Bit GlobalQueueID enables global physical queue.
func NewTable(queueMask uint32) *Table {
	return &Table{mask: queueMask}
}

// QueueMask returns physical queue mask.
func (t *Table) QueueMask() uint32 {
	return t.mask
}

// AddPolicy parses policy and adds its rule to the table.
func (t *Table) AddPolicy(spec string) error {
	p, err := ParsePolicy(spec)
	if err != nil {
		return err
	}
	return t.Add(p)
}

// Add appends rule of p to CoS identified by p.PQName and p.SQName,
// creating entries on first reference.
func (t *Table) Add(p Policy) error {
	if t.frozen || t.materialized {
		return common.WrapWithNFError(nil, "can't add policy "+p.String()+" after configuration", common.ConfigFrozen)
	}
	pid, err := t.PhysicalQueueID(p.PQName)
	if err != nil {
		return err
	}
	pq := t.entries[pid]
	if pq.rules >= MaxRulesPerQueue {
		return common.WrapWithNFError(nil, "too many rules for physical queue "+pq.name+
			", maximum is "+strconv.Itoa(MaxRulesPerQueue), common.TooManyRules)
	}
	sid, err := t.SoftQueueIndex(pid, p.SQName)
	if err != nil {
		return err
	}
	sq := pq.soft[sid]
	if len(sq.rules) >= MaxRulesPerCoS {
		return common.WrapWithNFError(nil, "too many rules for "+cosName(p.SQName, p.PQName)+
			", maximum is "+strconv.Itoa(MaxRulesPerCoS), common.TooManyRules)
	}
	sq.rules = append(sq.rules, p.Rule)
	pq.rules++
	common.LogDebug(common.Initialization, "Added rule", p.Rule, "to", cosName(p.SQName, p.PQName))
	return nil
}

// PhysicalQueueID finds physical queue by name or takes the lowest set
// bit of queue mask which is not named yet.
func (t *Table) PhysicalQueueID(name string) (int, error) {
	if strings.EqualFold(name, GlobalQueueName) {
		if t.mask&(1<<GlobalQueueID) == 0 {
			return 0, common.WrapWithNFError(nil, "global queue is not enabled in queue mask", common.PhysicalQueuesExhausted)
		}
		if t.entries[GlobalQueueID] == nil {
			t.entries[GlobalQueueID] = &pqEntry{id: GlobalQueueID, name: GlobalQueueName}
			t.named = append(t.named, GlobalQueueID)
		}
		return GlobalQueueID, nil
	}
	for _, id := range t.named {
		if t.entries[id].name == name {
			return id, nil
		}
	}
	for _, id := range t.ClassifiedQueues() {
		if t.entries[id] == nil {
			t.entries[id] = &pqEntry{id: id, name: name}
			t.named = append(t.named, id)
			return id, nil
		}
	}
	return 0, common.WrapWithNFError(nil, "no free physical queue in mask 0x"+
		strconv.FormatUint(uint64(t.mask), 16)+" for "+name, common.PhysicalQueuesExhausted)
}

// SoftQueueIndex finds soft queue of physical queue pid by name or
// allocates the next index.
func (t *Table) SoftQueueIndex(pid int, name string) (int, error) {
	if pid < 0 || pid > GlobalQueueID || t.entries[pid] == nil {
		return 0, common.WrapWithNFError(nil, "unknown physical queue "+strconv.Itoa(pid), common.BadArgument)
	}
	pq := t.entries[pid]
	for i, sq := range pq.soft {
		if sq.name == name {
			return i, nil
		}
	}
	if len(pq.soft) >= MaxSoftQueues {
		return 0, common.WrapWithNFError(nil, "too many soft queues for "+pq.name+
			", maximum is "+strconv.Itoa(MaxSoftQueues), common.SoftQueuesExhausted)
	}
	pq.soft = append(pq.soft, &softEntry{name: name})
	return len(pq.soft) - 1, nil
}

// ClassifiedQueues returns ids of physical queues enabled in mask, except
// the global one.
func (t *Table) ClassifiedQueues() []int {
	return common.SetBits(uint64(t.mask &^ (1 << GlobalQueueID)))
}

// PolicyCount returns number of soft queues of physical queue pid.
func (t *Table) PolicyCount(pid int) int {
	if pid < 0 || pid > GlobalQueueID || t.entries[pid] == nil {
		return 0
	}
	return len(t.entries[pid].soft)
}

// Policies returns all rules of the table in creation order.
func (t *Table) Policies() []Policy {
	var out []Policy
	for _, id := range t.named {
		pq := t.entries[id]
		for _, sq := range pq.soft {
			for _, r := range sq.rules {
				out = append(out, Policy{PQName: pq.name, SQName: sq.name, Rule: r})
			}
		}
	}
	return out
}

// Freeze forbids further changes of the table.
func (t *Table) Freeze() {
	t.frozen = true
}

// MaterializeEnv holds resources and parameters used to materialize
// table.
type MaterializeEnv struct {
	Ports []pktio.Device
	// SharedPool is used by every CoS if set, otherwise each CoS gets
	// its own pool of PoolSize packets.
	SharedPool *packet.Pool
	PoolSize   int
	BufSize    int
	// SyncType is synchronization class of explicit CoS queues. Default
	// CoS queues are always plain.
	SyncType   scheduler.SyncType
	QueueDepth int
	DropPolicy DropPolicy
}

func (env *MaterializeEnv) pool(name string) (*packet.Pool, bool, error) {
	if env.SharedPool != nil {
		return env.SharedPool, false, nil
	}
	size, bufSize := env.PoolSize, env.BufSize
	if size <= 0 {
		size = packet.DefaultPoolSize
	}
	if bufSize <= 0 {
		bufSize = packet.DefaultBufSize
	}
	pool, err := packet.NewPool(name, size, bufSize)
	return pool, true, err
}

func (env *MaterializeEnv) portByName(name string) int {
	for i, dev := range env.Ports {
		if dev.Name() == name {
			return i
		}
	}
	return -1
}

func cosName(sq, pq string) string {
	return sq + " @" + pq
}

// Materialize creates CoS for every soft queue of the table in e. Rules
// are bound to physical queues with e.BindPMRSet. Named physical queues
// are bound to ports with the same name.
func (t *Table) Materialize(e *Engine, env MaterializeEnv) error {
	if t.frozen || t.materialized || e.frozen {
		return common.WrapWithNFError(nil, "classifier is already configured", common.ConfigFrozen)
	}
	t.materialized = true
	for _, id := range t.named {
		entry := t.entries[id]
		port := -1
		if id != GlobalQueueID {
			if port = env.portByName(entry.name); port < 0 {
				return common.WrapWithNFError(nil, "policy refers to unknown interface "+entry.name, common.WrongPort)
			}
		}
		pq, err := e.physicalQueue(id, entry.name, port)
		if err != nil {
			return err
		}
		for i, sq := range entry.soft {
			name := cosName(sq.name, entry.name)
			if e.pmrCapacity(pq) <= 0 {
				return common.WrapWithNFError(nil, "device of "+entry.name+" accepts no rules for "+name, common.CreateCoSErr)
			}
			pool, owned, err := env.pool(name)
			if err != nil {
				return err
			}
			if owned {
				e.pools = append(e.pools, pool)
			}
			queue, err := scheduler.NewQueue(name, env.SyncType, env.QueueDepth)
			if err != nil {
				return err
			}
			cos := &CoS{
				Name:       name,
				PhysicalID: id,
				SoftIndex:  i,
				Queue:      queue,
				Pool:       pool,
				DropPolicy: env.DropPolicy,
			}
			queue.Context = cos
			e.BindPMRSet(pq, cos, sq.rules)
			common.LogDebug(common.Initialization, "Created CoS", name, "with", len(cos.Rules), "rules")
		}
	}
	return nil
}

// MaterializeDefault creates catch-all CoS for every physical queue set
// in mask and freezes table and engine. Unnamed physical queues are bound
// to the port with the same index if it is not used by a named queue,
// the rest of them take unused ports in order.
func (t *Table) MaterializeDefault(e *Engine, env MaterializeEnv) error {
	if t.frozen || e.frozen {
		return common.WrapWithNFError(nil, "classifier is already configured", common.ConfigFrozen)
	}
	claimed := make([]bool, len(env.Ports))
	var unnamed []int
	for _, id := range t.ClassifiedQueues() {
		if entry := t.entries[id]; entry != nil {
			if port := env.portByName(entry.name); port >= 0 {
				claimed[port] = true
			}
		} else {
			unnamed = append(unnamed, id)
		}
	}
	binding := map[int]int{}
	var rest []int
	for _, id := range unnamed {
		if id < len(claimed) && !claimed[id] {
			binding[id] = id
			claimed[id] = true
		} else {
			rest = append(rest, id)
		}
	}
	for _, id := range rest {
		binding[id] = -1
		for port := range claimed {
			if !claimed[port] {
				binding[id] = port
				claimed[port] = true
				break
			}
		}
	}

	for _, id := range t.ClassifiedQueues() {
		var name string
		port := -1
		if entry := t.entries[id]; entry != nil {
			name = entry.name
			port = env.portByName(name)
		} else if port = binding[id]; port >= 0 {
			name = env.Ports[port].Name()
		} else {
			name = "pq" + strconv.Itoa(id)
			common.LogWarning(common.Initialization, "Physical queue", id, "has no free interface, it receives nothing")
		}
		pq, err := e.physicalQueue(id, name, port)
		if err != nil {
			return err
		}
		cname := cosName(defaultCoSName, name)
		pool, owned, err := env.pool(cname)
		if err != nil {
			return err
		}
		if owned {
			e.pools = append(e.pools, pool)
		}
		queue, err := scheduler.NewQueue(cname, scheduler.Plain, env.QueueDepth)
		if err != nil {
			return err
		}
		cos := &CoS{
			Name:       cname,
			PhysicalID: id,
			SoftIndex:  -1,
			Queue:      queue,
			Pool:       pool,
			DropPolicy: env.DropPolicy,
		}
		queue.Context = cos
		pq.Default = cos
		common.LogDebug(common.Initialization, "Created default CoS", cname)
	}
	t.Freeze()
	e.freeze()
	return nil
}
