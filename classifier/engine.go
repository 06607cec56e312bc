// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classifier

import (
	"strings"

	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/pktio"
)

// Engine selects CoS for packets. It is configured by Table and is
// read only afterwards, so Classify can be called concurrently.
type Engine struct {
	ports  []pktio.Device
	queues [GlobalQueueID + 1]*PhysicalQueue
	byPort []*PhysicalQueue
	pools  []*packet.Pool
	frozen bool
}

// NewEngine creates empty engine for ports.
func NewEngine(ports []pktio.Device) *Engine {
	return &Engine{
		ports:  ports,
		byPort: make([]*PhysicalQueue, len(ports)),
	}
}

// physicalQueue returns physical queue id, creating it on first use.
func (e *Engine) physicalQueue(id int, name string, port int) (*PhysicalQueue, error) {
	if pq := e.queues[id]; pq != nil {
		return pq, nil
	}
	if port >= len(e.ports) {
		return nil, common.WrapWithNFError(nil, "physical queue "+name+" refers to unknown port", common.WrongPort)
	}
	pq := &PhysicalQueue{ID: id, Name: name, Port: port}
	if port >= 0 {
		if e.byPort[port] != nil {
			return nil, common.WrapWithNFError(nil, "port "+e.ports[port].Name()+" is used by physical queues "+
				e.byPort[port].Name+" and "+name, common.WrongPort)
		}
		pq.dev = e.ports[port]
		e.byPort[port] = pq
	}
	e.queues[id] = pq
	return pq, nil
}

func (e *Engine) pmrCapacity(pq *PhysicalQueue) int {
	if pq.dev != nil {
		return pq.dev.PMRCapacity()
	}
	if !pq.IsGlobal() || len(e.ports) == 0 {
		return MaxRulesPerCoS
	}
	capacity := e.ports[0].PMRCapacity()
	for _, dev := range e.ports[1:] {
		if c := dev.PMRCapacity(); c < capacity {
			capacity = c
		}
	}
	return capacity
}

// BindPMRSet attaches cos with rules to physical queue pq after its
// already attached CoS. Device of the queue may accept fewer rules than
// requested, in this case the rest of rules are dropped with a warning.
// Returns number of accepted rules.
func (e *Engine) BindPMRSet(pq *PhysicalQueue, cos *CoS, rules []MatchRule) int {
	accepted := len(rules)
	if capacity := e.pmrCapacity(pq); capacity < accepted {
		accepted = capacity
		dropped := make([]string, 0, len(rules)-accepted)
		for _, r := range rules[accepted:] {
			dropped = append(dropped, r.String())
		}
		common.LogWarning(common.Initialization, "Device of", pq.Name, "accepted", accepted, "of", len(rules),
			"rules for", cos.Name+", dropped rules:", strings.Join(dropped, ", "))
	}
	cos.Rules = append([]MatchRule(nil), rules[:accepted]...)
	pq.CoS = append(pq.CoS, cos)
	return accepted
}

func (e *Engine) freeze() {
	e.frozen = true
}

// Classify returns CoS selected for packet received from port and
// physical queue which counts it. Explicit CoS of the port are tried in
// creation order, then global CoS, then default CoS of the port. Global
// CoS apply to every port, on a port without physical queue the matched
// packet is counted by the global queue. Returns nil CoS if nothing
// matched and port has no physical queue.
func (e *Engine) Classify(port int, pkt *packet.Packet) (*CoS, *PhysicalQueue) {
	if port < 0 || port >= len(e.byPort) {
		return nil, nil
	}
	pq := e.byPort[port]
	if pq != nil {
		for _, cos := range pq.CoS {
			if MatchAll(cos.Rules, pkt) {
				return cos, pq
			}
		}
	}
	if global := e.queues[GlobalQueueID]; global != nil {
		for _, cos := range global.CoS {
			if MatchAll(cos.Rules, pkt) {
				if pq == nil {
					return cos, global
				}
				return cos, pq
			}
		}
	}
	if pq == nil {
		return nil, nil
	}
	return pq.Default, pq
}

// PhysicalQueues returns configured physical queues in id order, global
// queue is the last one.
func (e *Engine) PhysicalQueues() []*PhysicalQueue {
	var out []*PhysicalQueue
	for _, pq := range e.queues {
		if pq != nil {
			out = append(out, pq)
		}
	}
	return out
}

// PortQueue returns physical queue bound to port or nil.
func (e *Engine) PortQueue(port int) *PhysicalQueue {
	if port < 0 || port >= len(e.byPort) {
		return nil
	}
	return e.byPort[port]
}

// Global returns global physical queue or nil.
func (e *Engine) Global() *PhysicalQueue {
	return e.queues[GlobalQueueID]
}

// ExplicitCoS returns every explicit CoS, global ones last.
func (e *Engine) ExplicitCoS() []*CoS {
	var out []*CoS
	for _, pq := range e.PhysicalQueues() {
		out = append(out, pq.CoS...)
	}
	return out
}

// AllCoS returns explicit CoS followed by default CoS.
func (e *Engine) AllCoS() []*CoS {
	out := e.ExplicitCoS()
	for _, pq := range e.PhysicalQueues() {
		if pq.Default != nil {
			out = append(out, pq.Default)
		}
	}
	return out
}

// Pools returns pools created for CoS.
func (e *Engine) Pools() []*packet.Pool {
	return e.pools
}

// Close disposes CoS queues and frees packets left in them.
func (e *Engine) Close() {
	for _, cos := range e.AllCoS() {
		if cos.Queue != nil {
			cos.Queue.Dispose()
		}
	}
}
