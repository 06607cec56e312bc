// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"strconv"

	"github.com/intel-go/nff-classifier/classifier"
	"github.com/intel-go/nff-classifier/common"
)

// FindDestPort returns port packets received from port are sent to. For
// odd number of ports they form a ring, for even number ports are paired.
func FindDestPort(port, nports int) int {
	if nports%2 == 0 {
		return port ^ 1
	}
	return (port + 1) % nports
}

// BindWorkers assigns ports to workers. If there are more ports than
// workers, port i is handled by worker i % nworkers. Otherwise worker i
// handles port i % nports.
func BindWorkers(nports, nworkers int) [][]int {
	workers := make([][]int, nworkers)
	if nports > nworkers {
		for port := 0; port < nports; port++ {
			w := port % nworkers
			workers[w] = append(workers[w], port)
		}
		return workers
	}
	for w := range workers {
		workers[w] = []int{w % nports}
	}
	return workers
}

// PortQueues is number of queues of a port.
type PortQueues struct {
	RxQueues int
	TxQueues int
}

// PortBinding is a receive queue of one port and transmit queue of its
// destination port.
type PortBinding struct {
	RxPort  int
	TxPort  int
	RxQueue int
	TxQueue int
}

// ThreadBinding keeps queues polled by one direct mode worker.
type ThreadBinding struct {
	Thread int
	Ports  []PortBinding
}

// QueuesNeeded returns number of receive and transmit queues each port
// needs to give every worker its own queues.
func QueuesNeeded(workers [][]int, nports int) []PortQueues {
	need := make([]PortQueues, nports)
	for _, ports := range workers {
		for _, port := range ports {
			need[port].RxQueues++
			need[FindDestPort(port, nports)].TxQueues++
		}
	}
	for i := range need {
		if need[i].RxQueues == 0 {
			need[i].RxQueues = 1
		}
		if need[i].TxQueues == 0 {
			need[i].TxQueues = 1
		}
	}
	return need
}

// BindQueues gives every (worker, port) pair of workers the next receive
// queue of the port and the next transmit queue of destination port.
// Queue indexes wrap around number of queues, so several workers share a
// queue if port has too few of them.
func BindQueues(workers [][]int, ports []PortQueues) []ThreadBinding {
	rxNext := make([]int, len(ports))
	tx := NewTxQueueAllocator(ports)
	bindings := make([]ThreadBinding, len(workers))
	for w, wports := range workers {
		bindings[w].Thread = w
		for _, port := range wports {
			dst := FindDestPort(port, len(ports))
			bindings[w].Ports = append(bindings[w].Ports, PortBinding{
				RxPort:  port,
				TxPort:  dst,
				RxQueue: rxNext[port] % ports[port].RxQueues,
				TxQueue: tx.Next(dst),
			})
			rxNext[port]++
		}
	}
	return bindings
}

// TxQueueAllocator hands out transmit queue indexes of ports round-robin.
type TxQueueAllocator struct {
	ports []PortQueues
	next  []int
}

// NewTxQueueAllocator creates allocator for ports.
func NewTxQueueAllocator(ports []PortQueues) *TxQueueAllocator {
	return &TxQueueAllocator{ports: ports, next: make([]int, len(ports))}
}

// Next returns the next transmit queue of port.
func (a *TxQueueAllocator) Next(port int) int {
	q := a.next[port] % a.ports[port].TxQueues
	a.next[port]++
	return q
}

// Threads returns transmit queue of every port for one thread.
func (a *TxQueueAllocator) Threads() []int {
	queues := make([]int, len(a.ports))
	for port := range queues {
		queues[port] = a.Next(port)
	}
	return queues
}

// ThreadCount returns number of dispatch threads mode needs. Queue modes
// use one pump thread, one thread per explicit CoS and one default CoS
// thread per classified physical queue. Direct mode uses workers threads.
func ThreadCount(table *classifier.Table, mode Mode, workers int) (int, error) {
	count := workers
	if mode != DirectRecv {
		count = 1
		for _, pid := range table.ClassifiedQueues() {
			count += table.PolicyCount(pid) + 1
		}
		count += table.PolicyCount(classifier.GlobalQueueID)
	}
	if count > MaxThreads {
		return count, common.WrapWithNFError(nil, "configuration needs "+strconv.Itoa(count)+
			" threads, maximum is "+strconv.Itoa(MaxThreads), common.TooManyThreads)
	}
	return count, nil
}
