// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package classifier implements packet matching rules (PMR), class of
// service (CoS) table built from textual policies and classification
// engine which selects CoS for received packets.
//
// Policy syntax
//
// Every policy has the form
//	<physical-queue>:<soft-queue>:<TERM>:<value>[:<mask>]
// Physical queue is usually a name of input interface. Soft queue names
// a CoS attached to this physical queue. Physical queue "global" spans
// all interfaces. Supported terms:
//	IPPROTO              1 byte hex value and mask
//	TCP_SPORT, TCP_DPORT 2 byte hex value and mask
//	SIP_ADDR, DIP_ADDR   dotted-decimal address, 4 byte hex mask
//	CUSTOM_FRAME<offset> up to 8 raw hex bytes at frame offset, hex mask
// Term names are case insensitive, '-' and '_' are interchangeable and
// "ODP_PMR_" prefix is optional, so ODP_PMR_IPPROTO, ip-proto and IP_PROTO
// are the same term. Missing mask means all bits of field are compared.
package classifier

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/intel-go/nff-classifier/packet"
	"github.com/intel-go/nff-classifier/types"
)

// Limits of rules and queues.
const (
	// MaxRuleSize is maximum number of bytes compared by one rule.
	MaxRuleSize = 8
	// MaxRulesPerCoS is maximum number of rules attached to one CoS.
	MaxRulesPerCoS = 16
	// MaxPolicySlots is number of CoS slots of one physical queue,
	// one of them is reserved for default CoS.
	MaxPolicySlots = 16
	// MaxSoftQueues is maximum number of explicit CoS of one physical queue.
	MaxSoftQueues = MaxPolicySlots - 1
	// MaxRulesPerQueue is maximum total number of rules of explicit CoS
	// of one physical queue.
	MaxRulesPerQueue = MaxPolicySlots - 1
	// GlobalQueueID is id of pseudo physical queue which spans all ports.
	GlobalQueueID = 31
	// GlobalQueueName is name of global physical queue in policies.
	GlobalQueueName = "global"
)

// Term selects packet field compared by rule.
type Term int

// Supported terms.
const (
	TermIPProto Term = iota
	TermTCPSport
	TermTCPDport
	TermSrcAddr
	TermDstAddr
	TermCustomFrame
)

var termNames = [...]string{
	TermIPProto:     "IPPROTO",
	TermTCPSport:    "TCP_SPORT",
	TermTCPDport:    "TCP_DPORT",
	TermSrcAddr:     "SIP_ADDR",
	TermDstAddr:     "DIP_ADDR",
	TermCustomFrame: "CUSTOM_FRAME",
}

var termSizes = [...]int{
	TermIPProto:  1,
	TermTCPSport: 2,
	TermTCPDport: 2,
	TermSrcAddr:  types.IPv4AddrLen,
	TermDstAddr:  types.IPv4AddrLen,
}

func (t Term) String() string {
	if t < 0 || int(t) >= len(termNames) {
		return "UNKNOWN"
	}
	return termNames[t]
}

// MatchRule compares Size bytes of packet field with Value under Mask.
// Value and Mask keep bytes in network order. Offset is used by custom
// frame rules only.
type MatchRule struct {
	Term   Term
	Value  [MaxRuleSize]byte
	Mask   [MaxRuleSize]byte
	Size   int
	Offset int
}

// field returns packet bytes compared by rule or nil if packet doesn't
// have the field.
func (r *MatchRule) field(pkt *packet.Packet) []byte {
	switch r.Term {
	case TermIPProto:
		return pkt.IPProtoField()
	case TermTCPSport:
		return pkt.TCPSrcPortField()
	case TermTCPDport:
		return pkt.TCPDstPortField()
	case TermSrcAddr:
		return pkt.IPv4SrcField()
	case TermDstAddr:
		return pkt.IPv4DstField()
	case TermCustomFrame:
		return pkt.Field(r.Offset, r.Size)
	}
	return nil
}

// Match reports whether (field & Mask) == (Value & Mask) for packet.
// Packets without the field never match.
func (r *MatchRule) Match(pkt *packet.Packet) bool {
	f := r.field(pkt)
	if len(f) < r.Size {
		return false
	}
	for i := 0; i < r.Size; i++ {
		if f[i]&r.Mask[i] != r.Value[i]&r.Mask[i] {
			return false
		}
	}
	return true
}

// MatchAll reports whether every rule matches packet. Empty rule set
// matches everything.
func MatchAll(rules []MatchRule, pkt *packet.Packet) bool {
	for i := range rules {
		if !rules[i].Match(pkt) {
			return false
		}
	}
	return true
}

// Masked returns Value & Mask.
func (r *MatchRule) Masked() (out [MaxRuleSize]byte) {
	for i := 0; i < r.Size; i++ {
		out[i] = r.Value[i] & r.Mask[i]
	}
	return out
}

// TermName returns canonical term name, including offset for custom
// frame rules.
func (r *MatchRule) TermName() string {
	if r.Term == TermCustomFrame {
		return r.Term.String() + strconv.Itoa(r.Offset)
	}
	return r.Term.String()
}

// String renders rule as TERM:value:mask in the same syntax ParseRule
// accepts. Hex digits are lower case and padded to field size.
func (r MatchRule) String() string {
	var value string
	switch r.Term {
	case TermSrcAddr, TermDstAddr:
		var b [types.IPv4AddrLen]byte
		copy(b[:], r.Value[:types.IPv4AddrLen])
		value = types.ArrayToIPv4(b).String()
	default:
		value = hex.EncodeToString(r.Value[:r.Size])
	}
	return fmt.Sprintf("%s:%s:%s", r.TermName(), value, hex.EncodeToString(r.Mask[:r.Size]))
}
