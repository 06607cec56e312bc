// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classifier

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/packet"
)

var validPolicies = []struct {
	spec      string
	canonical string
	term      Term
	size      int
	offset    int
}{
	{"eth0:q1:ODP_PMR_IPPROTO:11:ff", "eth0:q1:IPPROTO:11:ff", TermIPProto, 1, 0},
	{"eth0:q1:ip-proto:0x6", "eth0:q1:IPPROTO:06:ff", TermIPProto, 1, 0},
	{"eth0:web:TCP_DPORT:50:ffff", "eth0:web:TCP_DPORT:0050:ffff", TermTCPDport, 2, 0},
	{"eth1:q2:tcp-sport:1F90", "eth1:q2:TCP_SPORT:1f90:ffff", TermTCPSport, 2, 0},
	{"eth0:lan:SRC_ADDR:10.0.0.1:ffffff00", "eth0:lan:SIP_ADDR:10.0.0.1:ffffff00", TermSrcAddr, 4, 0},
	{"eth0:lan:odp_pmr_dip_addr:192.168.1.2", "eth0:lan:DIP_ADDR:192.168.1.2:ffffffff", TermDstAddr, 4, 0},
	{"global:all:CUSTOM_FRAME12:0800:ffff", "global:all:CUSTOM_FRAME12:0800:ffff", TermCustomFrame, 2, 12},
	{"eth0:c:custom-frame0:0011223344556677:ff", "eth0:c:CUSTOM_FRAME0:0011223344556677:00000000000000ff", TermCustomFrame, 8, 0},
}

func TestParsePolicyRoundTrip(t *testing.T) {
	for _, tt := range validPolicies {
		p, err := ParsePolicy(tt.spec)
		require.NoError(t, err, tt.spec)
		assert.Equal(t, tt.term, p.Rule.Term, tt.spec)
		assert.Equal(t, tt.size, p.Rule.Size, tt.spec)
		assert.Equal(t, tt.offset, p.Rule.Offset, tt.spec)
		assert.Equal(t, tt.canonical, p.String(), tt.spec)

		again, err := ParsePolicy(p.String())
		require.NoError(t, err, p.String())
		assert.Equal(t, p, again, tt.spec)
		assert.Equal(t, p.Rule.Masked(), again.Rule.Masked())
	}
}

func TestParseAddressLayout(t *testing.T) {
	p, err := ParsePolicy("eth0:q:SIP_ADDR:10.1.2.3:ffff0000")
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 1, 2, 3}, p.Rule.Value[:4])
	assert.Equal(t, []byte{0xff, 0xff, 0, 0}, p.Rule.Mask[:4])
}

func TestParsePolicyErrors(t *testing.T) {
	bad := []struct {
		spec string
		code common.ErrorCode
	}{
		{"eth0:q1:IPPROTO", common.ParseRuleErr},
		{"eth0:q1:IPPROTO:11:ff:00", common.ParseRuleErr},
		{"eth0::IPPROTO:11", common.ParseRuleErr},
		{"eth0:q1:UDP_SPORT:11", common.ParseRuleErr},
		{"eth0:q1:CUSTOM_FRAME:11", common.ParseRuleErr},
		{"eth0:q1:CUSTOM_FRAME1x:11", common.ParseRuleErr},
		{"eth0:q1:CUSTOM_FRAME-3:11", common.ParseRuleErr},
		{"eth0:default:IPPROTO:11", common.IncorrectArgInRules},
		{"eth0:q1:IPPROTO:111", common.IncorrectArgInRules},
		{"eth0:q1:IPPROTO:zz", common.IncorrectArgInRules},
		{"eth0:q1:IPPROTO:11:1ff", common.IncorrectArgInRules},
		{"eth0:q1:TCP_DPORT:10000", common.IncorrectArgInRules},
		{"eth0:q1:SIP_ADDR:10.0.0", common.IncorrectArgInRules},
		{"eth0:q1:SIP_ADDR:10.0.0.256", common.IncorrectArgInRules},
		{"eth0:q1:SIP_ADDR:10.0.0.1.5", common.IncorrectArgInRules},
		{"eth0:q1:DIP_ADDR:10.0.0.1:1ffffffff", common.IncorrectArgInRules},
		{"eth0:q1:CUSTOM_FRAME0:001122334455667788", common.IncorrectArgInRules},
		{"eth0:q1:CUSTOM_FRAME0:123", common.IncorrectArgInRules},
		{"eth0:q1:CUSTOM_FRAME0:12:1ffff", common.IncorrectArgInRules},
	}
	for _, tt := range bad {
		_, err := ParsePolicy(tt.spec)
		if assert.Error(t, err, tt.spec) {
			assert.Equal(t, tt.code, common.GetNFErrorCode(err), tt.spec)
		}
	}
}

// matchByDefinition is a direct rendition of masked comparison of frame
// bytes used to check MatchRule.Match.
func matchByDefinition(r MatchRule, field []byte) bool {
	if len(field) < r.Size {
		return false
	}
	for i := 0; i < r.Size; i++ {
		if field[i]&r.Mask[i] != r.Value[i]&r.Mask[i] {
			return false
		}
	}
	return true
}

func TestCustomFrameMatch(t *testing.T) {
	pool := packet.GetPoolForTest()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		frame := make([]byte, 20+rng.Intn(60))
		rng.Read(frame)
		pkt := pool.Alloc()
		require.NotNil(t, pkt)
		pkt.GeneratePacketFromByte(frame)

		var rules []MatchRule
		want := true
		for k := 0; k < 1+rng.Intn(3); k++ {
			r := MatchRule{Term: TermCustomFrame, Size: 1 + rng.Intn(MaxRuleSize), Offset: rng.Intn(len(frame) + 4)}
			rng.Read(r.Value[:r.Size])
			rng.Read(r.Mask[:r.Size])
			if rng.Intn(2) == 0 && r.Offset+r.Size <= len(frame) {
				copy(r.Value[:r.Size], frame[r.Offset:])
			}
			var field []byte
			if r.Offset+r.Size <= len(frame) {
				field = frame[r.Offset : r.Offset+r.Size]
			}
			want = want && matchByDefinition(r, field)
			assert.Equal(t, matchByDefinition(r, field), r.Match(pkt))
			rules = append(rules, r)
		}
		assert.Equal(t, want, MatchAll(rules, pkt))
		pkt.Free()
	}
}

func mustRule(t *testing.T, rule string) MatchRule {
	parts := strings.SplitN(rule, ":", 3)
	mask := ""
	if len(parts) == 3 {
		mask = parts[2]
	}
	r, err := ParseRule(parts[0], parts[1], mask)
	require.NoError(t, err, rule)
	return r
}

func TestHeaderMatch(t *testing.T) {
	pool := packet.GetPoolForTest()
	udp := packet.GenerateTestPacket(pool, packet.TestFrame{Proto: layers.IPProtocolUDP, SrcPort: 80, DstPort: 80})
	tcp := packet.GenerateTestPacket(pool, packet.TestFrame{Proto: layers.IPProtocolTCP, SrcPort: 1234, DstPort: 80})
	tcp6 := packet.GenerateTestPacket(pool, packet.TestFrame{Proto: layers.IPProtocolTCP, DstPort: 80, IPv6: true})
	vlan := packet.GenerateTestPacket(pool, packet.TestFrame{Proto: layers.IPProtocolTCP, DstPort: 80, VLAN: 7})
	defer packet.FreeBulk([]*packet.Packet{udp, tcp, tcp6, vlan})

	tests := []struct {
		rule string
		pkt  *packet.Packet
		want bool
	}{
		{"IPPROTO:11", udp, true},
		{"IPPROTO:11", tcp, false},
		{"IPPROTO:06", tcp6, true},
		{"IPPROTO:00:00", tcp, true},
		{"TCP_DPORT:0050", tcp, true},
		{"TCP_DPORT:0050", vlan, true},
		{"TCP_DPORT:0050", tcp6, true},
		// UDP ports are not TCP ports.
		{"TCP_DPORT:0050", udp, false},
		{"TCP_SPORT:04d2", tcp, true},
		{"TCP_SPORT:0400:ff00", tcp, true},
		{"TCP_SPORT:0400", tcp, false},
		{"SIP_ADDR:10.0.0.1", tcp, true},
		{"SIP_ADDR:10.0.0.0:ffffff00", udp, true},
		{"SIP_ADDR:10.0.1.0:ffffff00", udp, false},
		{"DIP_ADDR:192.168.1.2", vlan, true},
		{"DIP_ADDR:192.168.0.0:ffff0000", tcp6, false},
		{"CUSTOM_FRAME12:0800", tcp, true},
		{"CUSTOM_FRAME12:86dd", tcp6, true},
		{"CUSTOM_FRAME16:0800", vlan, true},
	}
	for _, tt := range tests {
		r := mustRule(t, tt.rule)
		assert.Equal(t, tt.want, r.Match(tt.pkt), tt.rule)
	}
}
