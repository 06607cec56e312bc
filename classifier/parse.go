// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classifier

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/types"
)

const termPrefix = "ODP_PMR_"

// Policy is one parsed policy line: rule attached to soft queue SQName
// of physical queue PQName.
type Policy struct {
	PQName string
	SQName string
	Rule   MatchRule
}

func (p Policy) String() string {
	return p.PQName + ":" + p.SQName + ":" + p.Rule.String()
}

// ParsePolicy parses <pq-name>:<sq-name>:<TERM>:<value>[:<mask>].
func ParsePolicy(spec string) (Policy, error) {
	fields := strings.Split(strings.TrimSpace(spec), ":")
	if len(fields) < 4 || len(fields) > 5 {
		return Policy{}, common.WrapWithNFError(nil, "policy "+spec+" should have form <pq>:<sq>:<term>:<value>[:<mask>]", common.ParseRuleErr)
	}
	for i := 0; i < 3; i++ {
		if fields[i] == "" {
			return Policy{}, common.WrapWithNFError(nil, "empty field in policy "+spec, common.ParseRuleErr)
		}
	}
	if strings.EqualFold(fields[1], defaultCoSName) {
		return Policy{}, common.WrapWithNFError(nil, "soft queue name "+fields[1]+" is reserved", common.IncorrectArgInRules)
	}
	mask := ""
	if len(fields) == 5 {
		mask = fields[4]
	}
	rule, err := ParseRule(fields[2], fields[3], mask)
	if err != nil {
		return Policy{}, err
	}
	return Policy{PQName: fields[0], SQName: fields[1], Rule: rule}, nil
}

// ParseRule compiles term, value and optional mask into MatchRule.
func ParseRule(term, value, mask string) (MatchRule, error) {
	t, offset, err := parseTerm(term)
	if err != nil {
		return MatchRule{}, err
	}
	rule := MatchRule{Term: t, Offset: offset}
	switch t {
	case TermSrcAddr, TermDstAddr:
		addr, err := types.StringToIPv4(value)
		if err != nil {
			return MatchRule{}, common.WrapWithNFError(err, "bad address in rule "+term, common.IncorrectArgInRules)
		}
		rule.Size = types.IPv4AddrLen
		b := types.IPv4ToBytes(addr)
		copy(rule.Value[:], b[:])
	case TermCustomFrame:
		raw, err := hex.DecodeString(trimHexPrefix(value))
		if err != nil || len(raw) == 0 || len(raw) > MaxRuleSize {
			return MatchRule{}, common.WrapWithNFError(err, "custom frame value "+value+" should be 1 to 8 hex bytes", common.IncorrectArgInRules)
		}
		rule.Size = len(raw)
		copy(rule.Value[:], raw)
	default:
		rule.Size = termSizes[t]
		v, err := parseHex(value, rule.Size)
		if err != nil {
			return MatchRule{}, common.WrapWithNFError(err, "bad value "+value+" in rule "+term, common.IncorrectArgInRules)
		}
		putHex(rule.Value[:rule.Size], v)
	}
	if mask == "" {
		for i := 0; i < rule.Size; i++ {
			rule.Mask[i] = 0xff
		}
		return rule, nil
	}
	m, err := parseHex(mask, rule.Size)
	if err != nil {
		return MatchRule{}, common.WrapWithNFError(err, "bad mask "+mask+" in rule "+term, common.IncorrectArgInRules)
	}
	putHex(rule.Mask[:rule.Size], m)
	return rule, nil
}

func parseTerm(term string) (Term, int, error) {
	name := strings.ToUpper(strings.ReplaceAll(term, "-", "_"))
	name = strings.TrimPrefix(name, termPrefix)
	switch name {
	case "IPPROTO", "IP_PROTO":
		return TermIPProto, 0, nil
	case "TCP_SPORT":
		return TermTCPSport, 0, nil
	case "TCP_DPORT":
		return TermTCPDport, 0, nil
	case "SIP_ADDR", "SRC_ADDR":
		return TermSrcAddr, 0, nil
	case "DIP_ADDR", "DST_ADDR":
		return TermDstAddr, 0, nil
	}
	if suffix := strings.TrimPrefix(name, termNames[TermCustomFrame]); suffix != name {
		offset, err := strconv.Atoi(suffix)
		if err != nil || offset < 0 {
			return 0, 0, common.WrapWithNFError(err, "bad offset in term "+term, common.ParseRuleErr)
		}
		return TermCustomFrame, offset, nil
	}
	return 0, 0, common.WrapWithNFError(nil, "unknown term "+term, common.ParseRuleErr)
}

func trimHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

// parseHex parses hex number which fits into size bytes.
func parseHex(s string, size int) (uint64, error) {
	return strconv.ParseUint(trimHexPrefix(s), 16, 8*size)
}

// putHex stores v into b in network order.
func putHex(b []byte, v uint64) {
	var tmp [MaxRuleSize]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	copy(b, tmp[MaxRuleSize-len(b):])
}
