// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rules

import (
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/intel-go/nff-classifier/classifier"
	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/flow"
)

// LoadConfig reads classifier configuration from INI file. Keys of
// GLOBAL section override corresponding fields of cfg, keys which are
// absent leave fields unchanged. Policies of POLICY_1..POLICY_<NUM_POLICIES>
// sections are appended to cfg.Policies.
//
//	[GLOBAL]
//	INTERFACES = eth0,eth1
//	MODE = 4
//	QUEUE_MASK = 0x3
//	NUM_POLICIES = 2
//
//	[POLICY_1]
//	PORT = eth0
//	COS = udp
//	TERM = IPPROTO
//	VALUE = 11
//
//	[POLICY_2]
//	RULE = eth1:web:TCP_DPORT:0050:ffff
func LoadConfig(filepath string, cfg *flow.Config) error {
	common.LogDebug(common.Initialization, "Loading configuration from", filepath)
	file, err := ini.Load(filepath)
	if err != nil {
		return common.WrapWithNFError(err, "can't load configuration file "+filepath, common.FileErr)
	}
	global := file.Section(LblGlobal)
	if err := parseGlobal(global, cfg); err != nil {
		return err
	}
	if !global.HasKey(LblNumPolicies) {
		return nil
	}
	num, err := global.Key(LblNumPolicies).Int()
	if err != nil {
		return badValue(LblNumPolicies, err)
	}
	for i := 1; i <= num; i++ {
		name := LblPolicyPrefix + "_" + strconv.Itoa(i)
		section, err := file.GetSection(name)
		if err != nil {
			return common.WrapWithNFError(err, "section "+name+" is missing", common.BadArgument)
		}
		policy, err := parsePolicy(section)
		if err != nil {
			return err
		}
		common.LogDebug(common.Initialization, "Policy", i, ":", policy)
		cfg.Policies = append(cfg.Policies, policy)
	}
	return nil
}

func badValue(key string, err error) error {
	return common.WrapWithNFError(err, "bad value of "+key, common.BadArgument)
}

// parsePolicy builds policy string from RULE key or from separate keys.
// Policy is checked by classifier.ParsePolicy and returned in canonical
// form.
func parsePolicy(section *ini.Section) (string, error) {
	spec := section.Key(LblPolicy).String()
	if spec == "" {
		fields := []string{
			section.Key(LblPort).String(),
			section.Key(LblCoS).String(),
			section.Key(LblTerm).String(),
			section.Key(LblValue).String(),
		}
		if section.HasKey(LblMask) {
			fields = append(fields, section.Key(LblMask).String())
		}
		spec = strings.Join(fields, ":")
	}
	p, err := classifier.ParsePolicy(spec)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

// seconds parses plain number of seconds or Go duration string.
func seconds(key *ini.Key) (time.Duration, error) {
	if n, err := key.Int(); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return key.Duration()
}

func parseGlobal(section *ini.Section, cfg *flow.Config) error {
	var err error
	if section.HasKey(LblInterfaces) {
		cfg.Interfaces = section.Key(LblInterfaces).Strings(",")
	}
	if section.HasKey(LblMode) {
		n, err := section.Key(LblMode).Int()
		if err != nil {
			return badValue(LblMode, err)
		}
		if cfg.Mode, err = flow.ParseMode(n); err != nil {
			return err
		}
	}
	if section.HasKey(LblQueueMask) {
		mask, err := common.ParseMask(section.Key(LblQueueMask).String(), 32)
		if err != nil {
			return err
		}
		cfg.QueueMask = uint32(mask)
	}
	if section.HasKey(LblTime) {
		if cfg.Time, err = seconds(section.Key(LblTime)); err != nil {
			return badValue(LblTime, err)
		}
	}
	if section.HasKey(LblAccuracy) {
		if cfg.StatsInterval, err = seconds(section.Key(LblAccuracy)); err != nil {
			return badValue(LblAccuracy, err)
		}
		// Zero or negative accuracy turns periodic statistics off.
		if cfg.StatsInterval <= 0 {
			cfg.StatsInterval = -1
		}
	}

	flags := []struct {
		key string
		val *bool
	}{
		{LblSrcChange, &cfg.SrcChange},
		{LblDstChange, &cfg.DstChange},
		{LblErrorCheck, &cfg.ErrorCheck},
		{LblPinCores, &cfg.PinCores},
		{LblSharedPool, &cfg.SharedPool},
	}
	for _, f := range flags {
		if section.HasKey(f.key) {
			if *f.val, err = section.Key(f.key).Bool(); err != nil {
				return badValue(f.key, err)
			}
		}
	}

	numbers := []struct {
		key string
		val *int
	}{
		{LblWorkers, &cfg.Workers},
		{LblBurst, &cfg.BurstSize},
		{LblPoolSize, &cfg.PoolSize},
		{LblBufSize, &cfg.BufSize},
		{LblQueueDepth, &cfg.QueueDepth},
		{LblPMRCapacity, &cfg.PMRCapacity},
	}
	for _, n := range numbers {
		if section.HasKey(n.key) {
			if *n.val, err = section.Key(n.key).Int(); err != nil {
				return badValue(n.key, err)
			}
		}
	}

	if section.HasKey(LblCPUs) {
		cfg.CPUList = section.Key(LblCPUs).String()
	}
	if section.HasKey(LblMetrics) {
		cfg.MetricsAddr = section.Key(LblMetrics).String()
	}
	if section.HasKey(LblDropPolicy) {
		if cfg.DropPolicy, err = ParseDropPolicy(section.Key(LblDropPolicy).String()); err != nil {
			return err
		}
	}
	if section.HasKey(LblLog) {
		if cfg.LogType, err = common.ParseLogType(section.Key(LblLog).String()); err != nil {
			return err
		}
	}
	return nil
}

// ParseDropPolicy converts "pool" or "never" to classifier.DropPolicy.
func ParseDropPolicy(s string) (classifier.DropPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case LblDropPool:
		return classifier.DropPool, nil
	case LblDropNever:
		return classifier.DropNever, nil
	}
	return 0, common.WrapWithNFError(nil, "unknown drop policy "+s, common.BadArgument)
}
