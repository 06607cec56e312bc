// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nff-classifier/classifier"
	"github.com/intel-go/nff-classifier/common"
	"github.com/intel-go/nff-classifier/flow"
)

func writeConfig(t *testing.T, text string) string {
	name := filepath.Join(t.TempDir(), "classifier.ini")
	require.NoError(t, os.WriteFile(name, []byte(text), 0644))
	return name
}

func TestLoadConfig(t *testing.T) {
	name := writeConfig(t, `
[GLOBAL]
INTERFACES = eth0, eth1
MODE = 2
QUEUE_MASK = 0x80000003
TIME = 10
ACCURACY = 500ms
SRC_CHANGE = false
ERROR_CHECK = true
CPUS = 0-3
WORKERS = 2
BURST = 16
SHARED_POOL = true
DROP_POLICY = never
METRICS = :9090
LOG = init,verbose
NUM_POLICIES = 2

[POLICY_1]
PORT = eth0
COS = udp
TERM = ODP_PMR_IPPROTO
VALUE = 11
MASK = ff

[POLICY_2]
RULE = global:web:tcp-dport:50
`)
	cfg := flow.Config{SrcChange: true, Policies: []string{"eth1:q:IPPROTO:06"}, PoolSize: 100}
	require.NoError(t, LoadConfig(name, &cfg))

	assert.Equal(t, []string{"eth0", "eth1"}, cfg.Interfaces)
	assert.Equal(t, flow.SchedAtomic, cfg.Mode)
	assert.Equal(t, uint32(0x80000003), cfg.QueueMask)
	assert.Equal(t, 10*time.Second, cfg.Time)
	assert.Equal(t, 500*time.Millisecond, cfg.StatsInterval)
	assert.False(t, cfg.SrcChange)
	assert.True(t, cfg.ErrorCheck)
	assert.Equal(t, "0-3", cfg.CPUList)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 16, cfg.BurstSize)
	// Absent keys don't change config.
	assert.Equal(t, 100, cfg.PoolSize)
	assert.True(t, cfg.SharedPool)
	assert.Equal(t, classifier.DropNever, cfg.DropPolicy)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, common.No|common.Initialization|common.Verbose, cfg.LogType)
	assert.Equal(t, []string{
		"eth1:q:IPPROTO:06",
		"eth0:udp:IPPROTO:11:ff",
		"global:web:TCP_DPORT:0050:ffff",
	}, cfg.Policies)
}

func TestLoadConfigNoStats(t *testing.T) {
	for _, accuracy := range []string{"0", "-1", "0s"} {
		cfg := flow.Config{StatsInterval: time.Second}
		require.NoError(t, LoadConfig(writeConfig(t, "[GLOBAL]\nACCURACY = "+accuracy+"\n"), &cfg))
		assert.Equal(t, time.Duration(-1), cfg.StatsInterval, accuracy)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		text string
		code common.ErrorCode
	}{
		{"[GLOBAL]\nMODE = 9\n", common.BadArgument},
		{"[GLOBAL]\nMODE = x\n", common.BadArgument},
		{"[GLOBAL]\nQUEUE_MASK = 0x1ffffffff\n", common.BadArgument},
		{"[GLOBAL]\nTIME = soon\n", common.BadArgument},
		{"[GLOBAL]\nWORKERS = many\n", common.BadArgument},
		{"[GLOBAL]\nERROR_CHECK = maybe\n", common.BadArgument},
		{"[GLOBAL]\nDROP_POLICY = sometimes\n", common.BadArgument},
		{"[GLOBAL]\nLOG = loud\n", common.BadArgument},
		{"[GLOBAL]\nNUM_POLICIES = 1\n", common.BadArgument},
		{"[GLOBAL]\nNUM_POLICIES = 1\n[POLICY_1]\nPORT = eth0\nTERM = IPPROTO\nVALUE = 11\n", common.ParseRuleErr},
		{"[GLOBAL]\nNUM_POLICIES = 1\n[POLICY_1]\nRULE = eth0:q:IPPROTO:1ff\n", common.IncorrectArgInRules},
	}
	for _, tt := range tests {
		var cfg flow.Config
		err := LoadConfig(writeConfig(t, tt.text), &cfg)
		assert.Equal(t, tt.code, common.GetNFErrorCode(err), tt.text)
	}

	var cfg flow.Config
	err := LoadConfig(filepath.Join(t.TempDir(), "missing.ini"), &cfg)
	assert.Equal(t, common.FileErr, common.GetNFErrorCode(err))
}

func TestParseDropPolicy(t *testing.T) {
	p, err := ParseDropPolicy("Pool")
	require.NoError(t, err)
	assert.Equal(t, classifier.DropPool, p)
	p, err = ParseDropPolicy("never")
	require.NoError(t, err)
	assert.Equal(t, classifier.DropNever, p)
}
