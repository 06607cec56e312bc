//Package rules loads classifier configuration from INI files.
// Copyright (c) 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
package rules

//constants globals
const (
	LblGlobal = "GLOBAL"
)

// constants for global section
const (
	LblInterfaces   = "INTERFACES"
	LblMode         = "MODE"
	LblQueueMask    = "QUEUE_MASK"
	LblTime         = "TIME"
	LblAccuracy     = "ACCURACY"
	LblSrcChange    = "SRC_CHANGE"
	LblDstChange    = "DST_CHANGE"
	LblErrorCheck   = "ERROR_CHECK"
	LblCPUs         = "CPUS"
	LblPinCores     = "PIN_CORES"
	LblWorkers      = "WORKERS"
	LblBurst        = "BURST"
	LblPoolSize     = "POOL_SIZE"
	LblBufSize      = "BUF_SIZE"
	LblQueueDepth   = "QUEUE_DEPTH"
	LblSharedPool   = "SHARED_POOL"
	LblDropPolicy   = "DROP_POLICY"
	LblPMRCapacity  = "PMR_CAPACITY"
	LblMetrics      = "METRICS"
	LblLog          = "LOG"
	LblNumPolicies  = "NUM_POLICIES"
	LblPolicyPrefix = "POLICY"
)

// constants for policy sections
const (
	LblPolicy = "RULE"
	LblPort   = "PORT"
	LblCoS    = "COS"
	LblTerm   = "TERM"
	LblValue  = "VALUE"
	LblMask   = "MASK"
)

// drop policy names
const (
	LblDropPool  = "pool"
	LblDropNever = "never"
)
