// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package common is used for combining common functions from other packages:
// logging, error codes, CPU lists and bit masks.
package common

import (
	"math/bits"
	"runtime"
	"strconv"
	"strings"
)

// GetDefaultCPUs returns default core list {0, 1, ..., cpuNumber-1}
func GetDefaultCPUs(cpuNumber int) []int {
	cpus := make([]int, cpuNumber, cpuNumber)
	for i := 0; i < cpuNumber; i++ {
		cpus[i] = i
	}
	return cpus
}

// ParseCPUs parses cpu list string like "0-3,8,10-11" into array of cpu
// numbers and truncates the list according to given coresNumber.
func ParseCPUs(s string, coresNumber int) ([]int, error) {
	cpus, err := parseCPUs(s)
	if err != nil {
		return []int{}, err
	}
	cpus = removeDuplicates(cpus)

	numCPU := runtime.NumCPU()
	for _, cpu := range cpus {
		if cpu >= numCPU {
			return []int{}, WrapWithNFError(nil, "requested cpu exceeds maximum cores number on machine", MaxCPUExceedErr)
		}
	}
	if coresNumber > 0 && len(cpus) > coresNumber {
		return cpus[:coresNumber], nil
	}
	return cpus, nil
}

func parseCPUs(s string) ([]int, error) {
	nums := make([]int, 0, 256)
	if s == "" {
		return nums, nil
	}
	for _, part := range strings.Split(s, ",") {
		bounds := strings.SplitN(part, "-", 2)
		first, err := strconv.Atoi(bounds[0])
		if err != nil {
			return nums, WrapWithNFError(err, "bad cpu list "+s, ParseCPUListErr)
		}
		if len(bounds) == 1 {
			nums = append(nums, first)
			continue
		}
		last, err := strconv.Atoi(bounds[1])
		if err != nil {
			return nums, WrapWithNFError(err, "bad cpu list "+s, ParseCPUListErr)
		}
		if first > last {
			return nums, WrapWithNFError(nil, "CPU range is invalid, min should not exceed max", InvalidCPURangeErr)
		}
		for k := first; k <= last; k++ {
			nums = append(nums, k)
		}
	}
	return nums, nil
}

func removeDuplicates(array []int) []int {
	result := []int{}
	seen := map[int]bool{}
	for _, val := range array {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}

// SetBits enumerates positions of set bits in mask, lowest first.
func SetBits(mask uint64) []int {
	positions := make([]int, 0, bits.OnesCount64(mask))
	for mask != 0 {
		pos := bits.TrailingZeros64(mask)
		positions = append(positions, pos)
		mask &^= 1 << uint(pos)
	}
	return positions
}

// ParseMask parses decimal, 0x-prefixed hexadecimal or 0b-prefixed binary
// bit mask of given width in bits.
func ParseMask(s string, width int) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, width)
	if err != nil {
		return 0, WrapWithNFError(err, "bad mask "+s, BadArgument)
	}
	return v, nil
}
