// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package types keeps address types and protocol constants shared by
// packet parsing, rule compilation and device code.
package types

// Length of addresses.
const (
	EtherAddrLen = 6
	IPv4AddrLen  = 4
	IPv6AddrLen  = 16
)

// Supported EtherType for L2
const (
	IPV4Number = 0x0800
	ARPNumber  = 0x0806
	VLANNumber = 0x8100
	IPV6Number = 0x86dd
)

// Supported L4 types
const (
	ICMPNumber = 0x01
	TCPNumber  = 0x06
	UDPNumber  = 0x11
)

// These constants keep length of supported headers in bytes.
//
// IPv4MinLen and TCPMinLen are minimal lengths. In parsing we take actual
// length of IPv4 from Ihl field and of TCP from DataOff field.
const (
	EtherLen   = 14
	VLANLen    = 4
	IPv4MinLen = 20
	IPv6Len    = 40
	TCPMinLen  = 20
	UDPLen     = 8
)

const (
	IPv4VersionIhl = 0x45 // IPv4, IHL = 5 (min header len)
)
