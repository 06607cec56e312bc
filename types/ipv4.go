// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"strconv"
	"strings"
)

// IPv4Address keeps address bytes in network order in memory, so on
// little-endian hosts a.b.c.d is stored as d<<24 | c<<16 | b<<8 | a.
type IPv4Address uint32

// BytesToIPv4 converts four element address to IPv4Address representation
func BytesToIPv4(a byte, b byte, c byte, d byte) IPv4Address {
	return IPv4Address(d)<<24 | IPv4Address(c)<<16 | IPv4Address(b)<<8 | IPv4Address(a)
}

// ArrayToIPv4 converts four element array to IPv4Address representation
func ArrayToIPv4(a [IPv4AddrLen]byte) IPv4Address {
	return IPv4Address(a[3])<<24 | IPv4Address(a[2])<<16 | IPv4Address(a[1])<<8 | IPv4Address(a[0])
}

// SliceToIPv4 converts four element slice to IPv4Address representation
func SliceToIPv4(s []byte) IPv4Address {
	return IPv4Address(s[3])<<24 | IPv4Address(s[2])<<16 | IPv4Address(s[1])<<8 | IPv4Address(s[0])
}

// IPv4ToBytes converts IPv4Address to four bytes in network order
func IPv4ToBytes(v IPv4Address) [IPv4AddrLen]byte {
	return [IPv4AddrLen]uint8{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func (addr IPv4Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(addr), byte(addr>>8), byte(addr>>16), byte(addr>>24))
}

// StringToIPv4 parses dotted-decimal address. Exactly four octets
// in range 0-255 are accepted.
func StringToIPv4(ipaddr string) (IPv4Address, error) {
	octets := strings.Split(ipaddr, ".")
	if len(octets) != IPv4AddrLen {
		return 0, fmt.Errorf("bad IPv4 address %q: want %d octets, got %d", ipaddr, IPv4AddrLen, len(octets))
	}
	var b [IPv4AddrLen]byte
	for i, element := range octets {
		val, err := strconv.ParseUint(element, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("bad IPv4 address %q: octet %q is not in range 0-255", ipaddr, element)
		}
		b[i] = byte(val)
	}
	return ArrayToIPv4(b), nil
}
