// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"net"
)

type MACAddress [EtherAddrLen]uint8

// MACToString return MAC address like string
func (mac MACAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// StringToMACAddress parses string and returns MACAddress.
func StringToMACAddress(str string) (MACAddress, error) {
	hw, err := net.ParseMAC(str)
	if err != nil {
		return MACAddress{}, err
	}
	if len(hw) != EtherAddrLen {
		return MACAddress{}, fmt.Errorf("%s is not an Ethernet MAC address", str)
	}
	return NetHWAddressToMAC(hw), nil
}

// NetHWAddressToMAC converts net.HardwareAddr to MACAddress address.
func NetHWAddressToMAC(hw net.HardwareAddr) MACAddress {
	var out MACAddress
	copy(out[:], hw)
	return out
}

// LocalMACAddress returns locally administered address 02:00:00:00:00:(base+index)
// used as synthetic destination of forwarded packets.
func LocalMACAddress(base int, index int) MACAddress {
	return MACAddress{0x02, 0x00, 0x00, 0x00, 0x00, byte(base + index)}
}
