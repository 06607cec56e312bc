// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"log"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// testPool is common for all tests
var testPool *Pool

const payloadSize = 100

// Addresses used by generated test frames.
var (
	TestSrcMAC = net.HardwareAddr{0x01, 0x11, 0x21, 0x31, 0x41, 0x51}
	TestDstMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	TestSrcIP  = net.IPv4(10, 0, 0, 1)
	TestDstIP  = net.IPv4(192, 168, 1, 2)
)

// GetPoolForTest returns pool shared by tests of one package.
func GetPoolForTest() *Pool {
	if testPool == nil {
		var err error
		if testPool, err = NewPool("test", DefaultPoolSize, DefaultBufSize); err != nil {
			log.Fatal(err)
		}
	}
	return testPool
}

// TestFrame describes frame generated by GenerateTestFrame.
type TestFrame struct {
	SrcIP, DstIP     net.IP
	Proto            layers.IPProtocol
	SrcPort, DstPort uint16
	VLAN             uint16
	IPv6             bool
	PayloadSize      int
}

// GenerateTestFrame serializes Ethernet frame described by tf. Zero
// addresses are replaced by TestSrcIP / TestDstIP.
func GenerateTestFrame(tf TestFrame) []byte {
	srcIP, dstIP := tf.SrcIP, tf.DstIP
	if srcIP == nil {
		srcIP = TestSrcIP
	}
	if dstIP == nil {
		dstIP = TestDstIP
	}
	payload := tf.PayloadSize
	if payload == 0 {
		payload = payloadSize
	}

	eth := &layers.Ethernet{
		SrcMAC:       TestSrcMAC,
		DstMAC:       TestDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	stack := []gopacket.SerializableLayer{eth}
	if tf.VLAN != 0 {
		eth.EthernetType = layers.EthernetTypeDot1Q
		stack = append(stack, &layers.Dot1Q{VLANIdentifier: tf.VLAN, Type: layers.EthernetTypeIPv4})
	}

	var network gopacket.NetworkLayer
	if tf.IPv6 {
		ip6 := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: tf.Proto,
			SrcIP:      net.ParseIP("2001:db8::1"),
			DstIP:      net.ParseIP("2001:db8::2"),
		}
		if tf.VLAN != 0 {
			stack[1].(*layers.Dot1Q).Type = layers.EthernetTypeIPv6
		} else {
			eth.EthernetType = layers.EthernetTypeIPv6
		}
		stack = append(stack, ip6)
		network = ip6
	} else {
		ip4 := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: tf.Proto,
			SrcIP:    srcIP.To4(),
			DstIP:    dstIP.To4(),
		}
		stack = append(stack, ip4)
		network = ip4
	}

	switch tf.Proto {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{SrcPort: layers.TCPPort(tf.SrcPort), DstPort: layers.TCPPort(tf.DstPort), Window: 1024}
		tcp.SetNetworkLayerForChecksum(network)
		stack = append(stack, tcp)
	case layers.IPProtocolUDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(tf.SrcPort), DstPort: layers.UDPPort(tf.DstPort)}
		udp.SetNetworkLayerForChecksum(network)
		stack = append(stack, udp)
	}
	stack = append(stack, gopacket.Payload(make([]byte, payload)))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		log.Fatal(err)
	}
	return buf.Bytes()
}

// GenerateTestPacket allocates packet from pool and fills it with frame
// generated by GenerateTestFrame.
func GenerateTestPacket(pool *Pool, tf TestFrame) *Packet {
	pkt := pool.Alloc()
	if pkt == nil {
		log.Fatal("test pool is exhausted")
	}
	pkt.GeneratePacketFromByte(GenerateTestFrame(tf))
	return pkt
}
