// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sim

import (
	"encoding/binary"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
)

const probePort = 47000

// buildFrame serializes a probe. IPv4 probes are UDP datagrams; any other
// type carries the sequence number directly after the Ethernet header.
func buildFrame(src, dst flow.MAC, srcIP, dstIP net.IP, ethType flow.EthType, seq uint64) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       src.HardwareAddr(),
		DstMAC:       dst.HardwareAddr(),
		EthernetType: layers.EthernetType(ethType),
	}
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, seq)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	if ethType != flow.EthTypeIPv4 {
		if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload)); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "serialize frame")
		}
		return buf.Bytes(), nil
	}

	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP.To4(),
		DstIP:    dstIP.To4(),
	}
	udp := &layers.UDP{SrcPort: probePort, DstPort: probePort}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "udp checksum")
	}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "serialize frame")
	}
	return buf.Bytes(), nil
}

// parseFrame recovers the header and sequence number of a probe.
func parseFrame(data []byte) (Received, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return Received{}, errors.ErrMalformedFrame
	}
	r := Received{
		Src:     flow.MACFrom(eth.SrcMAC),
		Dst:     flow.MACFrom(eth.DstMAC),
		EthType: flow.EthType(eth.EthernetType),
	}

	body := eth.Payload
	if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		body = udp.Payload
	}
	if len(body) < 8 {
		return Received{}, errors.ErrMalformedFrame
	}
	r.Seq = binary.BigEndian.Uint64(body[:8])
	return r, nil
}
