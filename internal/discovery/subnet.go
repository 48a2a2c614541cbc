package discovery

import (
	"encoding/binary"
	"fmt"
	"net"
)

// sweepPrefix is the widest range a sweep covers around each local address
const sweepPrefix = 24

// Subnet is a local IPv4 network attached to an interface
type Subnet struct {
	Interface string
	IP        net.IP     // the interface's own address
	Net       *net.IPNet // the network as configured on the interface
}

// String returns "iface ip/prefix"
func (s Subnet) String() string {
	ones, _ := s.Net.Mask.Size()
	return fmt.Sprintf("%s %s/%d", s.Interface, s.IP, ones)
}

// SweepNet returns the range a sweep covers: the configured network, narrowed
// to the /24 around the interface address when it is wider.
func (s Subnet) SweepNet() *net.IPNet {
	ones, bits := s.Net.Mask.Size()
	if bits == 32 && ones >= sweepPrefix {
		return &net.IPNet{IP: s.Net.IP.To4(), Mask: s.Net.Mask}
	}
	mask := net.CIDRMask(sweepPrefix, 32)
	return &net.IPNet{IP: s.IP.To4().Mask(mask), Mask: mask}
}

// Hosts returns every usable address of the sweep range, excluding the
// network and broadcast addresses.
func (s Subnet) Hosts() []net.IP {
	return HostAddrs(s.SweepNet())
}

// Broadcast returns the directed broadcast address of the configured network
func (s Subnet) Broadcast() net.IP {
	return DirectedBroadcast(s.Net)
}

// LocalSubnets lists the IPv4 networks of every up, non-loopback interface
func LocalSubnets() ([]Subnet, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list network interfaces: %w", err)
	}

	var subnets []Subnet
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		subnets = append(subnets, subnetsFromAddrs(iface.Name, addrs)...)
	}
	return subnets, nil
}

func subnetsFromAddrs(iface string, addrs []net.Addr) []Subnet {
	var subnets []Subnet
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
			continue
		}
		ones, bits := ipNet.Mask.Size()
		if bits != 32 || ones >= 31 {
			continue
		}
		subnets = append(subnets, Subnet{
			Interface: iface,
			IP:        ip4,
			Net:       &net.IPNet{IP: ip4.Mask(ipNet.Mask), Mask: ipNet.Mask},
		})
	}
	return subnets
}

// HostAddrs expands an IPv4 network into its usable host addresses
func HostAddrs(n *net.IPNet) []net.IP {
	base := n.IP.To4()
	if base == nil {
		return nil
	}
	ones, bits := n.Mask.Size()
	if bits != 32 || ones >= 31 {
		return nil
	}

	start := binary.BigEndian.Uint32(base.Mask(n.Mask))
	size := uint32(1) << uint(bits-ones)

	addrs := make([]net.IP, 0, size-2)
	for i := uint32(1); i < size-1; i++ {
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, start+i)
		addrs = append(addrs, ip)
	}
	return addrs
}

// DirectedBroadcast returns the all-ones host address of n
func DirectedBroadcast(n *net.IPNet) net.IP {
	base := n.IP.To4()
	if base == nil || len(n.Mask) != net.IPv4len {
		return nil
	}
	out := make(net.IP, 4)
	for i := range out {
		out[i] = base[i] | ^n.Mask[i]
	}
	return out
}
