// Package p2paddr implements the network-layer peer identity (Authority)
// and the address-book record (Item) of spec.md section 3.
package p2paddr

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Authority is a normalized peer network identity: a 16-byte IPv6 address
// (IPv4 embedded via the ::ffff:0:0/96 prefix), a port, and an optional
// CIDR width used for subnet matching.
type Authority struct {
	ip   [16]byte
	Port uint16
	CIDR uint8
}

// NewAuthority builds an Authority from a host and port. IPv4 addresses
// are normalized into the IPv4-in-IPv6 form.
func NewAuthority(host string, port uint16) (Authority, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return Authority{}, fmt.Errorf("p2paddr: invalid host %q", host)
	}
	var a Authority
	copy(a.ip[:], ip.To16())
	a.Port = port
	return a, nil
}

// NewAuthorityFromBytes builds an Authority from an already-normalized
// 16-byte host address and port, as carried in a wire NetAddr record.
func NewAuthorityFromBytes(ip [16]byte, port uint16) Authority {
	return Authority{ip: ip, Port: port}
}

// ParseAuthority parses the textual form of spec.md section 6:
// "host:port" for IPv4, "[host]:port" for IPv6, with an optional
// trailing "/cidr".
func ParseAuthority(s string) (Authority, error) {
	var cidr uint8
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		n, err := strconv.ParseUint(s[i+1:], 10, 8)
		if err != nil {
			return Authority{}, fmt.Errorf("p2paddr: invalid cidr in %q: %w", s, err)
		}
		cidr = uint8(n)
		s = s[:i]
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Authority{}, fmt.Errorf("p2paddr: invalid authority %q: %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Authority{}, fmt.Errorf("p2paddr: invalid port in %q: %w", s, err)
	}
	a, err := NewAuthority(host, uint16(port))
	if err != nil {
		return Authority{}, err
	}
	a.CIDR = cidr
	return a, nil
}

// IP returns the 16-byte normalized address.
func (a Authority) IP() net.IP {
	ip := make(net.IP, 16)
	copy(ip, a.ip[:])
	return ip
}

// IsIPv4 reports whether the address is an IPv4-in-IPv6 mapped address.
func (a Authority) IsIPv4() bool {
	return a.IP().To4() != nil
}

// String renders the textual form of spec.md section 6.
func (a Authority) String() string {
	host := a.IP().String()
	if a.IsIPv4() {
		host = a.IP().To4().String()
	} else {
		host = "[" + host + "]"
	}
	s := fmt.Sprintf("%s:%d", host, a.Port)
	if a.CIDR > 0 {
		s += fmt.Sprintf("/%d", a.CIDR)
	}
	return s
}

// subnetMember reports whether a's host address falls within b's host
// address under b's CIDR width.
func subnetMember(a, b Authority) bool {
	if b.CIDR == 0 {
		return a.ip == b.ip
	}
	ip := b.IP()
	total := 128
	if v4 := ip.To4(); v4 != nil {
		ip = v4
		total = 32
	}
	mask := net.CIDRMask(int(b.CIDR), total)
	if mask == nil {
		return false
	}
	network := net.IPNet{IP: ip.Mask(mask), Mask: mask}
	return network.Contains(a.IP())
}

// Equal implements the match rule of spec.md section 3: two authorities
// match if either port is zero or they are equal, and the host is either
// equal (cidr == 0) or one is a subnet member of the other.
func (a Authority) Equal(b Authority) bool {
	if a.Port != 0 && b.Port != 0 && a.Port != b.Port {
		return false
	}
	if a.ip == b.ip {
		return true
	}
	if a.CIDR != 0 && subnetMember(b, a) {
		return true
	}
	if b.CIDR != 0 && subnetMember(a, b) {
		return true
	}
	return false
}

// Bytes returns the raw 16-byte host address, used for lexicographic
// tie-breaking in hosts.Take (spec.md section 4.6).
func (a Authority) Bytes() [16]byte {
	return a.ip
}
