// Package addr moves IP addresses and ports between the socket address
// variants handed out by golang.org/x/sys/unix and the fixed size address
// buffers carried by port mapper messages.
package addr

import (
	"errors"
	"net/netip"

	"github.com/scitags/iwpm-go/types"
	"golang.org/x/sys/unix"
)

// Len is the size of an address buffer no matter the family. IPv4
// addresses take up the first 4 bytes and the remainder is zeroed.
const Len = 16

var ErrInvalidAddressFamily = errors.New("invalid address family")

// Raw is an address buffer as found on the wire.
type Raw [Len]byte

// Sockaddr wraps one of the IP socket address variants (i.e.
// *unix.SockaddrInet4 or *unix.SockaddrInet6).
type Sockaddr struct {
	unix.Sockaddr
}

// Endpoint is either end of a CopyAddressPort call. It's implemented by
// *Raw and *Sockaddr only.
type Endpoint interface {
	endpoint()
}

func (*Raw) endpoint()      {}
func (*Sockaddr) endpoint() {}

// RawFromAddr stores addr in an address buffer. IPv4-mapped IPv6
// addresses are unmapped first.
func RawFromAddr(addr netip.Addr) Raw {
	r := Raw{}
	addr = addr.Unmap()
	if addr.Is4() {
		a4 := addr.As4()
		copy(r[:], a4[:])
		return r
	}
	a16 := addr.As16()
	copy(r[:], a16[:])
	return r
}

// Addr interprets the buffer as an address of the given family. The zero
// netip.Addr is returned for any other family.
func (r Raw) Addr(family types.Family) netip.Addr {
	switch family {
	case types.IPv4:
		return netip.AddrFrom4([4]byte(r[:types.IPv4Len]))
	case types.IPv6:
		return netip.AddrFrom16(r)
	}
	return netip.Addr{}
}

// CopyAddressPort copies an address (and its port) from src to dst. Either
// end can be a socket address or a raw buffer:
//
//   - With a *Sockaddr as the source the port is taken from it and stored
//     in port.
//   - With a *Raw as the source the port is read from port.
//   - With a *Sockaddr as the destination a new socket address of the
//     given family is built carrying both the address and the port.
//   - With a *Raw as the destination only the address is copied and the
//     remainder of the buffer is zeroed.
//
// Families other than IPv4 and IPv6 make this a no-op, as does a socket
// address whose variant doesn't match family.
func CopyAddressPort(family types.Family, src, dst Endpoint, port *uint16) {
	n := family.AddrLen()
	if n == 0 {
		return
	}

	var buf Raw
	switch s := src.(type) {
	case *Sockaddr:
		b, p, ok := sockaddrBytes(family, s.Sockaddr)
		if !ok {
			return
		}
		buf = b
		if port != nil {
			*port = p
		}
	case *Raw:
		copy(buf[:n], s[:n])
	default:
		return
	}

	switch d := dst.(type) {
	case *Sockaddr:
		var p uint16
		if port != nil {
			p = *port
		}
		d.Sockaddr = newSockaddr(family, buf, p)
	case *Raw:
		*d = Raw{}
		copy(d[:n], buf[:n])
	}
}

func sockaddrBytes(family types.Family, sa unix.Sockaddr) (Raw, uint16, bool) {
	r := Raw{}
	switch family {
	case types.IPv4:
		sa4, ok := sa.(*unix.SockaddrInet4)
		if !ok || sa4 == nil {
			return r, 0, false
		}
		copy(r[:], sa4.Addr[:])
		return r, uint16(sa4.Port), true
	case types.IPv6:
		sa6, ok := sa.(*unix.SockaddrInet6)
		if !ok || sa6 == nil {
			return r, 0, false
		}
		copy(r[:], sa6.Addr[:])
		return r, uint16(sa6.Port), true
	}
	return r, 0, false
}

func newSockaddr(family types.Family, r Raw, port uint16) unix.Sockaddr {
	if family == types.IPv4 {
		sa := &unix.SockaddrInet4{Port: int(port)}
		copy(sa.Addr[:], r[:types.IPv4Len])
		return sa
	}
	return &unix.SockaddrInet6{Port: int(port), Addr: r}
}

// ToAddrPort converts an IP socket address into a netip.AddrPort.
func ToAddrPort(sa unix.Sockaddr) (netip.AddrPort, bool) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)), true
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port)), true
	}
	return netip.AddrPort{}, false
}

func FromAddrPort(ap netip.AddrPort) unix.Sockaddr {
	a := ap.Addr().Unmap()
	if a.Is4() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: a.As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: a.As16()}
}
