//go:build linux

package sockets

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/scitags/iwpm-go/addr"
	"golang.org/x/sys/unix"
)

// OpenIPv4 creates a UDP socket bound to port on all IPv4 addresses. A
// port of 0 lets the kernel choose one: check Port() on the returned
// socket.
func OpenIPv4(port uint16) (*Socket, error) {
	return openUDP(UDP4, port)
}

// OpenIPv6 creates a UDP socket bound to port on all IPv6 addresses. The
// socket won't accept IPv4-mapped traffic so that it can share the port
// number with the IPv4 socket.
func OpenIPv6(port uint16) (*Socket, error) {
	return openUDP(UDP6, port)
}

func openUDP(kind Kind, port uint16) (*Socket, error) {
	family := familyOf(kind)

	fd, err := unix.Socket(int(family), unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		slog.Warn("unable to create socket", "kind", kind, "err", err)
		return nil, newError(ErrSocketCreate, kind, err)
	}

	var bindAddr unix.Sockaddr = &unix.SockaddrInet4{Port: int(port)}
	if kind == UDP6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			slog.Warn("unable to set socket options", "kind", kind, "err", err)
			unix.Close(fd)
			return nil, newError(ErrSocketOption, kind, err)
		}
		bindAddr = &unix.SockaddrInet6{Port: int(port)}
	}

	if err := unix.Bind(fd, bindAddr); err != nil {
		slog.Warn("unable to bind socket", "kind", kind, "port", port, "err", err)
		unix.Close(fd)
		return nil, newError(ErrSocketBind, kind, err)
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		slog.Warn("unable to get socket name", "kind", kind, "err", err)
		unix.Close(fd)
		return nil, newError(ErrSocketQuery, kind, err)
	}

	ap, ok := addr.ToAddrPort(sa)
	if !ok {
		unix.Close(fd)
		return nil, newError(ErrSocketQuery, kind, unix.EAFNOSUPPORT)
	}

	slog.Debug("created port mapper socket", "kind", kind, "addr", ap)

	return &Socket{fd: fd, kind: kind, port: ap.Port()}, nil
}

// OpenNetlink creates a netlink socket on the RDMA protocol family bound
// to our PID and to the NetlinkGroups multicast groups.
func OpenNetlink() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, NETLINK_RDMA)
	if err != nil {
		slog.Warn("unable to create socket", "kind", Netlink, "err", err)
		return nil, newError(ErrSocketCreate, Netlink, err)
	}

	pid := uint32(os.Getpid())
	if err := unix.Bind(fd, &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Pid:    pid,
		Groups: NetlinkGroups,
	}); err != nil {
		slog.Warn("unable to bind socket", "kind", Netlink, "err", err)
		unix.Close(fd)
		return nil, newError(ErrSocketBind, Netlink, err)
	}

	slog.Debug("created netlink socket", "pid", pid, "groups", NetlinkGroups)

	return &Socket{fd: fd, kind: Netlink, pid: pid}, nil
}

// WriteToPID sends b to the netlink socket bound to pid (0 being the
// kernel). No multicast groups are addressed. The number of bytes
// actually sent is returned.
func (s *Socket) WriteToPID(b []byte, pid uint32) (int, error) {
	return unix.SendmsgN(s.fd, b, nil, &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Pid:    pid,
	}, 0)
}

// ReadFromPID reads a single datagram into b and returns its length
// together with the sender's PID.
func (s *Socket) ReadFromPID(b []byte) (int, uint32, error) {
	n, from, err := unix.Recvfrom(s.fd, b, 0)
	if err != nil {
		return 0, 0, err
	}

	nlFrom, ok := from.(*unix.SockaddrNetlink)
	if !ok {
		return n, 0, fmt.Errorf("got a datagram from a non-netlink address %T", from)
	}

	return n, nlFrom.Pid, nil
}
