// Package sockets creates the sockets used by the port mapper: a UDP
// socket per IP family to talk to remote port mappers and a netlink
// socket to talk to the kernel's RDMA subsystem.
//
// Sockets are plain blocking descriptors used by a single flow at a time.
// There's no locking whatsoever: callers sharing a socket must serialise
// their accesses.
package sockets

import (
	"errors"
	"fmt"
	"time"

	"github.com/scitags/iwpm-go/addr"
	"github.com/scitags/iwpm-go/types"
	"github.com/scitags/iwpm-go/wire"
	"golang.org/x/sys/unix"
)

const (
	// NETLINK_RDMA is the netlink protocol family of the RDMA subsystem.
	NETLINK_RDMA = 20

	// NetlinkGroups is the multicast group mask the netlink socket binds
	// to. Any non-zero value enables the delivery of group-addressed
	// messages.
	NetlinkGroups uint32 = 3
)

var (
	ErrSocketCreate = errors.New("unable to create socket")
	ErrSocketOption = errors.New("unable to set socket option")
	ErrSocketBind   = errors.New("unable to bind socket")
	ErrSocketQuery  = errors.New("unable to get socket name")

	ErrShortWrite  = errors.New("short write")
	ErrUnsupported = errors.New("unsupported on this platform")
)

// Error is returned when any of the system calls involved in setting up a
// socket fails.
type Error struct {
	// Op is one of ErrSocketCreate, ErrSocketOption, ErrSocketBind or
	// ErrSocketQuery.
	Op    error
	Kind  Kind
	Errno unix.Errno
}

func newError(op error, kind Kind, err error) *Error {
	errno := unix.EINVAL
	errors.As(err, &errno)
	return &Error{Op: op, Kind: kind, Errno: errno}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s socket: %v: %v", e.Kind, e.Op, e.Errno)
}

func (e *Error) Unwrap() []error {
	return []error{e.Op, e.Errno}
}

// Code returns the negated errno as reported by the C library.
func (e *Error) Code() int {
	return -int(e.Errno)
}

type Kind int

const (
	UDP4 Kind = iota
	UDP6
	Netlink
)

var kindNames = map[Kind]string{
	UDP4:    "udp4",
	UDP6:    "udp6",
	Netlink: "netlink",
}

func (k Kind) String() string {
	return kindNames[k]
}

type Socket struct {
	fd   int
	kind Kind

	// port is the UDP port the socket ended up bound to. It's always 0
	// for netlink sockets.
	port uint16

	// pid is the netlink port ID the socket is bound to.
	pid uint32
}

func (s *Socket) Fd() int {
	return s.fd
}

func (s *Socket) Kind() Kind {
	return s.kind
}

func (s *Socket) Port() uint16 {
	return s.port
}

func (s *Socket) PID() uint32 {
	return s.pid
}

func (s *Socket) String() string {
	if s.kind == Netlink {
		return fmt.Sprintf("%s(fd=%d;pid=%d)", s.kind, s.fd, s.pid)
	}
	return fmt.Sprintf("%s(fd=%d;port=%d)", s.kind, s.fd, s.port)
}

// Close releases the socket. Sockets whose descriptor is not positive are
// considered to be closed already, so calling Close more than once is safe.
func (s *Socket) Close() error {
	if s == nil || s.fd <= 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

func Close(s *Socket) error {
	return s.Close()
}

// SetReadTimeout bounds how long reads block. A zero duration blocks
// forever. Reads timing out return an error for which IsTimeout is true.
func (s *Socket) SetReadTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("couldn't set the read timeout on %s: %w", s, err)
	}
	return nil
}

func IsTimeout(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// WriteMessage sends a port mapper message to a remote peer.
func (s *Socket) WriteMessage(m wire.Message, to unix.Sockaddr) error {
	n, err := unix.SendmsgN(s.fd, m[:], nil, to, 0)
	if err != nil {
		return fmt.Errorf("error sending port mapper message: %w", err)
	}
	if n != wire.MessageLen {
		return fmt.Errorf("%w: sent %d out of %d bytes", ErrShortWrite, n, wire.MessageLen)
	}
	return nil
}

// ReadMessage blocks until a port mapper message is received.
func (s *Socket) ReadMessage() (wire.Message, unix.Sockaddr, error) {
	var (
		m   wire.Message
		buf [wire.MessageLen]byte
	)

	n, from, err := unix.Recvfrom(s.fd, buf[:], 0)
	if err != nil {
		return m, nil, fmt.Errorf("error receiving port mapper message: %w", err)
	}

	if err := m.UnmarshalBinary(buf[:n]); err != nil {
		ap, _ := addr.ToAddrPort(from)
		return m, from, fmt.Errorf("bogus message from %s: %w", ap, err)
	}

	return m, from, nil
}

func familyOf(kind Kind) types.Family {
	if kind == UDP6 {
		return types.IPv6
	}
	return types.IPv4
}
