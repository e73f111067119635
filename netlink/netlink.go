package netlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/josharian/native"
	"github.com/mdlayher/netlink"
	"github.com/scitags/iwpm-go/addr"
	"github.com/scitags/iwpm-go/types"
	"github.com/scitags/iwpm-go/wire"
	"golang.org/x/sys/unix"
)

const headerLen = unix.SizeofNlMsghdr

var (
	ErrAllocationFailed = errors.New("couldn't create netlink message")
	ErrShortWrite       = errors.New("short netlink write")
)

// Conn is the datagram interface netlink messages travel over. It's
// implemented by *sockets.Socket.
type Conn interface {
	// WriteToPID sends b to pid and returns the number of bytes sent.
	WriteToPID(b []byte, pid uint32) (int, error)

	// ReadFromPID reads a datagram into b and returns its length and the
	// PID of the sender.
	ReadFromPID(b []byte) (int, uint32, error)
}

// Envelope is an outbound netlink message under construction. Attributes
// are appended through Attrs and the header's length is computed when the
// envelope is marshalled.
type Envelope struct {
	netlink.Message

	Attrs *netlink.AttributeEncoder
}

// BuildRequest creates an envelope of type msgType coming from our PID.
// The sequence number is drawn from c; a nil client (as used for the
// initial handshake) yields a sequence number of 0.
func BuildRequest(msgType uint16, c *Client) (*Envelope, error) {
	if msgType < unix.NLMSG_MIN_TYPE {
		return nil, fmt.Errorf("%w: type %#x is reserved for control messages", ErrAllocationFailed, msgType)
	}

	var seq uint32
	if c != nil {
		seq = c.NextSeq()
	}

	return &Envelope{
		Message: netlink.Message{
			Header: netlink.Header{
				Type:     netlink.HeaderType(msgType),
				Flags:    netlink.Request,
				Sequence: seq,
				PID:      uint32(os.Getpid()),
			},
		},
		Attrs: netlink.NewAttributeEncoder(),
	}, nil
}

// PutSockaddr appends sa as a struct sockaddr_storage.
func (e *Envelope) PutSockaddr(typ uint16, sa unix.Sockaddr) error {
	b, err := addr.MarshalSockaddrStorage(sa)
	if err != nil {
		return err
	}
	e.Attrs.Bytes(typ, b)
	return nil
}

// PutWire appends a port mapper wire message.
func (e *Envelope) PutWire(typ uint16, m wire.Message) {
	e.Attrs.Bytes(typ, m[:])
}

// MarshalBinary encodes the attributes and fills in the header's length.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	data, err := e.Attrs.Encode()
	if err != nil {
		return nil, fmt.Errorf("error encoding attributes: %w", err)
	}

	e.Data = data
	e.Header.Length = uint32(nlmsgAlign(headerLen + len(data)))

	return e.Message.MarshalBinary()
}

// Send transmits env to the netlink socket bound to pid. Netlink writes
// are atomic: a partial write is reported as ErrShortWrite and never
// retried.
func Send(conn Conn, env *Envelope, pid uint32) error {
	b, err := env.MarshalBinary()
	if err != nil {
		return err
	}

	n, err := conn.WriteToPID(b, pid)
	if err != nil {
		return fmt.Errorf("error sending netlink message to %d: %w", pid, err)
	}

	if n != int(env.Header.Length) {
		return fmt.Errorf("%w: sent %d out of %d bytes", ErrShortWrite, n, env.Header.Length)
	}

	slog.Log(context.Background(), types.LevelTrace, "sent netlink message",
		"type", OpName(uint16(env.Header.Type)), "seq", env.Header.Sequence, "dst", pid, "raw", b)

	return nil
}

// Decode splits a received datagram into the netlink messages it carries.
// Message data is not copied: it aliases b.
func Decode(b []byte) ([]netlink.Message, error) {
	var msgs []netlink.Message

	for len(b) > 0 {
		if len(b) < headerLen {
			return nil, fmt.Errorf("%w: %d trailing bytes can't hold a header", ErrValidate, len(b))
		}

		l := int(native.Endian.Uint32(b[0:4]))
		if l < headerLen || l > len(b) {
			return nil, fmt.Errorf("%w: message length %d out of bounds (%d bytes left)", ErrValidate, l, len(b))
		}

		msgs = append(msgs, netlink.Message{
			Header: netlink.Header{
				Length:   uint32(l),
				Type:     netlink.HeaderType(native.Endian.Uint16(b[4:6])),
				Flags:    netlink.HeaderFlags(native.Endian.Uint16(b[6:8])),
				Sequence: native.Endian.Uint32(b[8:12]),
				PID:      native.Endian.Uint32(b[12:16]),
			},
			Data: b[headerLen:l],
		})

		next := nlmsgAlign(l)
		if next > len(b) {
			next = len(b)
		}
		b = b[next:]
	}

	return msgs, nil
}

func nlmsgAlign(l int) int {
	return (l + unix.NLMSG_ALIGNTO - 1) & ^(unix.NLMSG_ALIGNTO - 1)
}
