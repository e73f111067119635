// Package wire packs and unpacks the fixed size message port mappers
// exchange over UDP when negotiating the ports an iWARP connection is
// really bound to.
//
// The layout is (all multi-byte fields in network byte order):
//
//	 0     4          8                 16      18      20           36           52
//	 +-----+----------+-----------------+-------+-------+------------+------------+
//	 |magic|timestamp |assoc. handle    |apport |cpport |apaddr      |cpaddr      |
//	 +-----+----------+-----------------+-------+-------+------------+------------+
//
// where ap stands for the accepting peer and cp for the connecting peer.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/scitags/iwpm-go/addr"
	"github.com/scitags/iwpm-go/types"
)

const (
	// Version is the port mapper protocol version we speak.
	Version = 1

	MessageLen = 52

	magicOff     = 0
	timestampOff = 4
	handleOff    = 8
	apPortOff    = 16
	cpPortOff    = 18
	apAddrOff    = 20
	cpAddrOff    = apAddrOff + addr.Len
)

var (
	ErrInvalidIPVersion = errors.New("invalid ip version")
	ErrShortMessage     = errors.New("short port mapper message")
)

// Params are the decoded contents of a Message.
type Params struct {
	// Timestamp is echoed back by the peer untouched.
	Timestamp uint32

	AssocHandle uint64

	IPVersion uint8
	Version   uint8
	Type      MsgType

	APPort uint16
	CPPort uint16
	APAddr addr.Raw
	CPAddr addr.Raw
}

// Family maps the IP version onto an address family.
func (p Params) Family() (types.Family, error) {
	f, ok := types.FamilyFromIPVersion(p.IPVersion)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIPVersion, p.IPVersion)
	}
	return f, nil
}

// SetAPAddr stores the accepting peer's address and sets the IP version
// accordingly.
func (p *Params) SetAPAddr(ap netip.AddrPort) {
	p.APAddr = addr.RawFromAddr(ap.Addr())
	p.APPort = ap.Port()
	p.IPVersion = ipVersionOf(ap.Addr())
}

// SetCPAddr stores the connecting peer's address and sets the IP version
// accordingly.
func (p *Params) SetCPAddr(cp netip.AddrPort) {
	p.CPAddr = addr.RawFromAddr(cp.Addr())
	p.CPPort = cp.Port()
	p.IPVersion = ipVersionOf(cp.Addr())
}

func (p Params) APAddrPort() netip.AddrPort {
	f, _ := p.Family()
	return netip.AddrPortFrom(p.APAddr.Addr(f), p.APPort)
}

func (p Params) CPAddrPort() netip.AddrPort {
	f, _ := p.Family()
	return netip.AddrPortFrom(p.CPAddr.Addr(f), p.CPPort)
}

func (p Params) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("magic", NewMagic(p.IPVersion, p.Version, p.Type)),
		slog.Uint64("pmtime", uint64(p.Timestamp)),
		slog.Uint64("handle", p.AssocHandle),
		slog.String("ap", p.APAddrPort().String()),
		slog.String("cp", p.CPAddrPort().String()),
	)
}

func ipVersionOf(a netip.Addr) uint8 {
	if a.Unmap().Is4() {
		return types.IPv4.IPVersion()
	}
	return types.IPv6.IPVersion()
}

// Message is the on-wire representation of Params.
type Message [MessageLen]byte

func (m Message) Magic() Magic {
	return Magic(binary.BigEndian.Uint32(m[magicOff:]))
}

func (m Message) MarshalBinary() ([]byte, error) {
	b := make([]byte, MessageLen)
	copy(b, m[:])
	return b, nil
}

func (m *Message) UnmarshalBinary(b []byte) error {
	if len(b) < MessageLen {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrShortMessage, len(b), MessageLen)
	}
	copy(m[:], b[:MessageLen])
	return nil
}

// Pack lays p out as a Message. No validation is carried out: fields too
// wide for their range in the magic word are truncated.
func Pack(p Params) Message {
	m := Message{}

	binary.BigEndian.PutUint32(m[magicOff:], uint32(NewMagic(p.IPVersion, p.Version, p.Type)))
	binary.BigEndian.PutUint32(m[timestampOff:], p.Timestamp)
	binary.BigEndian.PutUint64(m[handleOff:], p.AssocHandle)
	binary.BigEndian.PutUint16(m[apPortOff:], p.APPort)
	binary.BigEndian.PutUint16(m[cpPortOff:], p.CPPort)
	copy(m[apAddrOff:apAddrOff+addr.Len], p.APAddr[:])
	copy(m[cpAddrOff:cpAddrOff+addr.Len], p.CPAddr[:])

	return m
}

// Unpack decodes m. Messages carrying an IP version other than 4 or 6 are
// rejected with ErrInvalidIPVersion as their addresses can't be
// interpreted.
func Unpack(m Message) (Params, error) {
	magic := m.Magic()

	p := Params{
		Timestamp:   binary.BigEndian.Uint32(m[timestampOff:]),
		AssocHandle: binary.BigEndian.Uint64(m[handleOff:]),
		IPVersion:   magic.IPVersion(),
		Version:     magic.Version(),
		Type:        magic.Type(),
		APPort:      binary.BigEndian.Uint16(m[apPortOff:]),
		CPPort:      binary.BigEndian.Uint16(m[cpPortOff:]),
	}
	copy(p.APAddr[:], m[apAddrOff:apAddrOff+addr.Len])
	copy(p.CPAddr[:], m[cpAddrOff:cpAddrOff+addr.Len])

	if _, err := p.Family(); err != nil {
		slog.Warn("invalid ip version on port mapper message", "magic", magic)
		return Params{}, err
	}

	return p, nil
}

func form(p *Params, mt MsgType) Message {
	p.Type = mt
	return Pack(*p)
}

func FormRequest(p *Params) Message { return form(p, Request) }
func FormAccept(p *Params) Message  { return form(p, Accept) }
func FormAck(p *Params) Message     { return form(p, Ack) }
func FormReject(p *Params) Message  { return form(p, Reject) }
