package wire

import "fmt"

// Magic is the first word of every port mapper message. It packs the IP
// version, the protocol version and the message type in three disjoint
// bit ranges. The ranges are not assumed to be byte aligned: always go
// through the accessors.
type Magic uint32

const (
	IPVerShift       = 0
	IPVerMask  Magic = 0xF << IPVerShift

	VerShift       = 4
	VerMask  Magic = 0xF << VerShift

	MTShift       = 8
	MTMask  Magic = 0xF << MTShift
)

func NewMagic(ipVer, ver uint8, mt MsgType) Magic {
	return (Magic(ipVer)<<IPVerShift)&IPVerMask |
		(Magic(ver)<<VerShift)&VerMask |
		(Magic(mt)<<MTShift)&MTMask
}

func (m Magic) IPVersion() uint8 {
	return uint8((m & IPVerMask) >> IPVerShift)
}

func (m Magic) Version() uint8 {
	return uint8((m & VerMask) >> VerShift)
}

func (m Magic) Type() MsgType {
	return MsgType((m & MTMask) >> MTShift)
}

func (m Magic) String() string {
	return fmt.Sprintf("%#x(ipv%d;v%d;%s)", uint32(m), m.IPVersion(), m.Version(), m.Type())
}

type MsgType uint8

const (
	Request MsgType = iota
	Accept
	Ack
	Reject
)

var msgTypeNames = map[MsgType]string{
	Request: "request",
	Accept:  "accept",
	Ack:     "ack",
	Reject:  "reject",
}

func (mt MsgType) String() string {
	repr, ok := msgTypeNames[mt]
	if !ok {
		return fmt.Sprintf("type(%d)", uint8(mt))
	}
	return repr
}

func ParseMsgType(s string) (MsgType, bool) {
	for mt, name := range msgTypeNames {
		if name == s {
			return mt, true
		}
	}
	return 0, false
}
