package netlink

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/josharian/native"
	"github.com/mdlayher/netlink"
	"github.com/scitags/iwpm-go/addr"
	"github.com/scitags/iwpm-go/wire"
	"golang.org/x/sys/unix"
)

// nlaTypeMask strips the nested and byte order flags off an attribute type
// (NLA_TYPE_MASK in include/uapi/linux/netlink.h).
const nlaTypeMask = ^uint16(unix.NLA_F_NESTED | unix.NLA_F_NET_BYTEORDER)

var (
	ErrValidate         = errors.New("netlink message validation failed")
	ErrParse            = errors.New("netlink attribute parsing failed")
	ErrMissingAttribute = errors.New("missing netlink attribute")
)

// Attr is a parsed attribute. Data aliases the message it was parsed from
// and, for String attributes, has its trailing NULs removed.
type Attr struct {
	Type uint16
	Kind AttrKind
	Data []byte
}

// Table holds parsed attributes indexed by their type. Absent attributes
// are nil and index 0 is never populated.
type Table []*Attr

// Validate checks the structure of msg against policy without looking at
// attribute contents: the header must agree with the payload length, the
// attributes must be properly framed and there can't be more of them than
// the policy describes nor any whose type falls outside of the policy.
func Validate(msg netlink.Message, policy Policy) error {
	want := headerLen + len(msg.Data)
	if l := int(msg.Header.Length); l != want && l != nlmsgAlign(want) {
		return fmt.Errorf("%w: header length %d doesn't match %d bytes of payload", ErrValidate, l, len(msg.Data))
	}

	attrs, err := netlink.UnmarshalAttributes(msg.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidate, err)
	}

	if maxAttrs := max(policy.Count()-1, 0); len(attrs) > maxAttrs {
		return fmt.Errorf("%w: got %d attributes, policy allows %d", ErrValidate, len(attrs), maxAttrs)
	}

	for _, a := range attrs {
		typ := a.Type & nlaTypeMask
		if typ == 0 || int(typ) >= policy.Count() {
			return fmt.Errorf("%w: attribute type %d outside of policy", ErrValidate, typ)
		}
	}

	return nil
}

// Parse validates msg and decodes its attributes into a Table with as
// many slots as the policy.
func Parse(msg netlink.Message, policy Policy) (Table, error) {
	if err := Validate(msg, policy); err != nil {
		return nil, err
	}

	attrs, err := netlink.UnmarshalAttributes(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	t := make(Table, policy.Count())
	for _, a := range attrs {
		typ := a.Type & nlaTypeMask
		ap := policy[typ]

		data, err := decodeAttr(ap, a.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %d (%s): %v", ErrParse, typ, ap.Kind, err)
		}

		t[typ] = &Attr{Type: typ, Kind: ap.Kind, Data: data}
	}

	return t, nil
}

var fixedLen = map[AttrKind]int{
	U8:  1,
	U16: 2,
	U32: 4,
	U64: 8,
}

func decodeAttr(ap AttrPolicy, b []byte) ([]byte, error) {
	switch ap.Kind {
	case U8, U16, U32, U64:
		if len(b) < fixedLen[ap.Kind] {
			return nil, fmt.Errorf("got %d bytes, want %d", len(b), fixedLen[ap.Kind])
		}
		return b[:fixedLen[ap.Kind]], nil
	case String:
		s := bytes.TrimRight(b, "\x00")
		if bytes.IndexByte(s, 0) != -1 {
			return nil, errors.New("embedded NUL in string")
		}
		if ap.Len > 0 && len(s) > ap.Len {
			return nil, fmt.Errorf("string too long (%d); max is %d", len(s), ap.Len)
		}
		return s, nil
	case Binary:
		if len(b) < ap.Len {
			return nil, fmt.Errorf("got %d bytes, want at least %d", len(b), ap.Len)
		}
		return b, nil
	}
	return b, nil
}

// CheckAttributes makes sure every attribute in 1..count-1 is present.
// Index 0 is reserved and never looked at.
func CheckAttributes(t Table, count int) error {
	var missing []int
	for i := 1; i < count; i++ {
		if t.Get(i) == nil {
			slog.Debug("missing netlink attribute", "idx", i)
			missing = append(missing, i)
		}
	}

	if len(missing) != 0 {
		return fmt.Errorf("%w: %v", ErrMissingAttribute, missing)
	}
	return nil
}

// ParseMessage runs msg through Validate, Parse and CheckAttributes.
func ParseMessage(msg netlink.Message, policy Policy) (Table, error) {
	t, err := Parse(msg, policy)
	if err == nil {
		err = CheckAttributes(t, policy.Count())
	}

	if err != nil {
		slog.Warn("error parsing netlink message", "type", OpName(uint16(msg.Header.Type)),
			"seq", msg.Header.Sequence, "err", err)
		return nil, err
	}

	return t, nil
}

func (t Table) Get(i int) *Attr {
	if i < 0 || i >= len(t) {
		return nil
	}
	return t[i]
}

// fixed returns the first n bytes of attribute i or nil if it's absent or
// shorter than that (i.e. it isn't a fixed size attribute at all).
func (t Table) fixed(i, n int) []byte {
	a := t.Get(i)
	if a == nil || len(a.Data) < n {
		return nil
	}
	return a.Data[:n]
}

// The fixed size accessors return 0 for absent or undersized attributes.
// Run the table through CheckAttributes first if that's not acceptable.

func (t Table) Uint8(i int) uint8 {
	if b := t.fixed(i, 1); b != nil {
		return b[0]
	}
	return 0
}

func (t Table) Uint16(i int) uint16 {
	if b := t.fixed(i, 2); b != nil {
		return native.Endian.Uint16(b)
	}
	return 0
}

func (t Table) Uint32(i int) uint32 {
	if b := t.fixed(i, 4); b != nil {
		return native.Endian.Uint32(b)
	}
	return 0
}

func (t Table) Uint64(i int) uint64 {
	if b := t.fixed(i, 8); b != nil {
		return native.Endian.Uint64(b)
	}
	return 0
}

func (t Table) String(i int) string {
	if a := t.Get(i); a != nil {
		return string(a.Data)
	}
	return ""
}

func (t Table) Bytes(i int) []byte {
	if a := t.Get(i); a != nil {
		return a.Data
	}
	return nil
}

// Sockaddr decodes a struct sockaddr_storage attribute.
func (t Table) Sockaddr(i int) (unix.Sockaddr, error) {
	a := t.Get(i)
	if a == nil {
		return nil, fmt.Errorf("%w: %d", ErrMissingAttribute, i)
	}
	return addr.UnmarshalSockaddrStorage(a.Data)
}

// Wire unpacks an embedded port mapper wire message.
func (t Table) Wire(i int) (wire.Params, error) {
	a := t.Get(i)
	if a == nil {
		return wire.Params{}, fmt.Errorf("%w: %d", ErrMissingAttribute, i)
	}

	var m wire.Message
	if err := m.UnmarshalBinary(a.Data); err != nil {
		return wire.Params{}, err
	}

	return wire.Unpack(m)
}
