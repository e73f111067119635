package netlink

import (
	"errors"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/mdlayher/netlink"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/scitags/iwpm-go/addr"
	"github.com/scitags/iwpm-go/wire"
	"golang.org/x/sys/unix"
)

func init() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelError,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Remove time.
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Remove the directory from the source's filename.
			if a.Key == slog.SourceKey {
				source := a.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return a
		},
	}))
	slog.SetDefault(logger)
}

// fakeConn records whatever is written to it and accepts at most limit
// bytes per write when limit is positive.
type fakeConn struct {
	limit   int
	written [][]byte
	dsts    []uint32

	inbound [][]byte
	from    uint32
}

func (c *fakeConn) WriteToPID(b []byte, pid uint32) (int, error) {
	c.written = append(c.written, append([]byte(nil), b...))
	c.dsts = append(c.dsts, pid)
	if c.limit > 0 && len(b) > c.limit {
		return c.limit, nil
	}
	return len(b), nil
}

func (c *fakeConn) ReadFromPID(b []byte) (int, uint32, error) {
	if len(c.inbound) == 0 {
		return 0, 0, unix.EAGAIN
	}
	n := copy(b, c.inbound[0])
	c.inbound = c.inbound[1:]
	return n, c.from, nil
}

var (
	testType = RDMA_NL_GET_TYPE(RDMA_NL_IWCM, RDMA_NL_IWPM_QUERY_MAPPING)

	// A policy for a message embedding a wire message.
	testPolicy = Policy{
		1: {Kind: U32},
		2: {Kind: Binary, Len: wire.MessageLen},
		3: {Kind: String, Len: 8},
	}
)

func marshal(t *testing.T, env *Envelope) []byte {
	t.Helper()
	b, err := env.MarshalBinary()
	if err != nil {
		t.Fatalf("error marshalling envelope: %v", err)
	}
	return b
}

func decodeOne(t *testing.T, b []byte) netlink.Message {
	t.Helper()
	msgs, err := Decode(b)
	if err != nil {
		t.Fatalf("error decoding: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	return msgs[0]
}

func TestBuildRequestSequence(t *testing.T) {
	env, err := BuildRequest(testType, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Header.Sequence != 0 {
		t.Errorf("got seq %d without a client, want 0", env.Header.Sequence)
	}
	if env.Header.PID != uint32(os.Getpid()) {
		t.Errorf("got pid %d, want %d", env.Header.PID, os.Getpid())
	}
	if env.Header.Flags&netlink.Request == 0 {
		t.Errorf("request flag not set: %s", env.Header.Flags)
	}

	c := &Client{Index: 1, PID: 1234, seq: 41}
	for want := uint32(41); want < 45; want++ {
		env, err := BuildRequest(testType, c)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if env.Header.Sequence != want {
			t.Errorf("got seq %d, want %d", env.Header.Sequence, want)
		}
	}
	if c.Seq() != 45 {
		t.Errorf("client counter at %d, want 45", c.Seq())
	}
}

func TestBuildRequestReservedType(t *testing.T) {
	if _, err := BuildRequest(unix.NLMSG_ERROR, nil); !errors.Is(err, ErrAllocationFailed) {
		t.Errorf("got %v, want ErrAllocationFailed", err)
	}
}

func TestEmbeddedWireMessage(t *testing.T) {
	p := wire.Params{IPVersion: 6, Version: wire.Version, AssocHandle: 0x1122334455667788}
	p.SetAPAddr(netip.MustParseAddrPort("[2001:db8::1]:5001"))
	p.SetCPAddr(netip.MustParseAddrPort("[2001:db8::2]:6002"))

	env, err := BuildRequest(testType, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.Attrs.Uint32(1, 0xabcd)
	env.PutWire(2, wire.FormAccept(&p))
	env.Attrs.String(3, "iwpmd")

	msg := decodeOne(t, marshal(t, env))

	table, err := ParseMessage(msg, testPolicy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := table.Uint32(1); got != 0xabcd {
		t.Errorf("got u32 %#x, want 0xabcd", got)
	}
	if got := table.String(3); got != "iwpmd" {
		t.Errorf("got string %q, want iwpmd", got)
	}

	got, err := table.Wire(2)
	if err != nil {
		t.Fatalf("error unpacking wire message: %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("wire message mismatch (-want +got):\n%s", diff)
	}
}

func TestSockaddrAttribute(t *testing.T) {
	policy := Policies[RDMA_NL_IWPM_REMOVE_MAPPING]
	sa := addr.FromAddrPort(netip.MustParseAddrPort("192.0.2.1:3935"))

	env, _ := BuildRequest(RDMA_NL_GET_TYPE(RDMA_NL_IWCM, RDMA_NL_IWPM_REMOVE_MAPPING), nil)
	env.Attrs.Uint32(IWPM_NLA_MANAGE_MAPPING_SEQ, 7)
	if err := env.PutSockaddr(IWPM_NLA_MANAGE_ADDR, sa); err != nil {
		t.Fatalf("error adding sockaddr: %v", err)
	}

	table, err := ParseMessage(decodeOne(t, marshal(t, env)), policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := table.Sockaddr(IWPM_NLA_MANAGE_ADDR)
	if err != nil {
		t.Fatalf("error decoding sockaddr: %v", err)
	}
	if diff := cmp.Diff(sa, got, cmpopts.IgnoreUnexported(unix.SockaddrInet4{})); diff != "" {
		t.Errorf("sockaddr mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckAttributes(t *testing.T) {
	present := &Attr{Type: 1}

	tests := map[string]struct {
		table   Table
		count   int
		wantErr bool
	}{
		"all present":        {Table{nil, present, present}, 3, false},
		"index 0 is ignored": {Table{nil, present}, 2, false},
		"missing middle":     {Table{nil, nil, present}, 3, true},
		"missing last":       {Table{nil, present, nil}, 3, true},
		"short table":        {Table{nil, present}, 3, true},
		"nothing expected":   {Table{}, 1, false},
		"zero count":         {Table{present}, 0, false},
	}

	for name, test := range tests {
		err := CheckAttributes(test.table, test.count)
		if test.wantErr && !errors.Is(err, ErrMissingAttribute) {
			t.Errorf("%s: got %v, want ErrMissingAttribute", name, err)
		}
		if !test.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
	}
}

func TestMissingAttribute(t *testing.T) {
	env, _ := BuildRequest(testType, nil)
	env.Attrs.Uint32(1, 1)
	env.Attrs.String(3, "x")

	_, err := ParseMessage(decodeOne(t, marshal(t, env)), testPolicy)
	if !errors.Is(err, ErrMissingAttribute) {
		t.Errorf("got %v, want ErrMissingAttribute", err)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		build func(env *Envelope)
		mess  func(msg *netlink.Message)
	}{
		"type beyond policy": {
			build: func(env *Envelope) { env.Attrs.Uint32(4, 1) },
		},
		"type zero": {
			build: func(env *Envelope) { env.Attrs.Uint32(0, 1) },
		},
		"too many attributes": {
			build: func(env *Envelope) {
				for i := 0; i < 4; i++ {
					env.Attrs.Uint32(1, uint32(i))
				}
			},
		},
		"bad header length": {
			build: func(env *Envelope) { env.Attrs.Uint32(1, 1) },
			mess:  func(msg *netlink.Message) { msg.Header.Length += 8 },
		},
		"truncated attribute": {
			build: func(env *Envelope) { env.Attrs.Uint32(1, 1) },
			mess: func(msg *netlink.Message) {
				msg.Data = msg.Data[:6]
				msg.Header.Length = uint32(headerLen + 6)
			},
		},
	}

	for name, test := range tests {
		env, _ := BuildRequest(testType, nil)
		test.build(env)
		msg := decodeOne(t, marshal(t, env))
		if test.mess != nil {
			test.mess(&msg)
		}

		if err := Validate(msg, testPolicy); !errors.Is(err, ErrValidate) {
			t.Errorf("%s: got %v, want ErrValidate", name, err)
		}

		// Validation failures must short-circuit parsing.
		if table, err := Parse(msg, testPolicy); !errors.Is(err, ErrValidate) || table != nil {
			t.Errorf("%s: parse went ahead on an invalid message: %v", name, err)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]func(env *Envelope){
		"short u32":    func(env *Envelope) { env.Attrs.Uint16(1, 1) },
		"short binary": func(env *Envelope) { env.Attrs.Bytes(2, make([]byte, wire.MessageLen-1)) },
		"long string":  func(env *Envelope) { env.Attrs.String(3, "way too long") },
		"embedded nul": func(env *Envelope) { env.Attrs.Bytes(3, []byte("a\x00b\x00")) },
	}

	for name, build := range tests {
		env, _ := BuildRequest(testType, nil)
		build(env)

		_, err := Parse(decodeOne(t, marshal(t, env)), testPolicy)
		if !errors.Is(err, ErrParse) {
			t.Errorf("%s: got %v, want ErrParse", name, err)
		}
	}
}

func TestAttributeTypeFlags(t *testing.T) {
	env, _ := BuildRequest(testType, nil)
	env.Attrs.Uint32(1|unix.NLA_F_NET_BYTEORDER, 7)
	env.PutWire(2|unix.NLA_F_NESTED, wire.Pack(wire.Params{IPVersion: 4}))
	env.Attrs.String(3, "x")

	table, err := ParseMessage(decodeOne(t, marshal(t, env)), testPolicy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, typ := range []int{1, 2, 3} {
		if a := table.Get(typ); a == nil || int(a.Type) != typ {
			t.Errorf("attribute %d not indexed by its unflagged type: %+v", typ, a)
		}
	}
}

func TestFixedAccessorsOnShortData(t *testing.T) {
	table := Table{
		nil,
		{Type: 1, Kind: String, Data: []byte("a")},
		{Type: 2, Kind: Unspec, Data: nil},
		{Type: 3, Kind: U16, Data: []byte{0x01, 0x02}},
	}

	for _, i := range []int{1, 2, 5} {
		if table.Uint16(i) != 0 || table.Uint32(i) != 0 || table.Uint64(i) != 0 {
			t.Errorf("attribute %d: expected zero values", i)
		}
	}

	if table.Uint8(2) != 0 {
		t.Errorf("empty attribute: expected a zero u8")
	}
	if table.Uint8(1) != 'a' {
		t.Errorf("got u8 %#x, want %#x", table.Uint8(1), 'a')
	}
	if table.Uint32(3) != 0 {
		t.Errorf("u16 read as u32: got %#x, want 0", table.Uint32(3))
	}
	if table.Uint16(3) == 0 {
		t.Errorf("u16 attribute read as 0")
	}
}

func TestInvalidWireMessageIsRejected(t *testing.T) {
	// A perfectly valid frame can still carry a bogus wire message.
	m := wire.Pack(wire.Params{IPVersion: 5})

	env, _ := BuildRequest(testType, nil)
	env.Attrs.Uint32(1, 1)
	env.PutWire(2, m)
	env.Attrs.String(3, "x")

	table, err := ParseMessage(decodeOne(t, marshal(t, env)), testPolicy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := table.Wire(2); !errors.Is(err, wire.ErrInvalidIPVersion) {
		t.Errorf("got %v, want ErrInvalidIPVersion", err)
	}
}

func TestDecode(t *testing.T) {
	env1, _ := BuildRequest(testType, &Client{seq: 1})
	env1.Attrs.Uint32(1, 1)
	env2, _ := BuildRequest(testType, &Client{seq: 2})
	env2.Attrs.String(3, "ab")

	b := append(marshal(t, env1), marshal(t, env2)...)

	msgs, err := Decode(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Header.Sequence != 1 || msgs[1].Header.Sequence != 2 {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	for _, cut := range []int{1, headerLen - 1, headerLen + 2} {
		if _, err := Decode(b[:cut]); !errors.Is(err, ErrValidate) {
			t.Errorf("cut at %d: got %v, want ErrValidate", cut, err)
		}
	}
}

func TestSend(t *testing.T) {
	conn := &fakeConn{}

	env, _ := BuildRequest(testType, nil)
	env.Attrs.Uint32(1, 1)

	if err := Send(conn, env, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conn.written) != 1 || len(conn.written[0]) != int(env.Header.Length) {
		t.Fatalf("unexpected writes: %v", conn.written)
	}
	if conn.dsts[0] != 0 {
		t.Errorf("got destination %d, want 0", conn.dsts[0])
	}
}

func TestSendShortWrite(t *testing.T) {
	conn := &fakeConn{limit: headerLen}

	env, _ := BuildRequest(testType, nil)
	env.Attrs.Uint32(1, 1)

	if err := Send(conn, env, 1234); !errors.Is(err, ErrShortWrite) {
		t.Errorf("got %v, want ErrShortWrite", err)
	}

	// No silent retries.
	if len(conn.written) != 1 {
		t.Errorf("got %d writes, want 1", len(conn.written))
	}
}

func TestTransport(t *testing.T) {
	hello := RDMA_NL_GET_TYPE(RDMA_NL_IWCM, RDMA_NL_IWPM_HELLO)

	good, _ := BuildRequest(hello, nil)
	good.Attrs.Uint16(IWPM_NLA_HELLO_ABI_VERSION, IWPM_UABI_VERSION)

	missing, _ := BuildRequest(hello, nil)

	unknown, _ := BuildRequest(RDMA_NL_GET_TYPE(RDMA_NL_IWCM, RDMA_NL_IWPM_REMOTE_INFO), nil)

	conn := &fakeConn{limit: headerLen}
	conn.inbound = [][]byte{marshal(t, good), marshal(t, missing), marshal(t, unknown), {0x01}}

	tr := NewTransport(conn, &Config{BufferSize: 512}, nil)

	in, err := tr.Receive()
	if err != nil || len(in) != 1 {
		t.Fatalf("unexpected receive result: %v (%d messages)", err, len(in))
	}
	table, err := tr.Parse(in[0].Message)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := table.Uint16(IWPM_NLA_HELLO_ABI_VERSION); v != IWPM_UABI_VERSION {
		t.Errorf("got abi version %d, want %d", v, IWPM_UABI_VERSION)
	}

	in, _ = tr.Receive()
	if _, err := tr.Parse(in[0].Message); !errors.Is(err, ErrMissingAttribute) {
		t.Errorf("got %v, want ErrMissingAttribute", err)
	}

	in, _ = tr.Receive()
	if _, err := tr.Parse(in[0].Message); !errors.Is(err, ErrUnknownType) {
		t.Errorf("got %v, want ErrUnknownType", err)
	}

	if _, err := tr.Receive(); !errors.Is(err, ErrValidate) {
		t.Errorf("got %v, want ErrValidate", err)
	}

	if err := tr.Send(good, 0); !errors.Is(err, ErrShortWrite) {
		t.Errorf("got %v, want ErrShortWrite", err)
	}

	m := tr.Metrics()
	checks := map[string]float64{
		"received":     testutil.ToFloat64(m.Received.WithLabelValues("HELLO")),
		"missing":      testutil.ToFloat64(m.Rejected.WithLabelValues(reasonMissing)),
		"unknown":      testutil.ToFloat64(m.Rejected.WithLabelValues(reasonUnknown)),
		"validate":     testutil.ToFloat64(m.Rejected.WithLabelValues(reasonValidate)),
		"short writes": testutil.ToFloat64(m.ShortWrites),
	}
	want := map[string]float64{"received": 2, "missing": 1, "unknown": 1, "validate": 1, "short writes": 1}
	if diff := cmp.Diff(want, checks); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageTypes(t *testing.T) {
	for op := uint16(0); op < RDMA_NL_IWPM_NUM_OPS; op++ {
		msgType := RDMA_NL_GET_TYPE(RDMA_NL_IWCM, op)
		if RDMA_NL_GET_CLIENT(msgType) != RDMA_NL_IWCM || RDMA_NL_GET_OP(msgType) != op {
			t.Errorf("op %d: type %#x doesn't round trip", op, msgType)
		}
		if OpName(msgType) == "UNKNOWN" {
			t.Errorf("op %d has no name", op)
		}
	}
}
