package netlink

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mdlayher/netlink"
)

var ErrUnknownType = errors.New("unknown netlink message type")

// Inbound is a message as received from the wire.
type Inbound struct {
	netlink.Message

	// From is the PID of the sender; 0 for the kernel.
	From uint32
}

// Transport couples a Conn with accounting. It's just as unsafe for
// concurrent use as the Conn it wraps.
type Transport struct {
	Config

	conn    Conn
	metrics *Metrics
	logger  *slog.Logger
	buf     []byte
}

func NewTransport(conn Conn, c *Config, m *Metrics) *Transport {
	if c == nil {
		c = &DefaultConfig
	}

	if m == nil {
		m = NewMetrics()
	}

	logger := slog.New(slog.DiscardHandler)
	if c.Log {
		logger = slog.Default().With("t", "netlink")
	}

	bufSize := c.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultConfig.BufferSize
	}

	return &Transport{
		Config:  *c,
		conn:    conn,
		metrics: m,
		logger:  logger,
		buf:     make([]byte, bufSize),
	}
}

func (t *Transport) Metrics() *Metrics {
	return t.metrics
}

func (t *Transport) Send(env *Envelope, pid uint32) error {
	if err := Send(t.conn, env, pid); err != nil {
		if errors.Is(err, ErrShortWrite) {
			t.metrics.ShortWrites.Inc()
		}
		t.logger.Warn("error sending netlink message", "type", OpName(uint16(env.Header.Type)), "dst", pid, "err", err)
		return err
	}

	t.metrics.Sent.WithLabelValues(OpName(uint16(env.Header.Type))).Inc()
	t.logger.Debug("sent netlink message", "type", OpName(uint16(env.Header.Type)),
		"seq", env.Header.Sequence, "dst", pid)

	return nil
}

// SendToKernel sends env to the configured kernel PID.
func (t *Transport) SendToKernel(env *Envelope) error {
	return t.Send(env, t.KernelPID)
}

// Receive blocks until a datagram arrives and splits it into messages.
// The returned messages alias an internal buffer that's reused on the
// next call.
func (t *Transport) Receive() ([]Inbound, error) {
	n, from, err := t.conn.ReadFromPID(t.buf)
	if err != nil {
		return nil, err
	}

	msgs, err := Decode(t.buf[:n])
	if err != nil {
		t.metrics.Rejected.WithLabelValues(reasonValidate).Inc()
		t.logger.Warn("dropping malformed netlink datagram", "src", from, "len", n, "err", err)
		return nil, err
	}

	in := make([]Inbound, 0, len(msgs))
	for _, msg := range msgs {
		t.metrics.Received.WithLabelValues(OpName(uint16(msg.Header.Type))).Inc()
		in = append(in, Inbound{Message: msg, From: from})
	}

	return in, nil
}

// Parse looks up the policy for msg's operation and runs it through
// ParseMessage.
func (t *Transport) Parse(msg netlink.Message) (Table, error) {
	policy, ok := PolicyFor(uint16(msg.Header.Type))
	if !ok {
		t.metrics.Rejected.WithLabelValues(reasonUnknown).Inc()
		return nil, fmt.Errorf("%w: %#x", ErrUnknownType, uint16(msg.Header.Type))
	}

	table, err := ParseMessage(msg, policy)
	switch {
	case errors.Is(err, ErrValidate):
		t.metrics.Rejected.WithLabelValues(reasonValidate).Inc()
	case errors.Is(err, ErrParse):
		t.metrics.Rejected.WithLabelValues(reasonParse).Inc()
	case errors.Is(err, ErrMissingAttribute):
		t.metrics.Rejected.WithLabelValues(reasonMissing).Inc()
	}

	return table, err
}
