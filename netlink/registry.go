package netlink

import (
	"errors"
	"fmt"
)

// MaxClients bounds the RDMA netlink client indices (i.e. RDMA_NL_IWCM,
// RDMA_NL_NES, RDMA_NL_C4IW...) the registry can hold. Slot 0 is never
// handed out.
const MaxClients = 64

var ErrInvalidClient = errors.New("invalid client index")

// Client is a kernel client of the port mapper. Every message sent its way
// consumes the next value of its sequence counter, which is a plain
// counter: accesses must be serialised by the caller.
type Client struct {
	// Index is the RDMA netlink client the kernel registered from, as
	// extracted with RDMA_NL_GET_CLIENT.
	Index int

	// PID is the netlink port messages to this client are addressed to.
	PID uint32

	IbdevName string
	UlibName  string

	seq uint32
}

// NextSeq returns the sequence number to use on the next message and
// advances the counter.
func (c *Client) NextSeq() uint32 {
	seq := c.seq
	c.seq++
	return seq
}

// Seq returns the sequence number the next message will carry.
func (c *Client) Seq() uint32 {
	return c.seq
}

func (c *Client) String() string {
	return fmt.Sprintf("client(%d;pid=%d;ibdev=%s;ulib=%s)", c.Index, c.PID, c.IbdevName, c.UlibName)
}

// Registry keeps track of registered clients indexed by their RDMA netlink
// client. It replaces a global table so that callers hand it explicitly to
// whoever needs sequence numbers.
type Registry struct {
	clients [MaxClients]*Client
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register stores the client at idx. Registering an index again refreshes
// its PID and names but preserves its sequence counter.
func (r *Registry) Register(idx int, pid uint32, ibdev, ulib string) (*Client, error) {
	if idx <= 0 || idx >= MaxClients {
		return nil, fmt.Errorf("%w: %d", ErrInvalidClient, idx)
	}

	if c := r.clients[idx]; c != nil {
		c.PID, c.IbdevName, c.UlibName = pid, ibdev, ulib
		return c, nil
	}

	r.clients[idx] = &Client{Index: idx, PID: pid, IbdevName: ibdev, UlibName: ulib}
	return r.clients[idx], nil
}

// Get returns the client registered at idx or nil.
func (r *Registry) Get(idx int) *Client {
	if idx <= 0 || idx >= MaxClients {
		return nil
	}
	return r.clients[idx]
}

func (r *Registry) Remove(idx int) bool {
	if r.Get(idx) == nil {
		return false
	}
	r.clients[idx] = nil
	return true
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	n := 0
	for _, c := range r.clients {
		if c != nil {
			n++
		}
	}
	return n
}
