// Package netlink implements the control channel between the port mapper
// and the kernel's RDMA subsystem (i.e. NETLINK_RDMA). Be sure to check
// netlink(7) for further information on netlink as a whole.
//
// Envelopes are plain github.com/mdlayher/netlink messages whose payload is
// a list of attributes. Outbound envelopes are created with BuildRequest,
// which stamps them with the next sequence number of the client they're
// addressed to, and handed to Send. Inbound datagrams are split with
// Decode and each message goes through Validate, Parse and CheckAttributes
// (ParseMessage bundles the three) before any attribute is looked at: a
// malformed frame never reaches the wire message codec.
//
// Message types and attribute layouts for the port mapper operations are
// pulled from include/uapi/rdma/rdma_netlink.h.
//
// Nothing in here is safe for concurrent use: both the sockets and the
// per-client sequence counters must be accessed by a single flow.
package netlink
