package sockets

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/pion/stun/v3"
	"github.com/scitags/iwpm-go/addr"
	"golang.org/x/sys/unix"
)

// stunBufferSize comfortably holds a binding response.
const stunBufferSize = 1500

var ErrSTUN = errors.New("stun binding failed")

// MappedAddress sends a STUN binding request to server from s and returns
// the address and port the server saw it coming from. Port mappers behind
// a NAT advertise this mapping instead of the local one. Datagrams other
// than the matching response are discarded, so a read timeout should be
// set on s beforehand.
func (s *Socket) MappedAddress(server netip.AddrPort) (netip.AddrPort, error) {
	if s.kind == Netlink {
		return netip.AddrPort{}, fmt.Errorf("%w: %s is not a udp socket", ErrSTUN, s)
	}

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest, stun.Fingerprint)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("error building the binding request: %w", err)
	}

	if err := unix.Sendto(s.fd, req.Raw, 0, addr.FromAddrPort(server)); err != nil {
		return netip.AddrPort{}, fmt.Errorf("error sending the binding request to %s: %w", server, err)
	}

	buf := make([]byte, stunBufferSize)
	for {
		n, _, err := unix.Recvfrom(s.fd, buf, 0)
		if err != nil {
			return netip.AddrPort{}, fmt.Errorf("error waiting for the binding response: %w", err)
		}

		if !stun.IsMessage(buf[:n]) {
			slog.Debug("ignoring non-stun datagram", "socket", s, "len", n)
			continue
		}

		res := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
		if err := res.Decode(); err != nil {
			slog.Debug("ignoring undecodable stun message", "socket", s, "err", err)
			continue
		}

		if res.TransactionID != req.TransactionID {
			slog.Debug("ignoring stale stun message", "socket", s)
			continue
		}

		if res.Type != stun.BindingSuccess {
			return netip.AddrPort{}, fmt.Errorf("%w: got a %s from %s", ErrSTUN, res.Type, server)
		}

		var xorAddr stun.XORMappedAddress
		if err := xorAddr.GetFrom(res); err != nil {
			return netip.AddrPort{}, fmt.Errorf("%w: %w", ErrSTUN, err)
		}

		ip, ok := netip.AddrFromSlice(xorAddr.IP)
		if !ok {
			return netip.AddrPort{}, fmt.Errorf("%w: bogus mapped address %v", ErrSTUN, xorAddr.IP)
		}

		mapped := netip.AddrPortFrom(ip.Unmap(), uint16(xorAddr.Port))
		slog.Debug("got mapped address", "socket", s, "server", server, "mapped", mapped)

		return mapped, nil
	}
}
