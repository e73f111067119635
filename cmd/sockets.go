package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/scitags/iwpm-go/sockets"
	"github.com/scitags/iwpm-go/types"
	"github.com/spf13/cobra"
)

var (
	socketsIPv4Port uint16
	socketsIPv6Port uint16
	socketsUDPOnly  bool
	socketsSTUN     string

	socketsCmd = &cobra.Command{
		Use:   "sockets",
		Short: "Open the port mapper sockets and report what they're bound to.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := sockets.DefaultConfig
			if conf.Sockets != nil {
				c = *conf.Sockets
			}
			if cmd.Flags().Changed("ipv4-port") {
				c.IPv4Port = socketsIPv4Port
			}
			if cmd.Flags().Changed("ipv6-port") {
				c.IPv6Port = socketsIPv6Port
			}

			socks, err := openSockets(&c, socketsUDPOnly)
			if err != nil {
				return err
			}
			defer socks.Close()

			for _, s := range []*sockets.Socket{socks.IPv4, socks.IPv6, socks.Netlink} {
				if s == nil {
					continue
				}
				fmt.Println(s)
			}

			if socketsSTUN != "" {
				return reportMappings(socks, socketsSTUN, c.ReadTimeout)
			}

			return nil
		},
	}
)

func init() {
	socketsCmd.Flags().Uint16Var(&socketsIPv4Port, "ipv4-port", sockets.IWPM_PORT, "IPv4 UDP port; 0 picks an ephemeral one")
	socketsCmd.Flags().Uint16Var(&socketsIPv6Port, "ipv6-port", sockets.IWPM_PORT, "IPv6 UDP port; 0 picks an ephemeral one")
	socketsCmd.Flags().BoolVar(&socketsUDPOnly, "udp-only", false, "skip the netlink socket")
	socketsCmd.Flags().StringVar(&socketsSTUN, "stun-server", "", "report the public mapping of each udp socket as seen by this stun server (i.e. stun.l.google.com:3478)")
}

// openSockets opens every socket c asks for, leaving the netlink one out
// if udpOnly is set.
func openSockets(c *sockets.Config, udpOnly bool) (*sockets.Sockets, error) {
	if !udpOnly {
		return sockets.Open(c)
	}

	socks := &sockets.Sockets{}

	var err error
	if socks.IPv4, err = sockets.OpenIPv4(c.IPv4Port); err != nil {
		return nil, err
	}

	if !c.DisableIPv6 {
		if socks.IPv6, err = sockets.OpenIPv6(c.IPv6Port); err != nil {
			socks.Close()
			return nil, err
		}
	}

	slog.Debug("opened udp sockets", "ipv4", socks.IPv4, "ipv6", socks.IPv6)

	return socks, nil
}

// reportMappings queries server from every udp socket in socks and prints
// the mapping it sees.
func reportMappings(socks *sockets.Sockets, server string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = sockets.DefaultConfig.ReadTimeout
	}

	var errs []error
	for network, s := range map[string]*sockets.Socket{"udp4": socks.IPv4, "udp6": socks.IPv6} {
		if s == nil {
			continue
		}

		ua, err := net.ResolveUDPAddr(network, server)
		if err != nil {
			slog.Warn("couldn't resolve stun server", "server", server, "network", network, "err", err)
			continue
		}

		if err := s.SetReadTimeout(timeout); err != nil {
			errs = append(errs, err)
			continue
		}

		mapped, err := s.MappedAddress(ua.AddrPort())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s, err))
			continue
		}

		fmt.Printf("%s -> %s (%s)\n", s, mapped, types.AddrScope(mapped.Addr()))
	}

	return errors.Join(errs...)
}
