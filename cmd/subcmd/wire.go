package subcmd

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/scitags/iwpm-go/types"
	"github.com/scitags/iwpm-go/wire"
	"github.com/spf13/cobra"
)

var (
	packType    string
	packAP      string
	packCP      string
	packHandle  uint64
	packPMTime  uint32
	packVersion uint8

	Pack = &cobra.Command{
		Use:   "pack",
		Short: "Encode a port mapper wire message and print it in hex.",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := packMessage()
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(m[:]))
			return nil
		},
	}

	Unpack = &cobra.Command{
		Use:   "unpack <hex>",
		Short: "Decode a hex-encoded port mapper wire message.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := unpackMessage(args[0])
			if err != nil {
				return err
			}
			fmt.Print(describe(p))
			return nil
		},
	}
)

func init() {
	Pack.Flags().StringVar(&packType, "type", "request", "message type: request, accept, ack or reject")
	Pack.Flags().StringVar(&packAP, "ap", "", "accepting (passive) peer address and port (i.e. 192.0.2.1:4000)")
	Pack.Flags().StringVar(&packCP, "cp", "", "connecting (active) peer address and port (i.e. 192.0.2.2:4001)")
	Pack.Flags().Uint64Var(&packHandle, "handle", 0, "association handle")
	Pack.Flags().Uint32Var(&packPMTime, "pmtime", 0, "message timestamp")
	Pack.Flags().Uint8Var(&packVersion, "version", wire.Version, "protocol version")

	Pack.MarkFlagRequired("ap")
	Pack.MarkFlagRequired("cp")
}

func packMessage() (wire.Message, error) {
	mt, ok := wire.ParseMsgType(packType)
	if !ok {
		return wire.Message{}, fmt.Errorf("unknown message type %q", packType)
	}

	ap, err := netip.ParseAddrPort(packAP)
	if err != nil {
		return wire.Message{}, fmt.Errorf("error parsing the accepting peer address: %w", err)
	}

	cp, err := netip.ParseAddrPort(packCP)
	if err != nil {
		return wire.Message{}, fmt.Errorf("error parsing the connecting peer address: %w", err)
	}

	if ap.Addr().Unmap().Is4() != cp.Addr().Unmap().Is4() {
		return wire.Message{}, fmt.Errorf("address families of %s and %s differ", ap, cp)
	}

	p := wire.Params{
		Timestamp:   packPMTime,
		AssocHandle: packHandle,
		Version:     packVersion,
		Type:        mt,
	}
	p.SetAPAddr(ap)
	p.SetCPAddr(cp)

	slog.Debug("packing message", "params", p)

	return wire.Pack(p), nil
}

func unpackMessage(s string) (wire.Params, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return wire.Params{}, fmt.Errorf("error decoding hex: %w", err)
	}

	var m wire.Message
	if err := m.UnmarshalBinary(b); err != nil {
		return wire.Params{}, err
	}

	return wire.Unpack(m)
}

func describe(p wire.Params) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "magic:   %s\n", wire.NewMagic(p.IPVersion, p.Version, p.Type))
	fmt.Fprintf(&sb, "pmtime:  %d\n", p.Timestamp)
	fmt.Fprintf(&sb, "handle:  %#016x\n", p.AssocHandle)
	fmt.Fprintf(&sb, "ap:      %s (%s)\n", p.APAddrPort(), types.AddrScope(p.APAddrPort().Addr()))
	fmt.Fprintf(&sb, "cp:      %s (%s)\n", p.CPAddrPort(), types.AddrScope(p.CPAddrPort().Addr()))

	return sb.String()
}
