package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/scitags/iwpm-go/addr"
	"github.com/scitags/iwpm-go/netlink"
	"github.com/scitags/iwpm-go/sockets"
	"github.com/scitags/iwpm-go/types"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var (
	monitorHello bool

	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Listen on the RDMA netlink channel and log what arrives.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMonitor(ctx)
		},
	}
)

func init() {
	monitorCmd.Flags().BoolVar(&monitorHello, "hello", true, "greet the kernel with our ABI version on startup")
}

func runMonitor(ctx context.Context) error {
	sock, err := sockets.OpenNetlink()
	if err != nil {
		return err
	}
	defer sock.Close()

	timeout := sockets.DefaultConfig.ReadTimeout
	if conf.Sockets != nil {
		timeout = conf.Sockets.ReadTimeout
	}
	if timeout > 0 {
		if err := sock.SetReadTimeout(timeout); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	metrics := netlink.NewMetrics()
	if err := metrics.Register(reg); err != nil {
		return err
	}

	if conf.Metrics != nil && conf.Metrics.Port != 0 {
		srv := serveMetrics(conf.Metrics.Address(), reg)
		defer srv.Close()
	}

	m := newMonitor(netlink.NewTransport(sock, conf.Netlink, metrics))

	if monitorHello {
		if err := m.hello(); err != nil {
			return err
		}
	}

	slog.Info("monitoring netlink channel", "socket", sock)

	for ctx.Err() == nil {
		if err := m.poll(); err != nil {
			return err
		}
	}

	slog.Info("stopping monitor", "clients", m.registry.Len())

	return nil
}

func serveMetrics(address string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Addr: address, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "address", address, "err", err)
		}
	}()

	slog.Info("serving metrics", "address", address)

	return srv
}

type monitor struct {
	t        *netlink.Transport
	registry *netlink.Registry
}

func newMonitor(t *netlink.Transport) *monitor {
	return &monitor{t: t, registry: netlink.NewRegistry()}
}

func (m *monitor) hello() error {
	env, err := netlink.BuildRequest(netlink.RDMA_NL_GET_TYPE(netlink.RDMA_NL_IWCM, netlink.RDMA_NL_IWPM_HELLO), nil)
	if err != nil {
		return err
	}
	env.Attrs.Uint16(netlink.IWPM_NLA_HELLO_ABI_VERSION, netlink.IWPM_UABI_VERSION)

	return m.t.SendToKernel(env)
}

// poll handles whatever arrives within one read. Timeouts and malformed
// datagrams aren't fatal.
func (m *monitor) poll() error {
	in, err := m.t.Receive()
	switch {
	case err == nil:
	case sockets.IsTimeout(err), errors.Is(err, unix.EINTR), errors.Is(err, netlink.ErrValidate):
		return nil
	default:
		return fmt.Errorf("error receiving from netlink: %w", err)
	}

	for _, msg := range in {
		m.handle(msg)
	}

	return nil
}

func (m *monitor) handle(in netlink.Inbound) {
	msgType := uint16(in.Header.Type)
	logger := slog.With("op", netlink.OpName(msgType), "seq", in.Header.Sequence, "src", in.From)

	t, err := m.t.Parse(in.Message)
	if err != nil {
		logger.Warn("couldn't parse netlink message", "err", err)
		return
	}

	switch netlink.RDMA_NL_GET_OP(msgType) {
	case netlink.RDMA_NL_IWPM_REG_PID:
		c, err := m.registry.Register(int(netlink.RDMA_NL_GET_CLIENT(msgType)), in.Header.PID,
			t.String(netlink.IWPM_NLA_REG_IBDEV_NAME), t.String(netlink.IWPM_NLA_REG_ULIB_NAME))
		if err != nil {
			logger.Warn("couldn't register client", "err", err)
			return
		}
		logger.Info("client registered", "client", c, "ifname", t.String(netlink.IWPM_NLA_REG_IF_NAME))

	case netlink.RDMA_NL_IWPM_ADD_MAPPING, netlink.RDMA_NL_IWPM_REMOVE_MAPPING:
		logger.Info("mapping update", "local", sockaddrAttr(t, netlink.IWPM_NLA_MANAGE_ADDR))

	case netlink.RDMA_NL_IWPM_QUERY_MAPPING:
		logger.Info("mapping query",
			"local", sockaddrAttr(t, netlink.IWPM_NLA_QUERY_LOCAL_ADDR),
			"remote", sockaddrAttr(t, netlink.IWPM_NLA_QUERY_REMOTE_ADDR))

	case netlink.RDMA_NL_IWPM_HANDLE_ERR:
		logger.Warn("kernel reported an error", "code", t.Uint16(netlink.IWPM_NLA_ERR_CODE))

	case netlink.RDMA_NL_IWPM_HELLO:
		logger.Info("hello", "abi", t.Uint16(netlink.IWPM_NLA_HELLO_ABI_VERSION))

	default:
		logger.Info("netlink message", "attributes", len(t))
	}
}

func sockaddrAttr(t netlink.Table, i int) slog.Value {
	sa, err := t.Sockaddr(i)
	if err != nil {
		return slog.StringValue(err.Error())
	}

	ap, ok := addr.ToAddrPort(sa)
	if !ok {
		return slog.StringValue("unknown")
	}

	return slog.GroupValue(
		slog.String("addr", ap.String()),
		slog.String("scope", types.AddrScope(ap.Addr()).String()),
	)
}
