package netlink

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Rejection reasons as exported on the reason label.
const (
	reasonValidate = "validate"
	reasonParse    = "parse"
	reasonMissing  = "missing"
	reasonUnknown  = "unknown"
)

type Metrics struct {
	Sent        *prometheus.CounterVec
	Received    *prometheus.CounterVec
	Rejected    *prometheus.CounterVec
	ShortWrites prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iwpm",
			Subsystem: "netlink",
			Name:      "sent_total",
			Help:      "Netlink messages sent, by operation.",
		}, []string{"op"}),
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iwpm",
			Subsystem: "netlink",
			Name:      "received_total",
			Help:      "Netlink messages received, by operation.",
		}, []string{"op"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iwpm",
			Subsystem: "netlink",
			Name:      "rejected_total",
			Help:      "Inbound netlink messages dropped, by reason.",
		}, []string{"reason"}),
		ShortWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iwpm",
			Subsystem: "netlink",
			Name:      "short_writes_total",
			Help:      "Netlink sends that transmitted fewer bytes than the message length.",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Sent, m.Received, m.Rejected, m.ShortWrites} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("error registering netlink metrics: %w", err)
		}
	}
	return nil
}
