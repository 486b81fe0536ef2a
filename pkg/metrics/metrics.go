package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NodeMetrics groups the collectors exported on /metrics
type NodeMetrics struct {
	txTotal      *prometheus.CounterVec
	txDuration   prometheus.Histogram
	slotHeight   prometheus.Gauge
	mempoolSize  prometheus.Gauge
	escrowOrders *prometheus.CounterVec
	gossip       *prometheus.CounterVec
}

var (
	nodeOnce     sync.Once
	nodeRegistry *NodeMetrics
)

// Node returns the process-wide metrics registry, registering on first use
func Node() *NodeMetrics {
	nodeOnce.Do(func() {
		nodeRegistry = &NodeMetrics{
			txTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrowd_tx_total",
				Help: "Transactions handled by the runtime, by outcome.",
			}, []string{"outcome"}),
			txDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "escrowd_tx_duration_seconds",
				Help:    "Wall time spent executing and committing a transaction.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			}),
			slotHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrowd_slot_height",
				Help: "Most recently committed slot.",
			}),
			mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrowd_mempool_size",
				Help: "Transactions waiting for inclusion.",
			}),
			escrowOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrowd_escrow_orders_total",
				Help: "Escrow order lifecycle operations that committed, by operation.",
			}, []string{"op"}),
			gossip: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrowd_gossip_messages_total",
				Help: "Transactions exchanged over gossip, by direction.",
			}, []string{"direction"}),
		}
		prometheus.MustRegister(
			nodeRegistry.txTotal,
			nodeRegistry.txDuration,
			nodeRegistry.slotHeight,
			nodeRegistry.mempoolSize,
			nodeRegistry.escrowOrders,
			nodeRegistry.gossip,
		)
	})
	return nodeRegistry
}

// ObserveTx records one transaction outcome ("success", "failed", "rejected")
func (m *NodeMetrics) ObserveTx(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.txTotal.WithLabelValues(outcome).Inc()
	m.txDuration.Observe(elapsed.Seconds())
}

func (m *NodeMetrics) SetSlotHeight(slot uint64) {
	if m == nil {
		return
	}
	m.slotHeight.Set(float64(slot))
}

func (m *NodeMetrics) SetMempoolSize(n int) {
	if m == nil {
		return
	}
	m.mempoolSize.Set(float64(n))
}

// ObserveEscrowOrder counts committed escrow operations ("create", "fulfil")
func (m *NodeMetrics) ObserveEscrowOrder(op string) {
	if m == nil {
		return
	}
	m.escrowOrders.WithLabelValues(op).Inc()
}

// ObserveGossip counts gossip traffic ("in", "out", "invalid")
func (m *NodeMetrics) ObserveGossip(direction string) {
	if m == nil {
		return
	}
	m.gossip.WithLabelValues(direction).Inc()
}
