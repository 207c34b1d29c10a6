// Package metrics 提供 Prometheus 监控指标
//
// 收集连接、识别握手、请求与中继转发相关的指标。
// 所有方法对 nil *Metrics 安全，未启用指标时组件可以直接传 nil。
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	m.ConnOpened(types.DirOutbound)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-relaymesh/pkg/types"
)

const namespace = "relaymesh"

// 请求/转发结果标签
const (
	OutcomeOK      = "ok"
	OutcomeNotOK   = "not_ok"
	OutcomeError   = "error"
	OutcomeLimited = "limited"
)

// Metrics 指标集合
type Metrics struct {
	ConnectionsActive *prometheus.GaugeVec
	IdentifyDuration  prometheus.Histogram
	RequestsTotal     *prometheus.CounterVec
	RelayForwards     *prometheus.CounterVec
}

// New 创建并注册指标
//
// reg 为 nil 时只创建不注册（测试或不暴露指标时使用）。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "swarm",
				Name:      "connections_active",
				Help:      "Number of open connections by direction",
			},
			[]string{"direction"},
		),
		IdentifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "swarm",
				Name:      "identify_duration_seconds",
				Help:      "Time from connection creation to identification",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "channel",
				Name:      "requests_total",
				Help:      "Outgoing requests by service and outcome",
			},
			[]string{"service", "outcome"},
		),
		RelayForwards: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "forwards_total",
				Help:      "Requests forwarded by relays by service and outcome",
			},
			[]string{"service", "outcome"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.ConnectionsActive, m.IdentifyDuration, m.RequestsTotal, m.RelayForwards)
	}
	return m
}

// ConnOpened 记录连接建立
func (m *Metrics) ConnOpened(dir types.Direction) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(dir.String()).Inc()
}

// ConnClosed 记录连接关闭
func (m *Metrics) ConnClosed(dir types.Direction) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(dir.String()).Dec()
}

// ObserveIdentify 记录识别握手耗时
func (m *Metrics) ObserveIdentify(d time.Duration) {
	if m == nil {
		return
	}
	m.IdentifyDuration.Observe(d.Seconds())
}

// Request 记录一次出站请求结果
func (m *Metrics) Request(service, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(service, outcome).Inc()
}

// Forward 记录一次中继转发结果
func (m *Metrics) Forward(service, outcome string) {
	if m == nil {
		return
	}
	m.RelayForwards.WithLabelValues(service, outcome).Inc()
}
