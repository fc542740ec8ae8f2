package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器。多策略共用一个实例，按 symbol 打标签。
type Monitor struct {
	registry *prometheus.Registry

	// 报价指标
	midPrice         *prometheus.GaugeVec
	reservationPrice *prometheus.GaugeVec
	halfSpread       *prometheus.GaugeVec
	bidPrice         *prometheus.GaugeVec
	askPrice         *prometheus.GaugeVec

	// 参数估计指标
	sigma *prometheus.GaugeVec
	kappa *prometheus.GaugeVec

	// 仓位与盈亏指标
	position      *prometheus.GaugeVec
	unrealizedPnL *prometheus.GaugeVec
	realizedPnL   *prometheus.GaugeVec

	// 订单指标
	ordersPlaced   *prometheus.CounterVec
	ordersCanceled *prometheus.CounterVec
	ordersFilled   *prometheus.CounterVec

	// 引擎指标
	engineState   *prometheus.GaugeVec
	cycleErrors   *prometheus.CounterVec
	cycleLatency  *prometheus.HistogramVec
	eventsDropped *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "mm",
		Subsystem: "avellaneda",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	symbol := []string{"symbol"}

	return &Monitor{
		registry: reg,

		midPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "mid_price",
			Help:      "当前中间价",
		}, symbol),
		reservationPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "reservation_price",
			Help:      "库存调整后的报价中心",
		}, symbol),
		halfSpread: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "half_spread",
			Help:      "当前半价差",
		}, symbol),
		bidPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "bid_price",
			Help:      "当前买报价",
		}, symbol),
		askPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ask_price",
			Help:      "当前卖报价",
		}, symbol),

		sigma: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sigma",
			Help:      "短期波动率估计",
		}, symbol),
		kappa: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "kappa",
			Help:      "订单到达强度估计",
		}, symbol),

		position: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "position",
			Help:      "当前净仓位",
		}, symbol),
		unrealizedPnL: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "unrealized_pnl",
			Help:      "未实现盈亏",
		}, symbol),
		realizedPnL: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "realized_pnl",
			Help:      "已实现盈亏",
		}, symbol),

		ordersPlaced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_placed_total",
			Help:      "订单下单总数",
		}, []string{"symbol", "side"}),
		ordersCanceled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_canceled_total",
			Help:      "订单撤单总数",
		}, []string{"symbol", "side"}),
		ordersFilled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_filled_total",
			Help:      "订单成交总数",
		}, []string{"symbol", "side"}),

		engineState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "engine_state",
			Help:      "引擎状态(0=初始化,1=运行,2=暂停,3=停止中,4=已停止)",
		}, symbol),
		cycleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cycle_errors_total",
			Help:      "更新周期错误总数",
		}, symbol),
		cycleLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cycle_latency_seconds",
			Help:      "更新周期耗时分布（秒）",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, symbol),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "events_dropped_total",
			Help:      "慢订阅者丢弃的事件总数",
		}, symbol),
	}
}

// UpdateQuote 更新一次报价的全部指标。
func (m *Monitor) UpdateQuote(symbol string, mid, reservation, halfSpread, bid, ask float64) {
	m.midPrice.WithLabelValues(symbol).Set(mid)
	m.reservationPrice.WithLabelValues(symbol).Set(reservation)
	m.halfSpread.WithLabelValues(symbol).Set(halfSpread)
	m.bidPrice.WithLabelValues(symbol).Set(bid)
	m.askPrice.WithLabelValues(symbol).Set(ask)
}

// UpdateParams 更新参数估计指标。
func (m *Monitor) UpdateParams(symbol string, sigma, kappa float64) {
	m.sigma.WithLabelValues(symbol).Set(sigma)
	m.kappa.WithLabelValues(symbol).Set(kappa)
}

// UpdateLedger 更新仓位与盈亏指标。
func (m *Monitor) UpdateLedger(symbol string, position, unrealized, realized float64) {
	m.position.WithLabelValues(symbol).Set(position)
	m.unrealizedPnL.WithLabelValues(symbol).Set(unrealized)
	m.realizedPnL.WithLabelValues(symbol).Set(realized)
}

func (m *Monitor) RecordOrderPlaced(symbol, side string) {
	m.ordersPlaced.WithLabelValues(symbol, side).Inc()
}

func (m *Monitor) RecordOrderCanceled(symbol, side string) {
	m.ordersCanceled.WithLabelValues(symbol, side).Inc()
}

func (m *Monitor) RecordOrderFilled(symbol, side string) {
	m.ordersFilled.WithLabelValues(symbol, side).Inc()
}

func (m *Monitor) UpdateEngineState(symbol string, state int) {
	m.engineState.WithLabelValues(symbol).Set(float64(state))
}

func (m *Monitor) RecordCycleError(symbol string) {
	m.cycleErrors.WithLabelValues(symbol).Inc()
}

func (m *Monitor) RecordCycleLatency(symbol string, seconds float64) {
	m.cycleLatency.WithLabelValues(symbol).Observe(seconds)
}

// RecordEventDropped 累加慢订阅者丢弃的事件数，n 为自上次上报以来的增量。
func (m *Monitor) RecordEventDropped(symbol string, n int64) {
	if n <= 0 {
		return
	}
	m.eventsDropped.WithLabelValues(symbol).Add(float64(n))
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
