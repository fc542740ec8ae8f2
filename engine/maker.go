package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"avellaneda-mm/config"
	"avellaneda-mm/exchange"
	"avellaneda-mm/infrastructure/logger"
	"avellaneda-mm/infrastructure/monitor"
	"avellaneda-mm/inventory"
	"avellaneda-mm/market"
	"avellaneda-mm/order"
	"avellaneda-mm/strategy/avellaneda"
)

// ErrStopLoss 标记止损触发导致的停机，通过 ERROR 事件上报。
var ErrStopLoss = errors.New("engine: stop-loss threshold breached")

// Deps 引擎依赖组件
type Deps struct {
	Exchange exchange.Exchange
	Logger   *logger.Logger
	Monitor  *monitor.Monitor // 可为 nil
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime       time.Time
	TotalCycles     int64
	TotalQuotes     int64
	OrdersPlaced    int64
	OrdersCanceled  int64
	Fills           int64
	Errors          int64
	LastCycleTime   time.Time
	LastQuoteTime   time.Time
	StopLossTripped bool
}

// Maker 单交易对的做市引擎：生命周期状态机、定时更新循环、
// 分边对账与止损。一个实例最多持有一买一卖两个挂单句柄。
type Maker struct {
	cfg config.Strategy

	ex      exchange.Exchange
	logger  *logger.Logger
	monitor *monitor.Monitor
	bus     *Bus

	vol       *market.VolatilityEstimator
	intensity *market.IntensityEstimator
	ledger    *inventory.Ledger

	mu    sync.RWMutex
	state State

	// 仅由循环 goroutine 访问
	bidID       string
	askID       string
	bidFilled   float64 // 当前买单句柄上已入账的成交量
	askFilled   float64
	lastSigma   float64
	lastDropped int64

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce *sync.Once

	statsMu sync.RWMutex
	stats   Statistics
}

// New 创建做市引擎。cfg 必须来自 config.Resolve。
func New(cfg config.Strategy, deps Deps) (*Maker, error) {
	if deps.Exchange == nil {
		return nil, errors.New("engine: exchange is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("engine: logger is required")
	}

	mode := market.ModeSample
	if cfg.VolatilityMode == "ewma" {
		mode = market.ModeEWMA
	}
	vol, err := market.NewVolatilityEstimator(cfg.VolatilityWindow, mode, cfg.EWMALambda)
	if err != nil {
		return nil, fmt.Errorf("engine: volatility estimator: %w", err)
	}
	intensity, err := market.NewIntensityEstimator(cfg.KappaWindow)
	if err != nil {
		return nil, fmt.Errorf("engine: intensity estimator: %w", err)
	}

	return &Maker{
		cfg:       cfg,
		ex:        deps.Exchange,
		logger:    deps.Logger.WithSymbol(cfg.Symbol),
		monitor:   deps.Monitor,
		bus:       NewBus(),
		vol:       vol,
		intensity: intensity,
		ledger:    inventory.NewLedger(cfg.MaxPosition, cfg.MinPosition, cfg.TargetInventory),
		state:     StateInitializing,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
		stopOnce:  new(sync.Once),
	}, nil
}

// Events 返回事件总线，供运维侧订阅。
func (m *Maker) Events() *Bus { return m.bus }

// Ledger 返回仓位账本（只读用途）。
func (m *Maker) Ledger() *inventory.Ledger { return m.ledger }

// Initialize 预热波动率估计并从交易所同步初始仓位，完成后进入 STOPPED，
// 等待 Start。K线或仓位获取失败只降级记录，不阻塞启动。
func (m *Maker) Initialize(ctx context.Context) error {
	if err := m.requireState(StateInitializing); err != nil {
		return err
	}

	klines, err := m.ex.GetKlines(ctx, m.cfg.Symbol, m.cfg.KlineInterval, m.cfg.VolatilityWindow)
	if err != nil {
		m.logger.Warn("Kline warmup failed, starting cold", zap.Error(err))
	} else {
		m.vol.AddKlines(klines)
	}

	if err := m.ledger.Initialize(ctx, m.ex, m.cfg.Symbol); err != nil {
		m.logger.Warn("Position snapshot failed, assuming flat", zap.Error(err))
	}

	return m.transition(StateStopped)
}

// Start 启动更新循环。
func (m *Maker) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateStopped {
		cur := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s (Start requires %s)", ErrIllegalTransition, cur, StateRunning, StateStopped)
	}
	from := m.state
	m.state = StateRunning
	// 复启时重建控制通道
	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})
	m.stopOnce = new(sync.Once)
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.StartTime = time.Now()
	m.statsMu.Unlock()

	m.emitStateChange(from, StateRunning)
	m.logger.Info("Market maker starting",
		zap.Duration("update_interval", m.cfg.UpdateInterval),
		zap.Bool("dry_run", m.cfg.DryRun),
		zap.Float64("gamma", m.cfg.Gamma))

	go m.run(ctx)
	return nil
}

// Pause 暂停报价：循环保留，周期跳过，挂单不动。
func (m *Maker) Pause() error {
	if err := m.transition(StatePaused); err != nil {
		return err
	}
	m.logger.Info("Market maker paused")
	return nil
}

// Resume 恢复报价。
func (m *Maker) Resume() error {
	m.mu.Lock()
	if m.state != StatePaused {
		cur := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, StateRunning)
	}
	m.state = StateRunning
	m.mu.Unlock()
	m.emitStateChange(StatePaused, StateRunning)
	m.logger.Info("Market maker resumed")
	return nil
}

// Stop 停止循环并尽力撤销全部挂单。撤单失败只记录，不影响到达 STOPPED。
// 已经 STOPPED 时返回 nil；止损停机进行中时等待其完成。
func (m *Maker) Stop(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateStopped:
		m.mu.Unlock()
		return nil
	case StateStopping:
		doneChan := m.doneChan
		m.mu.Unlock()
		m.waitLoopExit(doneChan)
		return nil
	case StateRunning, StatePaused:
	default:
		cur := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, StateStopping)
	}
	from := m.state
	m.state = StateStopping
	stopOnce, stopChan, doneChan := m.stopOnce, m.stopChan, m.doneChan
	m.mu.Unlock()

	m.emitStateChange(from, StateStopping)
	m.logger.Info("Market maker stopping...")

	stopOnce.Do(func() { close(stopChan) })
	m.waitLoopExit(doneChan)

	m.cancelAll(ctx)

	if err := m.transition(StateStopped); err != nil {
		return err
	}

	report := inventory.Summarize(m.ledger.Trades())
	m.logger.Info("Market maker stopped",
		zap.Int("fills", report.Fills),
		zap.Float64("buy_volume", report.BuyVolume),
		zap.Float64("sell_volume", report.SellVolume),
		zap.Float64("realized_pnl", m.ledger.RealizedPnL()))
	return nil
}

// waitLoopExit 等待循环 goroutine 退出，超时只告警。
func (m *Maker) waitLoopExit(doneChan <-chan struct{}) {
	select {
	case <-doneChan:
	case <-time.After(10 * time.Second):
		m.logger.Warn("Timeout waiting for update loop to stop")
	}
}

// State 返回当前生命周期状态。
func (m *Maker) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// GetStatistics 返回统计快照。
func (m *Maker) GetStatistics() Statistics {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.stats
}

// run 主循环：ticker 驱动，Pause 跳过周期，在途周期总是完整执行。
func (m *Maker) run(ctx context.Context) {
	m.mu.RLock()
	stopChan, doneChan := m.stopChan, m.doneChan
	m.mu.RUnlock()
	defer close(doneChan)

	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Context done, update loop exiting")
			return
		case <-stopChan:
			return
		case <-ticker.C:
			if m.State() != StateRunning {
				continue
			}
			started := time.Now()
			if err := m.cycle(ctx); err != nil {
				m.recordCycleError(err)
			}
			if m.monitor != nil {
				m.monitor.RecordCycleLatency(m.cfg.Symbol, time.Since(started).Seconds())
			}
			m.flushDroppedEvents()
		}
	}
}

// flushDroppedEvents 把总线自上次以来的丢弃增量计入监控。仅循环 goroutine 调用。
func (m *Maker) flushDroppedEvents() {
	if m.monitor == nil {
		return
	}
	if d := m.bus.Dropped(); d > m.lastDropped {
		m.monitor.RecordEventDropped(m.cfg.Symbol, d-m.lastDropped)
		m.lastDropped = d
	}
}

// cycle 一次完整更新：行情 → 估计 → 止损 → 报价 → 分边对账 → 事件。
// 任何失败都被限制在本周期内。
func (m *Maker) cycle(ctx context.Context) error {
	m.statsMu.Lock()
	m.stats.TotalCycles++
	m.stats.LastCycleTime = time.Now()
	m.statsMu.Unlock()

	book, err := m.ex.GetOrderBook(ctx, m.cfg.Symbol, m.cfg.BookDepth)
	if err != nil {
		return fmt.Errorf("get order book: %w", err)
	}
	mid := book.Mid()
	if mid <= 0 {
		return fmt.Errorf("invalid mid price: %f", mid)
	}

	m.vol.AddPrice(mid)
	m.intensity.Observe(book)
	params := m.fuseParams()

	m.ledger.UpdateUnrealizedPnL(mid)

	if m.cfg.StopLossThreshold < 0 && m.ledger.TotalPnL() < m.cfg.StopLossThreshold {
		return m.tripStopLoss(ctx)
	}

	quote, err := avellaneda.Compute(mid, m.ledger.Quantity(), params,
		m.cfg.TickSize, m.cfg.MinSpread, m.cfg.MaxSpreadMultiplier)
	if err != nil {
		return fmt.Errorf("compute quote: %w", err)
	}

	m.statsMu.Lock()
	m.stats.TotalQuotes++
	m.stats.LastQuoteTime = time.Now()
	m.statsMu.Unlock()

	// 两边独立对账：一边失败不阻止另一边
	var firstErr error
	if err := m.reconcile(ctx, order.SideBuy, quote.Bid); err != nil {
		firstErr = err
		m.logger.Error("Bid reconciliation failed", zap.Error(err))
	}
	if err := m.reconcile(ctx, order.SideSell, quote.Ask); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		m.logger.Error("Ask reconciliation failed", zap.Error(err))
	}

	snap := m.ledger.Snapshot()
	m.bus.Publish(Event{Type: EventUpdate, Symbol: m.cfg.Symbol, Quote: &quote, Ledger: &snap})

	if m.monitor != nil {
		m.monitor.UpdateQuote(m.cfg.Symbol, quote.Mid, quote.ReservationPrice, quote.HalfSpread, quote.Bid, quote.Ask)
		m.monitor.UpdateParams(m.cfg.Symbol, params.Sigma, params.Kappa)
		m.monitor.UpdateLedger(m.cfg.Symbol, snap.Quantity, snap.UnrealizedPnL, snap.RealizedPnL)
	}
	m.logger.LogQuote(m.cfg.Symbol, quote.Bid, quote.Ask, quote.Mid, quote.Inventory)

	return firstErr
}

// fuseParams 融合本周期参数：固定配置优先，估计值次之，
// κ 可由波动率兜底，σ 缺失时沿用上一次的值。
func (m *Maker) fuseParams() avellaneda.Params {
	sigma := m.cfg.FixedSigma
	if sigma <= 0 {
		if s, ok := m.vol.Calculate(); ok {
			sigma = s
			m.lastSigma = s
		} else {
			sigma = m.lastSigma
		}
	}

	kappa := m.cfg.FixedKappa
	if kappa <= 0 {
		if k, ok := m.intensity.Calculate(m.cfg.MaxSpreadMultiplier); ok {
			kappa = k
		} else {
			kappa = market.KappaFromVolatility(sigma)
		}
	}

	return avellaneda.Params{Gamma: m.cfg.Gamma, Kappa: kappa, Sigma: sigma}
}

// tripStopLoss 止损：撤单、进入 STOPPED，本周期不再报价。
func (m *Maker) tripStopLoss(ctx context.Context) error {
	snap := m.ledger.Snapshot()
	m.logger.LogRisk("stop_loss", m.cfg.Symbol,
		zap.Float64("total_pnl", snap.TotalPnL),
		zap.Float64("threshold", m.cfg.StopLossThreshold))

	m.statsMu.Lock()
	m.stats.StopLossTripped = true
	m.statsMu.Unlock()

	m.cancelAll(ctx)
	m.bus.Publish(Event{Type: EventError, Symbol: m.cfg.Symbol, Err: ErrStopLoss, Ledger: &snap})

	m.mu.Lock()
	if m.state != StateRunning {
		// 操作员 Stop 已先行接管停机
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	stopOnce, stopChan := m.stopOnce, m.stopChan
	m.mu.Unlock()
	m.emitStateChange(StateRunning, StateStopping)

	stopOnce.Do(func() { close(stopChan) })
	return m.transition(StateStopped)
}

// reconcile 对一边的挂单做最小调整：缺则挂、成交则入账重挂、
// 偏移超过一个 tick 则撤换、触及仓位限额则只撤不挂。
func (m *Maker) reconcile(ctx context.Context, side order.Side, price float64) error {
	qty := m.orderQuantity()
	if qty <= 0 {
		return nil
	}

	handle, applied := &m.bidID, &m.bidFilled
	if side == order.SideSell {
		handle, applied = &m.askID, &m.askFilled
	}

	if m.cfg.DryRun {
		m.logger.Debug("Dry-run quote",
			zap.String("side", string(side)),
			zap.Float64("price", price),
			zap.Float64("quantity", qty))
		return nil
	}

	// 限额：本边会扩大仓位越界时撤单并跳过
	breached := (side == order.SideBuy && !m.ledger.CanBuy(qty)) ||
		(side == order.SideSell && !m.ledger.CanSell(qty))
	if breached {
		if *handle != "" {
			m.cancel(ctx, side, *handle)
			*handle = ""
		}
		m.logger.Debug("Position limit reached, side idle", zap.String("side", string(side)))
		return nil
	}

	if *handle == "" {
		*applied = 0
		return m.place(ctx, side, price, qty, handle)
	}

	o, err := m.ex.GetOrder(ctx, m.cfg.Symbol, *handle)
	if errors.Is(err, exchange.ErrOrderNotFound) {
		*handle, *applied = "", 0
		return m.place(ctx, side, price, qty, handle)
	}
	if err != nil {
		return fmt.Errorf("get order %s: %w", *handle, err)
	}

	switch {
	case o.Status == order.StatusFilled:
		m.applyFill(side, o, o.Quantity-*applied)
		*handle, *applied = "", 0
		return m.place(ctx, side, price, qty, handle)

	case o.Status.Active():
		// 先把新增的已成交部分入账再决定去留，部分成交不能等撤换才记账
		if delta := o.ExecutedQuantity - *applied; delta > 0 {
			m.applyFill(side, o, delta)
			*applied = o.ExecutedQuantity
		}
		if math.Abs(price-o.Price) < m.cfg.TickSize {
			return nil // 足够接近，保留
		}
		m.cancel(ctx, side, *handle)
		*handle, *applied = "", 0
		return m.place(ctx, side, price, qty, handle)

	default:
		// 其他终态视同无挂单，残余成交量同样入账
		if delta := o.ExecutedQuantity - *applied; delta > 0 {
			m.applyFill(side, o, delta)
		}
		*handle, *applied = "", 0
		return m.place(ctx, side, price, qty, handle)
	}
}

// orderQuantity 将配置的下单量对齐到 lotSize。
func (m *Maker) orderQuantity() float64 {
	qty := m.cfg.OrderSize
	if m.cfg.LotSize > 0 {
		qty = math.Floor(qty/m.cfg.LotSize) * m.cfg.LotSize
	}
	if qty < m.cfg.MinQty {
		return 0
	}
	return qty
}

func (m *Maker) place(ctx context.Context, side order.Side, price, qty float64, handle *string) error {
	o, err := m.ex.PlaceOrder(ctx, order.Request{
		Symbol:      m.cfg.Symbol,
		Side:        side,
		Type:        order.TypeLimit,
		Price:       price,
		Quantity:    qty,
		TimeInForce: order.GTC,
	})
	if err != nil {
		return fmt.Errorf("place %s: %w", side, err)
	}
	*handle = o.ID

	m.statsMu.Lock()
	m.stats.OrdersPlaced++
	m.statsMu.Unlock()

	m.bus.Publish(Event{Type: EventOrderPlaced, Symbol: m.cfg.Symbol, Order: o})
	if m.monitor != nil {
		m.monitor.RecordOrderPlaced(m.cfg.Symbol, string(side))
	}
	m.logger.LogOrder("placed", m.cfg.Symbol, o.ID, string(side), price, qty)
	return nil
}

// cancel 撤单，失败只记录；已消失的订单视为撤销成功。
func (m *Maker) cancel(ctx context.Context, side order.Side, id string) {
	err := m.ex.CancelOrder(ctx, m.cfg.Symbol, id)
	if err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
		m.logger.Warn("Cancel failed", zap.String("order_id", id), zap.Error(err))
		return
	}

	m.statsMu.Lock()
	m.stats.OrdersCanceled++
	m.statsMu.Unlock()

	m.bus.Publish(Event{Type: EventOrderCancelled, Symbol: m.cfg.Symbol,
		Order: &order.Order{ID: id, Symbol: m.cfg.Symbol, Side: side}})
	if m.monitor != nil {
		m.monitor.RecordOrderCanceled(m.cfg.Symbol, string(side))
	}
}

// applyFill 将成交量入账并发布事件。
func (m *Maker) applyFill(side order.Side, o *order.Order, qty float64) {
	if qty <= 0 {
		return
	}
	if err := m.ledger.ApplyFill(side, qty, o.Price); err != nil {
		m.logger.Error("Apply fill failed", zap.String("order_id", o.ID), zap.Error(err))
		return
	}

	m.statsMu.Lock()
	m.stats.Fills++
	m.statsMu.Unlock()

	m.bus.Publish(Event{Type: EventOrderFilled, Symbol: m.cfg.Symbol, Order: o})
	if m.monitor != nil {
		m.monitor.RecordOrderFilled(m.cfg.Symbol, string(side))
	}
	m.logger.LogFill(m.cfg.Symbol, o.ID, string(side), o.Price, qty, m.ledger.Quantity())
}

// cancelAll 尽力撤销全部挂单，清空句柄。
func (m *Maker) cancelAll(ctx context.Context) {
	if m.cfg.DryRun {
		return
	}
	if err := m.ex.CancelAllOrders(ctx, m.cfg.Symbol); err != nil {
		m.logger.Error("Cancel all orders failed", zap.Error(err))
	}
	m.bidID, m.askID = "", ""
	m.bidFilled, m.askFilled = 0, 0
}

// transition 执行一次状态转换并发布 STATE_CHANGE。
func (m *Maker) transition(to State) error {
	m.mu.Lock()
	from := m.state
	if err := validateTransition(from, to); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = to
	m.mu.Unlock()

	m.emitStateChange(from, to)
	return nil
}

func (m *Maker) requireState(want State) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != want {
		return fmt.Errorf("%w: expected %s, in %s", ErrIllegalTransition, want, m.state)
	}
	return nil
}

func (m *Maker) emitStateChange(from, to State) {
	m.bus.Publish(Event{Type: EventStateChange, Symbol: m.cfg.Symbol, From: from, To: to})
	if m.monitor != nil {
		m.monitor.UpdateEngineState(m.cfg.Symbol, int(to))
	}
	m.logger.Info("State changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

func (m *Maker) recordCycleError(err error) {
	m.statsMu.Lock()
	m.stats.Errors++
	m.statsMu.Unlock()

	m.bus.Publish(Event{Type: EventError, Symbol: m.cfg.Symbol, Err: err})
	if m.monitor != nil {
		m.monitor.RecordCycleError(m.cfg.Symbol)
	}
	m.logger.Error("Update cycle failed", zap.Error(err))
}
