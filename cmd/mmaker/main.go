package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"avellaneda-mm/config"
	"avellaneda-mm/engine"
	"avellaneda-mm/exchange"
	"avellaneda-mm/infrastructure/logger"
	"avellaneda-mm/infrastructure/monitor"
	"avellaneda-mm/market"
	"avellaneda-mm/order"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus 监听地址，覆盖配置文件")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	lg, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()

	mon := monitor.New(monitor.DefaultConfig())
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, mon, lg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := exchange.NewRegistry()
	if err := registry.Register("paper", func(opts exchange.Options) (exchange.Exchange, error) {
		return exchange.NewPaper(order.Constraints{}), nil
	}); err != nil {
		lg.Fatal("注册交易所失败", zap.Error(err))
	}

	ex, err := registry.Open(cfg.Exchange.Name, exchange.Options{StreamURL: cfg.Exchange.StreamURL})
	if err != nil {
		lg.Fatal("打开交易所失败", zap.String("name", cfg.Exchange.Name), zap.Error(err))
	}

	// 行情流：把外部 depth 快照喂给 paper 盘口
	if cfg.Exchange.StreamURL != "" {
		if paper, ok := ex.(*exchange.Paper); ok {
			stream := &exchange.BookStream{
				URL: cfg.Exchange.StreamURL,
				OnError: func(err error) {
					lg.Warn("行情流异常", zap.Error(err))
				},
			}
			go func() {
				if err := stream.Run(ctx, func(b *market.Book) { paper.SetBook(b) }); err != nil && !errors.Is(err, context.Canceled) {
					lg.Error("行情流退出", zap.Error(err))
				}
			}()
		}
	}

	// 配置热监听：只重载校验并提示，不做运行中参数切换
	if watcher, err := config.NewWatcher(*cfgPath, 2*time.Second); err != nil {
		lg.Warn("配置监听不可用", zap.Error(err))
	} else {
		defer watcher.Stop()
		watcher.Start(ctx,
			func(config.AppConfig) {
				lg.Info("配置文件已变更，重启后生效", zap.String("path", *cfgPath))
			},
			func(err error) {
				lg.Error("配置变更校验失败", zap.Error(err))
			})
	}

	// 每个交易对一个引擎
	makers := make([]*engine.Maker, 0, len(cfg.Strategies))
	for _, params := range cfg.Strategies {
		strat, err := config.Resolve(params)
		if err != nil {
			lg.Fatal("解析策略配置失败", zap.String("symbol", params.Symbol), zap.Error(err))
		}
		m, err := engine.New(strat, engine.Deps{Exchange: ex, Logger: lg, Monitor: mon})
		if err != nil {
			lg.Fatal("创建引擎失败", zap.String("symbol", strat.Symbol), zap.Error(err))
		}
		go consumeEvents(m, lg)
		if err := m.Initialize(ctx); err != nil {
			lg.Fatal("引擎预热失败", zap.String("symbol", strat.Symbol), zap.Error(err))
		}
		if err := m.Start(ctx); err != nil {
			lg.Fatal("引擎启动失败", zap.String("symbol", strat.Symbol), zap.Error(err))
		}
		makers = append(makers, m)
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		lg.Debug("sd_notify 不可用", zap.Error(err))
	}
	lg.Info("做市进程就绪",
		zap.Int("engines", len(makers)),
		zap.String("exchange", cfg.Exchange.Name),
		zap.String("env", cfg.Env))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		lg.Debug("sd_notify 不可用", zap.Error(err))
	}
	lg.Info("收到退出信号，开始优雅停机")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	for _, m := range makers {
		if err := m.Stop(stopCtx); err != nil {
			lg.Error("引擎停机失败", zap.Error(err))
		}
		m.Events().Close()
	}
	cancel()
	lg.Info("做市进程已退出")
}

// consumeEvents 把引擎事件转成运维日志。
func consumeEvents(m *engine.Maker, lg *logger.Logger) {
	events, cancel := m.Events().Subscribe(64)
	defer cancel()

	for e := range events {
		switch e.Type {
		case engine.EventStateChange:
			lg.Info("engine_event",
				zap.String("type", string(e.Type)),
				zap.String("symbol", e.Symbol),
				zap.String("from", e.From.String()),
				zap.String("to", e.To.String()))
		case engine.EventUpdate:
			if e.Quote != nil && e.Ledger != nil {
				lg.Debug("engine_event",
					zap.String("type", string(e.Type)),
					zap.String("symbol", e.Symbol),
					zap.Float64("bid", e.Quote.Bid),
					zap.Float64("ask", e.Quote.Ask),
					zap.Float64("position", e.Ledger.Quantity),
					zap.Float64("total_pnl", e.Ledger.TotalPnL))
			}
		case engine.EventError:
			lg.Warn("engine_event",
				zap.String("type", string(e.Type)),
				zap.String("symbol", e.Symbol),
				zap.Error(e.Err))
		default:
			if e.Order != nil {
				lg.Info("engine_event",
					zap.String("type", string(e.Type)),
					zap.String("symbol", e.Symbol),
					zap.String("order_id", e.Order.ID),
					zap.String("side", string(e.Order.Side)),
					zap.Float64("price", e.Order.Price))
			}
		}
	}
}

func serveMetrics(addr string, mon *monitor.Monitor, lg *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mon.Handler())
	lg.Info("metrics 服务启动", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		lg.Error("metrics 服务退出", zap.Error(err))
	}
}
