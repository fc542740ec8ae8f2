package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 封装zap日志器，提供结构化日志功能
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	cores := []zapcore.Core{}

	if len(cfg.Outputs) == 0 || contains(cfg.Outputs, "stdout") {
		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		fileWriter, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file failed: %w", err)
		}
		encoder := zapcore.NewJSONEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(fileWriter), level))
	}

	// 错误日志单独文件
	if cfg.ErrorFile != "" {
		errorWriter, err := os.OpenFile(cfg.ErrorFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		encoder := zapcore.NewJSONEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(errorWriter), zapcore.ErrorLevel))
	}

	core := zapcore.NewTee(cores...)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{Logger: zapLogger, config: cfg}, nil
}

// NewNop 返回丢弃所有输出的Logger，测试用。
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// WithSymbol 返回绑定交易对字段的logger
func (l *Logger) WithSymbol(symbol string) *Logger {
	return &Logger{
		Logger: l.Logger.With(zap.String("symbol", symbol)),
		config: l.config,
	}
}

// LogQuote 记录一次报价
func (l *Logger) LogQuote(symbol string, bid, ask, mid, inventory float64) {
	l.Debug("quote",
		zap.String("symbol", symbol),
		zap.Float64("bid", bid),
		zap.Float64("ask", ask),
		zap.Float64("mid", mid),
		zap.Float64("inventory", inventory))
}

// LogOrder 记录订单相关事件
func (l *Logger) LogOrder(event, symbol, orderID, side string, price, qty float64) {
	l.Info("order_event",
		zap.String("event", event),
		zap.String("symbol", symbol),
		zap.String("order_id", orderID),
		zap.String("side", side),
		zap.Float64("price", price),
		zap.Float64("quantity", qty))
}

// LogFill 记录成交
func (l *Logger) LogFill(symbol, orderID, side string, price, qty, position float64) {
	l.Info("fill_event",
		zap.String("symbol", symbol),
		zap.String("order_id", orderID),
		zap.String("side", side),
		zap.Float64("price", price),
		zap.Float64("quantity", qty),
		zap.Float64("position", position))
}

// LogRisk 记录风控事件
func (l *Logger) LogRisk(event, symbol string, fields ...zap.Field) {
	all := append([]zap.Field{
		zap.String("event", event),
		zap.String("symbol", symbol),
	}, fields...)
	l.Warn("risk_event", all...)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.Sync()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
