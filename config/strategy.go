package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation 配置校验失败的基错误，所有字段级错误都包裹它。
var ErrValidation = errors.New("config validation failed")

// Params 用户意图：部分字段可留空，由 preset 与默认值补齐。
// Resolve 之后才成为可用的 Strategy。
type Params struct {
	Symbol     string `yaml:"symbol"`
	BaseAsset  string `yaml:"baseAsset"`
	QuoteAsset string `yaml:"quoteAsset"`
	Preset     string `yaml:"preset"` // conservative / moderate / aggressive，可留空

	OrderSize float64 `yaml:"orderSize"` // 单笔下单数量（基础资产）
	TickSize  float64 `yaml:"tickSize"`
	LotSize   float64 `yaml:"lotSize"`
	MinQty    float64 `yaml:"minQty"`

	MaxPosition     float64 `yaml:"maxPosition"` // 多头上限，> 0
	MinPosition     float64 `yaml:"minPosition"` // 空头下限，< 0
	TargetInventory float64 `yaml:"targetInventory"`

	Gamma               float64 `yaml:"gamma"`               // 风险厌恶系数 γ
	MinSpread           float64 `yaml:"minSpread"`           // 绝对最小价差
	MaxSpreadMultiplier float64 `yaml:"maxSpreadMultiplier"` // 上限 = 2δ·multiplier

	FixedSigma float64 `yaml:"fixedSigma"` // > 0 时覆盖估计值
	FixedKappa float64 `yaml:"fixedKappa"` // > 0 时覆盖估计值

	VolatilityWindow int     `yaml:"volatilityWindow"`
	VolatilityMode   string  `yaml:"volatilityMode"` // sample / ewma
	EWMALambda       float64 `yaml:"ewmaLambda"`
	KappaWindow      int     `yaml:"kappaWindow"`

	UpdateIntervalMs  int     `yaml:"updateIntervalMs"`
	StopLossThreshold float64 `yaml:"stopLossThreshold"` // ≤ 0；0 表示禁用
	DryRun            bool    `yaml:"dryRun"`

	KlineInterval string `yaml:"klineInterval"` // 预热波动率用的K线周期
	BookDepth     int    `yaml:"bookDepth"`
}

// Strategy 已解析并通过校验的策略配置。Resolve 之后不再修改。
type Strategy struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string

	OrderSize float64
	TickSize  float64
	LotSize   float64
	MinQty    float64

	MaxPosition     float64
	MinPosition     float64
	TargetInventory float64

	Gamma               float64
	MinSpread           float64
	MaxSpreadMultiplier float64

	FixedSigma float64
	FixedKappa float64

	VolatilityWindow int
	VolatilityMode   string
	EWMALambda       float64
	KappaWindow      int

	UpdateInterval    time.Duration
	StopLossThreshold float64
	DryRun            bool

	KlineInterval string
	BookDepth     int
}

// preset 预设只提供默认值：γ、价差上限、节奏与窗口。纯数据，无行为。
type preset struct {
	Gamma               float64
	MaxSpreadMultiplier float64
	UpdateIntervalMs    int
	VolatilityWindow    int
	KappaWindow         int
}

var presets = map[string]preset{
	"conservative": {Gamma: 0.5, MaxSpreadMultiplier: 4, UpdateIntervalMs: 2000, VolatilityWindow: 120, KappaWindow: 60},
	"moderate":     {Gamma: 0.1, MaxSpreadMultiplier: 3, UpdateIntervalMs: 1000, VolatilityWindow: 100, KappaWindow: 50},
	"aggressive":   {Gamma: 0.02, MaxSpreadMultiplier: 2, UpdateIntervalMs: 500, VolatilityWindow: 60, KappaWindow: 30},
}

// PresetNames 返回可用的预设名。
func PresetNames() []string {
	return []string{"conservative", "moderate", "aggressive"}
}

// Resolve 按 preset 与默认值补齐 Params 并整体校验。
// 校验失败不返回部分结果（fail closed）。
func Resolve(p Params) (Strategy, error) {
	if p.Preset != "" {
		pre, ok := presets[p.Preset]
		if !ok {
			return Strategy{}, fmt.Errorf("%w: unknown preset %q (known: %v)", ErrValidation, p.Preset, PresetNames())
		}
		if p.Gamma == 0 {
			p.Gamma = pre.Gamma
		}
		if p.MaxSpreadMultiplier == 0 {
			p.MaxSpreadMultiplier = pre.MaxSpreadMultiplier
		}
		if p.UpdateIntervalMs == 0 {
			p.UpdateIntervalMs = pre.UpdateIntervalMs
		}
		if p.VolatilityWindow == 0 {
			p.VolatilityWindow = pre.VolatilityWindow
		}
		if p.KappaWindow == 0 {
			p.KappaWindow = pre.KappaWindow
		}
	}

	// 无 preset 时的兜底默认
	if p.VolatilityWindow == 0 {
		p.VolatilityWindow = 100
	}
	if p.KappaWindow == 0 {
		p.KappaWindow = 50
	}
	if p.UpdateIntervalMs == 0 {
		p.UpdateIntervalMs = 1000
	}
	if p.MaxSpreadMultiplier == 0 {
		p.MaxSpreadMultiplier = 3
	}
	if p.VolatilityMode == "" {
		p.VolatilityMode = "sample"
	}
	if p.EWMALambda == 0 {
		p.EWMALambda = 0.94
	}
	if p.KlineInterval == "" {
		p.KlineInterval = "1m"
	}
	if p.BookDepth == 0 {
		p.BookDepth = 5
	}

	if err := validateParams(p); err != nil {
		return Strategy{}, err
	}

	return Strategy{
		Symbol:              p.Symbol,
		BaseAsset:           p.BaseAsset,
		QuoteAsset:          p.QuoteAsset,
		OrderSize:           p.OrderSize,
		TickSize:            p.TickSize,
		LotSize:             p.LotSize,
		MinQty:              p.MinQty,
		MaxPosition:         p.MaxPosition,
		MinPosition:         p.MinPosition,
		TargetInventory:     p.TargetInventory,
		Gamma:               p.Gamma,
		MinSpread:           p.MinSpread,
		MaxSpreadMultiplier: p.MaxSpreadMultiplier,
		FixedSigma:          p.FixedSigma,
		FixedKappa:          p.FixedKappa,
		VolatilityWindow:    p.VolatilityWindow,
		VolatilityMode:      p.VolatilityMode,
		EWMALambda:          p.EWMALambda,
		KappaWindow:         p.KappaWindow,
		UpdateInterval:      time.Duration(p.UpdateIntervalMs) * time.Millisecond,
		StopLossThreshold:   p.StopLossThreshold,
		DryRun:              p.DryRun,
		KlineInterval:       p.KlineInterval,
		BookDepth:           p.BookDepth,
	}, nil
}

func validateParams(p Params) error {
	if p.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if p.OrderSize <= 0 {
		return fmt.Errorf("%w: %s orderSize must be > 0", ErrValidation, p.Symbol)
	}
	if p.TickSize <= 0 {
		return fmt.Errorf("%w: %s tickSize must be > 0", ErrValidation, p.Symbol)
	}
	if p.LotSize <= 0 {
		return fmt.Errorf("%w: %s lotSize must be > 0", ErrValidation, p.Symbol)
	}
	if p.MinQty < 0 {
		return fmt.Errorf("%w: %s minQty must be >= 0", ErrValidation, p.Symbol)
	}
	if p.MaxPosition <= 0 {
		return fmt.Errorf("%w: %s maxPosition must be > 0", ErrValidation, p.Symbol)
	}
	if p.MinPosition >= 0 {
		return fmt.Errorf("%w: %s minPosition must be < 0", ErrValidation, p.Symbol)
	}
	if p.Gamma <= 0 {
		return fmt.Errorf("%w: %s gamma must be > 0", ErrValidation, p.Symbol)
	}
	if p.MinSpread < 0 {
		return fmt.Errorf("%w: %s minSpread must be >= 0", ErrValidation, p.Symbol)
	}
	if p.MaxSpreadMultiplier < 1 {
		return fmt.Errorf("%w: %s maxSpreadMultiplier must be >= 1", ErrValidation, p.Symbol)
	}
	if p.FixedSigma < 0 {
		return fmt.Errorf("%w: %s fixedSigma must be >= 0", ErrValidation, p.Symbol)
	}
	if p.FixedKappa < 0 {
		return fmt.Errorf("%w: %s fixedKappa must be >= 0", ErrValidation, p.Symbol)
	}
	if p.VolatilityWindow < 2 {
		return fmt.Errorf("%w: %s volatilityWindow must be >= 2", ErrValidation, p.Symbol)
	}
	if p.VolatilityMode != "sample" && p.VolatilityMode != "ewma" {
		return fmt.Errorf("%w: %s volatilityMode must be sample or ewma", ErrValidation, p.Symbol)
	}
	if p.EWMALambda <= 0 || p.EWMALambda >= 1 {
		return fmt.Errorf("%w: %s ewmaLambda must be in (0, 1)", ErrValidation, p.Symbol)
	}
	if p.KappaWindow < 5 {
		return fmt.Errorf("%w: %s kappaWindow must be >= 5", ErrValidation, p.Symbol)
	}
	if p.UpdateIntervalMs <= 0 {
		return fmt.Errorf("%w: %s updateIntervalMs must be > 0", ErrValidation, p.Symbol)
	}
	if p.StopLossThreshold > 0 {
		return fmt.Errorf("%w: %s stopLossThreshold must be <= 0", ErrValidation, p.Symbol)
	}
	if p.BookDepth < 0 {
		return fmt.Errorf("%w: %s bookDepth must be >= 0", ErrValidation, p.Symbol)
	}
	return nil
}
