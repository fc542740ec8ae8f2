package order

import (
	"fmt"
	"math"
)

// Constraints 描述交易对的价格/数量步长限制。
type Constraints struct {
	TickSize float64
	LotSize  float64
	MinQty   float64
}

// Validate 检查订单价格/数量是否对齐步长并满足最小数量。
func (c Constraints) Validate(price, qty float64) error {
	if qty <= 0 {
		return fmt.Errorf("qty must be > 0, got %.8f", qty)
	}
	if price <= 0 {
		return fmt.Errorf("price must be > 0, got %.8f", price)
	}
	if c.TickSize > 0 && !isMultiple(price, c.TickSize) {
		return fmt.Errorf("price %.8f not aligned to tickSize %.8f", price, c.TickSize)
	}
	if c.LotSize > 0 && !isMultiple(qty, c.LotSize) {
		return fmt.Errorf("qty %.8f not aligned to lotSize %.8f", qty, c.LotSize)
	}
	if c.MinQty > 0 && qty < c.MinQty {
		return fmt.Errorf("qty %.8f < minQty %.8f", qty, c.MinQty)
	}
	return nil
}

func isMultiple(value, step float64) bool {
	if step <= 0 {
		return true
	}
	ratio := value / step
	return math.Abs(ratio-math.Round(ratio)) <= 1e-8
}
