package inventory

import "avellaneda-mm/order"

// Report summarizes an executed trade log for end-of-session review.
type Report struct {
	Fills      int
	BuyFills   int
	SellFills  int
	BuyVolume  float64
	SellVolume float64
	BuyVWAP    float64 // volume-weighted average buy price
	SellVWAP   float64
	First      int64 // unix millis, 0 when empty
	Last       int64
}

// Summarize folds a trade log into a Report. The log order is preserved by
// the ledger, so first/last fall out of the ends.
func Summarize(trades []Fill) Report {
	var r Report
	r.Fills = len(trades)
	if len(trades) == 0 {
		return r
	}
	r.First = trades[0].Time.UnixMilli()
	r.Last = trades[len(trades)-1].Time.UnixMilli()

	var buyNotional, sellNotional float64
	for _, f := range trades {
		if f.Side == order.SideBuy {
			r.BuyFills++
			r.BuyVolume += f.Quantity
			buyNotional += f.Quantity * f.Price
		} else {
			r.SellFills++
			r.SellVolume += f.Quantity
			sellNotional += f.Quantity * f.Price
		}
	}
	if r.BuyVolume > 0 {
		r.BuyVWAP = buyNotional / r.BuyVolume
	}
	if r.SellVolume > 0 {
		r.SellVWAP = sellNotional / r.SellVolume
	}
	return r
}
