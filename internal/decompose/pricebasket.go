package decompose

import "gmvbridge/internal/core"

// PriceBasketEffect splits a month's AOV change into unit price, basket size
// and their interaction.
type PriceBasketEffect struct {
	Month          core.Month
	PrevMonth      core.Month
	AOVPrev        float64
	AOVCur         float64
	UnitPricePrev  float64
	UnitPriceCur   float64
	BasketSizePrev float64
	BasketSizeCur  float64
	Price          float64
	Basket         float64
	Interaction    float64
}

func (e PriceBasketEffect) DeltaAOV() float64 {
	return e.AOVCur - e.AOVPrev
}

func (e PriceBasketEffect) Sum() float64 {
	return e.Price + e.Basket + e.Interaction
}

func (e PriceBasketEffect) bars() []core.Bar {
	return []core.Bar{
		core.StartBar("Start AOV", e.AOVPrev),
		core.EffectBar("Price", "price", e.Price),
		core.EffectBar("Basket", "basket", e.Basket),
		core.EffectBar("Interaction", "interaction", e.Interaction),
		core.EndBar("End AOV", e.AOVCur),
	}
}

// PriceBasket decomposes ΔAOV = Δ(unit_price * basket_size):
//
//	price       = basket[t-1] * Δunit_price
//	basket      = unit_price[t-1] * Δbasket
//	interaction = Δunit_price * Δbasket
//
// The AOV bars are unit_price * basket_size of each month, which equals
// GMV/orders. Pairs with a nil ratio on either side are skipped.
func PriceBasket(rows []core.PriceQtyMetric) ([]PriceBasketEffect, []core.WaterfallStep) {
	var effects []PriceBasketEffect
	var steps []core.WaterfallStep
	for _, p := range consecutive(rows, func(r core.PriceQtyMetric) core.Month { return r.Month }) {
		if p.prev.UnitPrice == nil || p.prev.BasketSize == nil || p.cur.UnitPrice == nil || p.cur.BasketSize == nil {
			continue
		}
		up0, up1 := *p.prev.UnitPrice, *p.cur.UnitPrice
		bs0, bs1 := *p.prev.BasketSize, *p.cur.BasketSize
		dPrice := up1 - up0
		dBasket := bs1 - bs0
		e := PriceBasketEffect{
			Month:          p.cur.Month,
			PrevMonth:      p.prev.Month,
			AOVPrev:        up0 * bs0,
			AOVCur:         up1 * bs1,
			UnitPricePrev:  up0,
			UnitPriceCur:   up1,
			BasketSizePrev: bs0,
			BasketSizeCur:  bs1,
			Price:          bs0 * dPrice,
			Basket:         up0 * dBasket,
			Interaction:    dPrice * dBasket,
		}
		effects = append(effects, e)
		steps = append(steps, place(core.FamilyPriceBasket, "", e.Month, len(effects), e.bars())...)
	}
	return effects, steps
}
