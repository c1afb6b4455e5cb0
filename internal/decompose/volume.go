package decompose

import "gmvbridge/internal/core"

// VolumeEffect splits a month's GMV change into orders, AOV and their
// interaction.
type VolumeEffect struct {
	Month       core.Month
	PrevMonth   core.Month
	GMVPrev     float64
	GMVCur      float64
	OrdersPrev  int
	OrdersCur   int
	AOVPrev     float64
	AOVCur      float64
	Volume      float64
	AOV         float64
	Interaction float64
}

// DeltaGMV is the observed change the effects explain.
func (e VolumeEffect) DeltaGMV() float64 {
	return e.GMVCur - e.GMVPrev
}

// Sum is the total of the three effects.
func (e VolumeEffect) Sum() float64 {
	return e.Volume + e.AOV + e.Interaction
}

func (e VolumeEffect) bars() []core.Bar {
	return []core.Bar{
		core.StartBar("Start GMV", e.GMVPrev),
		core.EffectBar("Orders", "orders", e.Volume),
		core.EffectBar("AOV", "aov", e.AOV),
		core.EffectBar("Interaction", "interaction", e.Interaction),
		core.EndBar("End GMV", e.GMVCur),
	}
}

// VolumeAOV decomposes ΔGMV between consecutive months:
//
//	volume      = aov[t-1] * Δorders
//	aov         = orders[t-1] * Δaov
//	interaction = Δorders * Δaov
//
// Pairs where either month has a nil AOV (zero orders) are skipped.
func VolumeAOV(rows []core.CoreMetric) ([]VolumeEffect, []core.WaterfallStep) {
	var effects []VolumeEffect
	var steps []core.WaterfallStep
	for _, p := range consecutive(rows, func(r core.CoreMetric) core.Month { return r.Month }) {
		if p.prev.AOV == nil || p.cur.AOV == nil {
			continue
		}
		dOrders := float64(p.cur.Orders - p.prev.Orders)
		dAOV := *p.cur.AOV - *p.prev.AOV
		e := VolumeEffect{
			Month:       p.cur.Month,
			PrevMonth:   p.prev.Month,
			GMVPrev:     p.prev.GMV,
			GMVCur:      p.cur.GMV,
			OrdersPrev:  p.prev.Orders,
			OrdersCur:   p.cur.Orders,
			AOVPrev:     *p.prev.AOV,
			AOVCur:      *p.cur.AOV,
			Volume:      *p.prev.AOV * dOrders,
			AOV:         float64(p.prev.Orders) * dAOV,
			Interaction: dOrders * dAOV,
		}
		effects = append(effects, e)
		steps = append(steps, place(core.FamilyVolumeAOV, "", e.Month, len(effects), e.bars())...)
	}
	return effects, steps
}
