package monthly

import (
	"fmt"

	"gmvbridge/internal/core"
)

// RecalcMismatch is a month whose unit price x basket size drifts from the
// order-level AOV.
type RecalcMismatch struct {
	Month     core.Month
	AOV       float64
	AOVRecalc float64
}

func (m RecalcMismatch) String() string {
	return fmt.Sprintf("%s: aov %.6f vs recalculated %.6f", m.Month, m.AOV, m.AOVRecalc)
}

// CheckAOVRecalc compares PriceQty.AOVRecalc against Core.AOV month by month.
// Months missing from either series or carrying a nil AOV are not compared.
func CheckAOVRecalc(coreRows []core.CoreMetric, pq []core.PriceQtyMetric, tol float64) []RecalcMismatch {
	aov := make(map[core.Month]float64, len(coreRows))
	for _, c := range coreRows {
		if c.AOV != nil {
			aov[c.Month] = *c.AOV
		}
	}
	var out []RecalcMismatch
	for _, p := range pq {
		want, ok := aov[p.Month]
		if !ok || p.AOVRecalc == nil {
			continue
		}
		if !core.RelClose(want, *p.AOVRecalc, tol) {
			out = append(out, RecalcMismatch{Month: p.Month, AOV: want, AOVRecalc: *p.AOVRecalc})
		}
	}
	return out
}
