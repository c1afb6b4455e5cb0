package decompose

import (
	"errors"

	"gmvbridge/internal/core"
)

type waterfallKey struct {
	family core.Family
	dim    core.Dimension
	month  core.Month
}

// Verify re-checks every algebraic identity of a result. A failure means the
// aggregation upstream is broken, never that the input data is dirty; all
// failures are joined and each unwraps to core.ErrIdentityViolation.
func Verify(r Result, tol float64) error {
	if tol <= 0 {
		tol = core.DefaultTolerance
	}
	var errs []error
	check := func(f core.Family, dim core.Dimension, m core.Month, name string, want, got float64) {
		if !core.RelClose(want, got, tol) {
			errs = append(errs, &core.IdentityError{Family: f, Dimension: dim, Month: m, Check: name, Expected: want, Actual: got})
		}
	}

	for _, e := range r.Volume {
		check(core.FamilyVolumeAOV, "", e.Month, "gmv_prev + effects == gmv_cur", e.GMVCur, e.GMVPrev+e.Sum())
	}
	for _, e := range r.PriceBasket {
		check(core.FamilyPriceBasket, "", e.Month, "aov_prev + effects == aov_cur", e.AOVCur, e.AOVPrev+e.Sum())
		// unit_price * basket_size must reproduce the order-level AOV.
		if aov, ok := r.CoreAOV[e.PrevMonth]; ok {
			check(core.FamilyPriceBasket, "", e.PrevMonth, "aov_recalc == aov", aov, e.AOVPrev)
		}
		if aov, ok := r.CoreAOV[e.Month]; ok {
			check(core.FamilyPriceBasket, "", e.Month, "aov_recalc == aov", aov, e.AOVCur)
		}
	}
	for _, dim := range r.dimensions() {
		for _, e := range r.Mix[dim] {
			check(core.FamilyMixLFL, dim, e.Month, "delta_aov == lfl + mix", e.DeltaAOV(), e.LFL+e.Mix)
		}
	}

	for _, w := range walk(r.Steps) {
		check(w.key.family, w.key.dim, w.key.month, "start + effects == end", w.end, w.start+w.effects)
	}
	return errors.Join(errs...)
}

type walked struct {
	key     waterfallKey
	start   float64
	effects float64
	end     float64
}

// walk folds steps into per-waterfall totals, preserving first-seen order.
func walk(steps []core.WaterfallStep) []walked {
	idx := make(map[waterfallKey]int)
	var out []walked
	for _, s := range steps {
		k := waterfallKey{family: s.Family, dim: s.Dimension, month: s.Month}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, walked{key: k})
		}
		switch s.Kind {
		case core.StepStart:
			out[i].start = s.Amount
		case core.StepEnd:
			out[i].end = s.Amount
		default:
			out[i].effects += s.Amount
		}
	}
	return out
}
