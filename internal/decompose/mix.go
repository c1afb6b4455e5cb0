package decompose

import (
	"fmt"
	"sort"
	"strings"

	"gmvbridge/internal/core"
)

const (
	// RawWeights uses each segment's share of all orders in the month.
	RawWeights Weighting = "raw"
	// RenormalizedWeights rescales the shares to sum to one over the common set.
	RenormalizedWeights Weighting = "renormalized"
)

// Weighting selects how like-for-like weights are derived.
type Weighting string

func (w Weighting) IsValid() bool {
	return w == RawWeights || w == RenormalizedWeights
}

// ParseWeighting defaults to raw weights on empty input.
func ParseWeighting(s string) (Weighting, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RawWeights, nil
	}
	w := Weighting(s)
	if !w.IsValid() {
		return "", fmt.Errorf("invalid mix weighting %q: must be %q or %q", s, RawWeights, RenormalizedWeights)
	}
	return w, nil
}

// SegmentContribution is one common segment's share of the like-for-like effect.
type SegmentContribution struct {
	Segment    string
	WeightPrev float64
	WeightCur  float64
	AOVPrev    float64
	AOVCur     float64
	Effect     float64
}

// MixEffect splits a month's AOV change into like-for-like and mix.
type MixEffect struct {
	Month         core.Month
	PrevMonth     core.Month
	Dimension     core.Dimension
	AOVPrev       float64
	AOVCur        float64
	LFL           float64
	Mix           float64
	Contributions []SegmentContribution
}

func (e MixEffect) DeltaAOV() float64 {
	return e.AOVCur - e.AOVPrev
}

func (e MixEffect) bars() []core.Bar {
	return []core.Bar{
		core.StartBar("Start AOV", e.AOVPrev),
		core.EffectBar("LFL", "lfl", e.LFL),
		core.EffectBar("Mix", "mix", e.Mix),
		core.EndBar("End AOV", e.AOVCur),
	}
}

// MixLFL decomposes ΔAOV along dim. Over the common set (segments with
// orders in both months):
//
//	lfl = Σ avg(w_cur(s), w_prev(s)) * (aov_seg(s,t) - aov_seg(s,t-1))
//	mix = Δaov - lfl
//
// Mix is a residual, so it absorbs weight shifts as well as segments
// entering or leaving. Month pairs with a nil total AOV are skipped.
func MixLFL(coreRows []core.CoreMetric, segments []core.SegmentMetric, dim core.Dimension, w Weighting) ([]MixEffect, []core.WaterfallStep) {
	byMonth := make(map[core.Month]map[string]core.SegmentMetric)
	for _, s := range segments {
		if s.Dimension != "" && s.Dimension != dim {
			continue
		}
		m := byMonth[s.Month]
		if m == nil {
			m = make(map[string]core.SegmentMetric)
			byMonth[s.Month] = m
		}
		m[s.Segment] = s
	}

	var effects []MixEffect
	var steps []core.WaterfallStep
	for _, p := range consecutive(coreRows, func(r core.CoreMetric) core.Month { return r.Month }) {
		if p.prev.AOV == nil || p.cur.AOV == nil {
			continue
		}
		contribs := commonSet(byMonth[p.prev.Month], byMonth[p.cur.Month], p.prev.Orders, p.cur.Orders, w)
		var lfl float64
		for _, c := range contribs {
			lfl += c.Effect
		}
		e := MixEffect{
			Month:         p.cur.Month,
			PrevMonth:     p.prev.Month,
			Dimension:     dim,
			AOVPrev:       *p.prev.AOV,
			AOVCur:        *p.cur.AOV,
			LFL:           lfl,
			Contributions: contribs,
		}
		e.Mix = e.DeltaAOV() - lfl
		effects = append(effects, e)
		steps = append(steps, place(core.FamilyMixLFL, dim, e.Month, len(effects), e.bars())...)
	}
	return effects, steps
}

// commonSet returns the per-segment LFL contributions, ordered by segment.
func commonSet(prev, cur map[string]core.SegmentMetric, ordersPrev, ordersCur int, w Weighting) []SegmentContribution {
	if ordersPrev == 0 || ordersCur == 0 {
		return nil
	}
	var out []SegmentContribution
	for seg, c := range cur {
		pv, ok := prev[seg]
		if !ok || pv.Orders == 0 || c.Orders == 0 || pv.AOV == nil || c.AOV == nil {
			continue
		}
		out = append(out, SegmentContribution{
			Segment:    seg,
			WeightPrev: float64(pv.Orders) / float64(ordersPrev),
			WeightCur:  float64(c.Orders) / float64(ordersCur),
			AOVPrev:    *pv.AOV,
			AOVCur:     *c.AOV,
		})
	}
	// Sums are taken in segment order so the divisors are identical across runs.
	sort.Slice(out, func(i, j int) bool { return out[i].Segment < out[j].Segment })
	var sumPrev, sumCur float64
	for _, c := range out {
		sumPrev += c.WeightPrev
		sumCur += c.WeightCur
	}

	for i := range out {
		c := &out[i]
		if w == RenormalizedWeights && sumPrev > 0 && sumCur > 0 {
			c.WeightPrev /= sumPrev
			c.WeightCur /= sumCur
		}
		c.Effect = (c.WeightCur + c.WeightPrev) / 2 * (c.AOVCur - c.AOVPrev)
	}
	return out
}
