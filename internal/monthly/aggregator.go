// Package monthly rolls order facts into monthly totals: overall, per segment
// and at price x quantity grain.
package monthly

import (
	"sort"

	"gmvbridge/internal/core"
)

type totals struct {
	orders   int
	items    int
	gmv      float64
	gmvGross float64
}

type segmentKey struct {
	month   core.Month
	segment string
}

// Core returns one row per month, ordered by month. Facts with an unknown
// month are skipped.
func Core(facts []core.OrderFact) []core.CoreMetric {
	byMonth := make(map[core.Month]*totals)
	for _, f := range facts {
		m := f.MonthKey()
		if m.IsZero() {
			continue
		}
		t := byMonth[m]
		if t == nil {
			t = &totals{}
			byMonth[m] = t
		}
		t.orders++
		t.gmv += f.AmountNet
		t.gmvGross += f.AmountGross
	}

	out := make([]core.CoreMetric, 0, len(byMonth))
	for m, t := range byMonth {
		out = append(out, core.CoreMetric{
			Month:    m,
			Orders:   t.orders,
			GMV:      t.gmv,
			GMVGross: t.gmvGross,
			AOV:      core.Ratio(t.gmv, float64(t.orders)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// BySegment returns one row per (month, segment) along dim, ordered by month
// then segment.
func BySegment(facts []core.OrderFact, dim core.Dimension) []core.SegmentMetric {
	groups := make(map[segmentKey]*totals)
	for _, f := range facts {
		m := f.MonthKey()
		if m.IsZero() {
			continue
		}
		k := segmentKey{month: m, segment: f.Segment(dim)}
		t := groups[k]
		if t == nil {
			t = &totals{}
			groups[k] = t
		}
		t.orders++
		t.gmv += f.AmountNet
	}

	out := make([]core.SegmentMetric, 0, len(groups))
	for k, t := range groups {
		out = append(out, core.SegmentMetric{
			Month:     k.month,
			Dimension: dim,
			Segment:   k.segment,
			Orders:    t.orders,
			GMV:       t.gmv,
			AOV:       core.Ratio(t.gmv, float64(t.orders)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month.Before(out[j].Month)
		}
		return out[i].Segment < out[j].Segment
	})
	return out
}

// PriceQty returns the overall unit price / basket size series.
func PriceQty(facts []core.OrderFact) []core.PriceQtyMetric {
	byMonth := make(map[core.Month]*totals)
	for _, f := range facts {
		m := f.MonthKey()
		if m.IsZero() {
			continue
		}
		t := byMonth[m]
		if t == nil {
			t = &totals{}
			byMonth[m] = t
		}
		t.orders++
		t.items += f.ItemsPerOrder
		t.gmv += f.AmountNet
	}

	out := make([]core.PriceQtyMetric, 0, len(byMonth))
	for m, t := range byMonth {
		out = append(out, core.NewPriceQtyMetric(m, "", t.orders, t.items, t.gmv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// SkippedFacts counts facts that no monthly view can place.
func SkippedFacts(facts []core.OrderFact) int {
	n := 0
	for _, f := range facts {
		if f.MonthKey().IsZero() {
			n++
		}
	}
	return n
}
