// Package drilldown ranks segments by how much a per-segment metric moved
// between two chosen months.
package drilldown

import (
	"fmt"
	"math"
	"sort"

	"gmvbridge/internal/core"
)

// DefaultTopN is the number of rows kept when Options.TopN is not positive.
const DefaultTopN = 10

// Options controls the ranking. The zero value ranks unit price and keeps
// the default top ten.
type Options struct {
	TopN   int
	Metric core.DrilldownMetric
}

func (o Options) normalized() Options {
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.Metric == "" {
		o.Metric = core.MetricUnitPrice
	}
	return o
}

// Rank compares monthA (base) with monthB over the segments present in both.
// Entrants and exits are left out, as are segments whose metric is nil in
// either month. Rows come back ordered by absolute delta descending, ties by
// segment name.
func Rank(table []core.PriceQtyMetric, monthA, monthB core.Month, opts Options) ([]core.DrilldownRow, error) {
	opts = opts.normalized()
	if !opts.Metric.IsValid() {
		return nil, fmt.Errorf("rank segments: invalid metric %q", opts.Metric)
	}

	base := make(map[string]core.PriceQtyMetric)
	cur := make(map[string]core.PriceQtyMetric)
	for _, r := range table {
		switch r.Month {
		case monthA:
			base[r.Segment] = r
		case monthB:
			cur[r.Segment] = r
		}
	}
	if len(base) == 0 {
		return nil, fmt.Errorf("rank segments: month %s: %w", monthA, core.ErrMonthNotFound)
	}
	if len(cur) == 0 {
		return nil, fmt.Errorf("rank segments: month %s: %w", monthB, core.ErrMonthNotFound)
	}

	rows := make([]core.DrilldownRow, 0, len(cur))
	for seg, b := range cur {
		a, ok := base[seg]
		if !ok {
			continue
		}
		ma, mb := a.Metric(opts.Metric), b.Metric(opts.Metric)
		if ma == nil || mb == nil {
			continue
		}
		d := *mb - *ma
		rows = append(rows, core.DrilldownRow{
			Segment:   seg,
			MetricA:   *ma,
			MetricB:   *mb,
			Delta:     d,
			AbsDelta:  math.Abs(d),
			PctChange: core.Ratio(d, *ma),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AbsDelta != rows[j].AbsDelta {
			return rows[i].AbsDelta > rows[j].AbsDelta
		}
		return rows[i].Segment < rows[j].Segment
	})
	if len(rows) > opts.TopN {
		rows = rows[:opts.TopN]
	}
	return rows, nil
}
