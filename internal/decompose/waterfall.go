// Package decompose splits month-over-month changes of GMV and AOV into
// additive effects and lays them out as waterfalls.
//
// Every function here is pure: month t reads only months t and t-1, so
// families, dimensions and month pairs can be computed independently.
package decompose

import (
	"sort"

	"gmvbridge/internal/core"
)

// pair is a month and its immediate predecessor in a sorted series.
type pair[T any] struct {
	prev, cur T
}

// consecutive sorts a copy of rows by month and pairs each row with the one
// before it. The first month has no baseline and yields no pair.
func consecutive[T any](rows []T, month func(T) core.Month) []pair[T] {
	if len(rows) < 2 {
		return nil
	}
	sorted := append([]T(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return month(sorted[i]).Before(month(sorted[j]))
	})
	out := make([]pair[T], 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		out = append(out, pair[T]{prev: sorted[i-1], cur: sorted[i]})
	}
	return out
}

// place assigns render positions to the bars of one month.
func place(family core.Family, dim core.Dimension, month core.Month, index int, bars []core.Bar) []core.WaterfallStep {
	out := make([]core.WaterfallStep, len(bars))
	for i, b := range bars {
		out[i] = core.WaterfallStep{
			Family:      family,
			Dimension:   dim,
			Month:       month,
			MonthIndex:  index,
			SortInMonth: i,
			SortKey:     index*10 + i,
			Kind:        b.Kind,
			Stage:       b.Stage,
			Component:   b.Component,
			Amount:      b.Amount,
			IsTotal:     b.Kind != core.StepEffect,
		}
	}
	return out
}
