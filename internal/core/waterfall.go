package core

import (
	"fmt"
	"strings"
)

const (
	FamilyVolumeAOV   Family = "gmv_volume_aov"
	FamilyMixLFL      Family = "aov_mix_lfl"
	FamilyPriceBasket Family = "aov_price_basket"
)

const (
	StepStart StepKind = iota
	StepEffect
	StepEnd
)

const (
	MetricUnitPrice  DrilldownMetric = "unit_price"
	MetricBasketSize DrilldownMetric = "basket_size"
	MetricAOV        DrilldownMetric = "aov"
	MetricGMV        DrilldownMetric = "gmv"
)

type (
	// Family names one of the three waterfall decompositions.
	Family string

	// StepKind tags a waterfall bar as Start, Effect or End.
	StepKind int

	// DrilldownMetric is the per-segment measure ranked by the drill-down.
	DrilldownMetric string

	// Bar is a waterfall step before it is placed in the global render order.
	Bar struct {
		Kind      StepKind
		Stage     string
		Component string
		Amount    float64
	}

	// WaterfallStep is one rendered row of a waterfall.
	WaterfallStep struct {
		Family      Family
		Dimension   Dimension // empty unless Family is FamilyMixLFL
		Month       Month
		MonthIndex  int // 1-based among emitted months of the family
		SortInMonth int // 0..4
		SortKey     int // MonthIndex*10 + SortInMonth
		Kind        StepKind
		Stage       string
		Component   string
		Amount      float64
		IsTotal     bool
	}

	// DrilldownRow is one ranked segment of the drill-down report.
	DrilldownRow struct {
		Segment   string
		MetricA   float64
		MetricB   float64
		Delta     float64
		AbsDelta  float64
		PctChange *float64 // nil when MetricA == 0
	}
)

func StartBar(stage string, amount float64) Bar {
	return Bar{Kind: StepStart, Stage: stage, Component: "start", Amount: amount}
}

func EffectBar(stage, component string, amount float64) Bar {
	return Bar{Kind: StepEffect, Stage: stage, Component: component, Amount: amount}
}

func EndBar(stage string, amount float64) Bar {
	return Bar{Kind: StepEnd, Stage: stage, Component: "end", Amount: amount}
}

func (k StepKind) String() string {
	switch k {
	case StepStart:
		return "start"
	case StepEffect:
		return "effect"
	case StepEnd:
		return "end"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

func (f Family) String() string {
	return string(f)
}

// Families returns the three waterfall families in render order.
func Families() []Family {
	return []Family{FamilyVolumeAOV, FamilyMixLFL, FamilyPriceBasket}
}

func (m DrilldownMetric) IsValid() bool {
	switch m {
	case MetricUnitPrice, MetricBasketSize, MetricAOV, MetricGMV:
		return true
	default:
		return false
	}
}

// ParseDrilldownMetric defaults to unit_price on empty input.
func ParseDrilldownMetric(s string) (DrilldownMetric, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return MetricUnitPrice, nil
	}
	m := DrilldownMetric(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid drilldown metric %q", s)
	}
	return m, nil
}
