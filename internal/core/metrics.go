package core

// CoreMetric is the overall monthly roll-up of order facts.
type CoreMetric struct {
	Month    Month
	Orders   int
	GMV      float64
	GMVGross float64
	AOV      *float64 // nil when Orders == 0
}

// SegmentMetric is the monthly roll-up of one segment along a dimension.
type SegmentMetric struct {
	Month     Month
	Dimension Dimension
	Segment   string
	Orders    int
	GMV       float64
	AOV       *float64
}

// PriceQtyMetric splits AOV into unit price and basket size. Segment is empty
// for the overall series.
type PriceQtyMetric struct {
	Month      Month
	Segment    string
	Orders     int
	Items      int
	GMV        float64
	UnitPrice  *float64 // GMV / Items
	BasketSize *float64 // Items / Orders
	AOVRecalc  *float64 // UnitPrice * BasketSize
}

// NewPriceQtyMetric derives the null-guarded ratios from the raw counts.
func NewPriceQtyMetric(month Month, segment string, orders, items int, gmv float64) PriceQtyMetric {
	m := PriceQtyMetric{
		Month:      month,
		Segment:    segment,
		Orders:     orders,
		Items:      items,
		GMV:        gmv,
		UnitPrice:  Ratio(gmv, float64(items)),
		BasketSize: Ratio(float64(items), float64(orders)),
	}
	if m.UnitPrice != nil && m.BasketSize != nil {
		m.AOVRecalc = Float(*m.UnitPrice * *m.BasketSize)
	}
	return m
}

// Metric selects a drill-down measure from a price/qty row.
func (m PriceQtyMetric) Metric(name DrilldownMetric) *float64 {
	switch name {
	case MetricBasketSize:
		return m.BasketSize
	case MetricAOV:
		return Ratio(m.GMV, float64(m.Orders))
	case MetricGMV:
		return Float(m.GMV)
	default:
		return m.UnitPrice
	}
}
