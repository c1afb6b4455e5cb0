package core

import "time"

// OrderFact is the resolved, one-row-per-delivered-order record.
type OrderFact struct {
	OrderID             string
	CustomerID          string
	PurchaseTS          *time.Time
	DeliveredCustomerTS *time.Time
	EstimatedDeliveryTS *time.Time
	CustomerState       *string
	MainCategory        string
	PaymentType         *string
	PaymentInstallments *int
	ReviewScore         *int
	AmountNet           float64
	AmountGross         float64
	Freight             float64
	ItemsPerOrder       int
	DistinctSKUs        int
	DeliveryDays        *float64
	DeliveredLate       *bool
	Year                int
	Month               int
}

// MonthKey returns the fact's month, or the zero Month when unknown.
func (f OrderFact) MonthKey() Month {
	m, err := NewMonth(f.Year, f.Month)
	if err != nil {
		return Month{}
	}
	return m
}

// Segment returns the fact's label along the given dimension.
func (f OrderFact) Segment(dim Dimension) string {
	switch dim {
	case StateDimension:
		return SegmentLabel(f.CustomerState)
	default:
		return SegmentLabel(&f.MainCategory)
	}
}
