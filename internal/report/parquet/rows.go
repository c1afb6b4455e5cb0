package parquet

import (
	"time"

	"gmvbridge/internal/core"
	"gmvbridge/internal/report"
)

// Optional columns map to pointer fields. Timestamps are stored as epoch
// milliseconds.

type factRow struct {
	RunID               string   `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderID             string   `parquet:"name=order_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CustomerID          string   `parquet:"name=customer_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	PurchaseTS          *int64   `parquet:"name=purchase_ts, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
	DeliveredCustomerTS *int64   `parquet:"name=delivered_customer_ts, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
	EstimatedDeliveryTS *int64   `parquet:"name=estimated_delivery_ts, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
	CustomerState       *string  `parquet:"name=customer_state, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	MainCategory        string   `parquet:"name=main_category, type=BYTE_ARRAY, convertedtype=UTF8"`
	PaymentType         *string  `parquet:"name=payment_type, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	PaymentInstallments *int32   `parquet:"name=payment_installments, type=INT32, repetitiontype=OPTIONAL"`
	ReviewScore         *int32   `parquet:"name=review_score, type=INT32, repetitiontype=OPTIONAL"`
	AmountNet           float64  `parquet:"name=amount_net, type=DOUBLE"`
	AmountGross         float64  `parquet:"name=amount_gross, type=DOUBLE"`
	Freight             float64  `parquet:"name=freight, type=DOUBLE"`
	ItemsPerOrder       int32    `parquet:"name=items_per_order, type=INT32"`
	DistinctSKUs        int32    `parquet:"name=distinct_skus, type=INT32"`
	DeliveryDays        *float64 `parquet:"name=delivery_days, type=DOUBLE, repetitiontype=OPTIONAL"`
	DeliveredLate       *bool    `parquet:"name=delivered_late, type=BOOLEAN, repetitiontype=OPTIONAL"`
	Year                int32    `parquet:"name=year, type=INT32"`
	Month               int32    `parquet:"name=month, type=INT32"`
}

type stepRow struct {
	RunID       string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Family      string  `parquet:"name=family, type=BYTE_ARRAY, convertedtype=UTF8"`
	Dimension   string  `parquet:"name=dimension, type=BYTE_ARRAY, convertedtype=UTF8"`
	Month       string  `parquet:"name=month, type=BYTE_ARRAY, convertedtype=UTF8"`
	MonthIndex  int32   `parquet:"name=month_index, type=INT32"`
	SortInMonth int32   `parquet:"name=sort_in_month, type=INT32"`
	SortKey     int32   `parquet:"name=sort_key, type=INT32"`
	Kind        string  `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	Stage       string  `parquet:"name=stage, type=BYTE_ARRAY, convertedtype=UTF8"`
	Component   string  `parquet:"name=component, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount      float64 `parquet:"name=amount, type=DOUBLE"`
	IsTotal     bool    `parquet:"name=is_total, type=BOOLEAN"`
}

type drilldownRow struct {
	RunID     string   `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Dimension string   `parquet:"name=dimension, type=BYTE_ARRAY, convertedtype=UTF8"`
	Metric    string   `parquet:"name=metric, type=BYTE_ARRAY, convertedtype=UTF8"`
	MonthA    string   `parquet:"name=month_a, type=BYTE_ARRAY, convertedtype=UTF8"`
	MonthB    string   `parquet:"name=month_b, type=BYTE_ARRAY, convertedtype=UTF8"`
	Rank      int32    `parquet:"name=rank, type=INT32"`
	Segment   string   `parquet:"name=segment, type=BYTE_ARRAY, convertedtype=UTF8"`
	MetricA   float64  `parquet:"name=metric_a, type=DOUBLE"`
	MetricB   float64  `parquet:"name=metric_b, type=DOUBLE"`
	Delta     float64  `parquet:"name=delta, type=DOUBLE"`
	AbsDelta  float64  `parquet:"name=abs_delta, type=DOUBLE"`
	PctChange *float64 `parquet:"name=pct_change, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func newFactRow(runID string, f core.OrderFact) factRow {
	return factRow{
		RunID:               runID,
		OrderID:             f.OrderID,
		CustomerID:          f.CustomerID,
		PurchaseTS:          millis(f.PurchaseTS),
		DeliveredCustomerTS: millis(f.DeliveredCustomerTS),
		EstimatedDeliveryTS: millis(f.EstimatedDeliveryTS),
		CustomerState:       f.CustomerState,
		MainCategory:        f.MainCategory,
		PaymentType:         f.PaymentType,
		PaymentInstallments: int32Ptr(f.PaymentInstallments),
		ReviewScore:         int32Ptr(f.ReviewScore),
		AmountNet:           f.AmountNet,
		AmountGross:         f.AmountGross,
		Freight:             f.Freight,
		ItemsPerOrder:       int32(f.ItemsPerOrder),
		DistinctSKUs:        int32(f.DistinctSKUs),
		DeliveryDays:        f.DeliveryDays,
		DeliveredLate:       f.DeliveredLate,
		Year:                int32(f.Year),
		Month:               int32(f.Month),
	}
}

func newStepRow(runID string, s core.WaterfallStep) stepRow {
	return stepRow{
		RunID:       runID,
		Family:      s.Family.String(),
		Dimension:   s.Dimension.String(),
		Month:       s.Month.String(),
		MonthIndex:  int32(s.MonthIndex),
		SortInMonth: int32(s.SortInMonth),
		SortKey:     int32(s.SortKey),
		Kind:        s.Kind.String(),
		Stage:       s.Stage,
		Component:   s.Component,
		Amount:      s.Amount,
		IsTotal:     s.IsTotal,
	}
}

func newDrilldownRow(runID string, d report.Drilldown, rank int, r core.DrilldownRow) drilldownRow {
	return drilldownRow{
		RunID:     runID,
		Dimension: d.Dimension.String(),
		Metric:    string(d.Metric),
		MonthA:    d.MonthA.String(),
		MonthB:    d.MonthB.String(),
		Rank:      int32(rank),
		Segment:   r.Segment,
		MetricA:   r.MetricA,
		MetricB:   r.MetricB,
		Delta:     r.Delta,
		AbsDelta:  r.AbsDelta,
		PctChange: r.PctChange,
	}
}

func millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func int32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}
