package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	CategoryDimension Dimension = "category"
	StateDimension    Dimension = "state"

	// UnknownSegment labels orders whose category or state could not be resolved.
	UnknownSegment = "unknown"

	// StatusDelivered is the only order status that produces an order fact.
	StatusDelivered = "delivered"
)

type (
	// Dimension is the segmentation axis used by the mix and drill-down views.
	Dimension string

	// Month identifies a calendar month. The zero value means "unknown".
	Month struct {
		Year  int
		Month int // 1-12
	}

	Order struct {
		OrderID             string
		CustomerID          string
		Status              string
		PurchaseTS          *time.Time
		DeliveredCustomerTS *time.Time
		EstimatedDeliveryTS *time.Time
		Year                int // 0 when not supplied
		Month               int // 0 when not supplied
	}

	OrderItem struct {
		OrderID      string
		ItemSeq      int
		ProductID    string
		Price        float64
		FreightValue float64
	}

	Product struct {
		ProductID    string
		CategoryName *string
	}

	Payment struct {
		OrderID      string
		Sequential   int
		PaymentType  *string
		Installments *int
		Value        *float64
	}

	Review struct {
		ReviewID   string
		OrderID    string
		Score      *int
		CreationTS *time.Time
	}

	Customer struct {
		CustomerID string
		State      *string
	}

	// Snapshot is one full, immutable read of the cleaned input.
	Snapshot struct {
		Orders    []Order
		Items     []OrderItem
		Products  []Product
		Payments  []Payment
		Reviews   []Review
		Customers []Customer
	}
)

var (
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidDimension = errors.New("invalid dimension")
)

// Dimensions returns every supported segmentation dimension.
func Dimensions() []Dimension {
	return []Dimension{CategoryDimension, StateDimension}
}

func (d Dimension) IsValid() bool {
	switch d {
	case CategoryDimension, StateDimension:
		return true
	default:
		return false
	}
}

func (d Dimension) String() string {
	return string(d)
}

// ParseDimension accepts "category" or "state", case-insensitively.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDimension, s)
	}
	return d, nil
}

// NewMonth builds a Month, rejecting out of range values.
func NewMonth(year, month int) (Month, error) {
	if year < 1 || month < 1 || month > 12 {
		return Month{}, fmt.Errorf("%w: %d-%d", ErrInvalidMonth, year, month)
	}
	return Month{Year: year, Month: month}, nil
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: int(t.Month())}
}

// ParseMonth parses "YYYY-MM" (also accepts "YYYY/MM").
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "/", "-"))
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	y, err := strconv.Atoi(parts[0])
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return NewMonth(y, m)
}

func (m Month) IsZero() bool {
	return m.Year == 0 || m.Month == 0
}

// Ordinal is a monotone integer key: consecutive calendar months differ by one.
func (m Month) Ordinal() int {
	return m.Year*12 + m.Month - 1
}

func (m Month) Before(o Month) bool {
	return m.Ordinal() < o.Ordinal()
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

// MonthKey resolves the order's month: explicit year/month keys win, otherwise
// the purchase timestamp. The zero Month is returned when neither is usable.
func (o Order) MonthKey() Month {
	if m, err := NewMonth(o.Year, o.Month); err == nil {
		return m
	}
	if o.PurchaseTS != nil && !o.PurchaseTS.IsZero() {
		return MonthOf(*o.PurchaseTS)
	}
	return Month{}
}

// IsDelivered reports whether the order qualifies for an order fact.
func (o Order) IsDelivered() bool {
	return strings.EqualFold(strings.TrimSpace(o.Status), StatusDelivered)
}

// SegmentLabel maps a nullable category or state to its segment label.
func SegmentLabel(v *string) string {
	if v == nil {
		return UnknownSegment
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return UnknownSegment
	}
	return s
}
