package facts

import (
	"strings"
	"time"

	"gmvbridge/internal/core"
)

// maxBy returns the element ranked first by better. better(a, b) must report
// whether a strictly outranks b; the reduction is a single pass.
func maxBy[T any](items []T, better func(a, b T) bool) (T, bool) {
	var best T
	if len(items) == 0 {
		return best, false
	}
	best = items[0]
	for _, it := range items[1:] {
		if better(it, best) {
			best = it
		}
	}
	return best, true
}

type categorySpend struct {
	category string
	spend    float64
}

// categoryBetter ranks by descending spend, then ascending category name.
func categoryBetter(a, b categorySpend) bool {
	if a.spend != b.spend {
		return a.spend > b.spend
	}
	return a.category < b.category
}

// paymentBetter ranks by descending value (nulls last), then lowest
// sequential, then ascending payment type (nulls last).
func paymentBetter(a, b core.Payment) bool {
	switch {
	case a.Value != nil && b.Value == nil:
		return true
	case a.Value == nil && b.Value != nil:
		return false
	case a.Value != nil && b.Value != nil && *a.Value != *b.Value:
		return *a.Value > *b.Value
	}
	if a.Sequential != b.Sequential {
		return a.Sequential < b.Sequential
	}
	return lessNullLast(a.PaymentType, b.PaymentType)
}

// reviewBetter ranks by latest creation timestamp (nulls last), then
// ascending review id.
func reviewBetter(a, b core.Review) bool {
	switch {
	case a.CreationTS != nil && b.CreationTS == nil:
		return true
	case a.CreationTS == nil && b.CreationTS != nil:
		return false
	case a.CreationTS != nil && b.CreationTS != nil && !a.CreationTS.Equal(*b.CreationTS):
		return a.CreationTS.After(*b.CreationTS)
	}
	return a.ReviewID < b.ReviewID
}

func lessNullLast(a, b *string) bool {
	switch {
	case a != nil && b == nil:
		return true
	case a == nil:
		return false
	default:
		return *a < *b
	}
}

// resolveCategory picks the category carrying the largest summed item price.
func resolveCategory(spend map[string]float64) string {
	if len(spend) == 0 {
		return core.UnknownSegment
	}
	cands := make([]categorySpend, 0, len(spend))
	for c, v := range spend {
		cands = append(cands, categorySpend{category: c, spend: v})
	}
	best, _ := maxBy(cands, categoryBetter)
	return best.category
}

// categoryOf returns the product's category; ok is false when the product is
// unknown or carries no category, in which case the item adds no spend.
func categoryOf(p *core.Product) (string, bool) {
	if p == nil {
		return "", false
	}
	c := core.SegmentLabel(p.CategoryName)
	return c, c != core.UnknownSegment
}

func normalizeState(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(*s))
	if v == "" {
		return nil
	}
	return &v
}

// deliveryFields derives delivery duration and lateness; either is nil when
// the timestamps it needs are missing.
func deliveryFields(o core.Order) (*float64, *bool) {
	var days *float64
	var late *bool
	if o.DeliveredCustomerTS != nil && o.PurchaseTS != nil {
		days = core.Float(o.DeliveredCustomerTS.Sub(*o.PurchaseTS).Hours() / 24)
	}
	if o.DeliveredCustomerTS != nil && o.EstimatedDeliveryTS != nil {
		l := dateOf(*o.DeliveredCustomerTS).After(dateOf(*o.EstimatedDeliveryTS))
		late = &l
	}
	return days, late
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
