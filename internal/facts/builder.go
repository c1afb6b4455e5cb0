// Package facts builds one resolved order fact per delivered order.
package facts

import (
	"sort"

	"gmvbridge/internal/core"
)

// BuildStats counts what the builder kept and why it dropped the rest.
type BuildStats struct {
	OrdersSeen   int
	NotDelivered int
	MissingItems int
	Duplicates   int
	UnknownMonth int
	Facts        int
}

// Build joins the snapshot into order facts. It is a pure function of its
// input: rebuilding from the same snapshot yields identical rows.
func Build(s core.Snapshot) []core.OrderFact {
	out, _ := BuildWithStats(s)
	return out
}

// BuildWithStats is Build plus the drop counters.
func BuildWithStats(s core.Snapshot) ([]core.OrderFact, BuildStats) {
	var stats BuildStats

	products := make(map[string]*core.Product, len(s.Products))
	for i := range s.Products {
		products[s.Products[i].ProductID] = &s.Products[i]
	}
	customers := make(map[string]*core.Customer, len(s.Customers))
	for i := range s.Customers {
		customers[s.Customers[i].CustomerID] = &s.Customers[i]
	}
	items := make(map[string][]core.OrderItem)
	for _, it := range s.Items {
		items[it.OrderID] = append(items[it.OrderID], it)
	}
	payments := make(map[string][]core.Payment)
	for _, p := range s.Payments {
		payments[p.OrderID] = append(payments[p.OrderID], p)
	}
	reviews := make(map[string][]core.Review)
	for _, r := range s.Reviews {
		reviews[r.OrderID] = append(reviews[r.OrderID], r)
	}

	seen := make(map[string]struct{}, len(s.Orders))
	out := make([]core.OrderFact, 0, len(s.Orders))
	for _, o := range s.Orders {
		stats.OrdersSeen++
		if !o.IsDelivered() {
			stats.NotDelivered++
			continue
		}
		if _, dup := seen[o.OrderID]; dup {
			stats.Duplicates++
			continue
		}
		its := items[o.OrderID]
		if len(its) == 0 {
			stats.MissingItems++
			continue
		}
		seen[o.OrderID] = struct{}{}

		f := buildFact(o, its, products)
		if c, ok := customers[o.CustomerID]; ok {
			f.CustomerState = normalizeState(c.State)
		}
		if p, ok := maxBy(payments[o.OrderID], paymentBetter); ok {
			f.PaymentType = p.PaymentType
			f.PaymentInstallments = p.Installments
		}
		if r, ok := maxBy(reviews[o.OrderID], reviewBetter); ok {
			f.ReviewScore = validScore(r.Score)
		}
		if f.MonthKey().IsZero() {
			stats.UnknownMonth++
		}
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.OrderID < b.OrderID
	})
	stats.Facts = len(out)
	return out, stats
}

func buildFact(o core.Order, its []core.OrderItem, products map[string]*core.Product) core.OrderFact {
	spend := make(map[string]float64)
	skus := make(map[string]struct{})
	var net, freight float64
	for _, it := range its {
		net += it.Price
		freight += it.FreightValue
		skus[it.ProductID] = struct{}{}
		if c, ok := categoryOf(products[it.ProductID]); ok {
			spend[c] += it.Price
		}
	}

	month := o.MonthKey()
	days, late := deliveryFields(o)
	return core.OrderFact{
		OrderID:             o.OrderID,
		CustomerID:          o.CustomerID,
		PurchaseTS:          o.PurchaseTS,
		DeliveredCustomerTS: o.DeliveredCustomerTS,
		EstimatedDeliveryTS: o.EstimatedDeliveryTS,
		MainCategory:        resolveCategory(spend),
		AmountNet:           net,
		Freight:             freight,
		AmountGross:         net + freight,
		ItemsPerOrder:       len(its),
		DistinctSKUs:        len(skus),
		DeliveryDays:        days,
		DeliveredLate:       late,
		Year:                month.Year,
		Month:               month.Month,
	}
}

func validScore(s *int) *int {
	if s == nil || *s < 1 || *s > 5 {
		return nil
	}
	return s
}
