package monthly

import (
	"sort"
	"strings"

	"gmvbridge/internal/core"
)

// PriceQtyByCategory is PriceQtyBySegment along the category dimension.
func PriceQtyByCategory(s core.Snapshot) []core.PriceQtyMetric {
	return PriceQtyBySegment(s, core.CategoryDimension)
}

// PriceQtyBySegment computes unit price and basket size straight from item
// rows of delivered orders so each line keeps its own segment. An order
// spanning several categories counts once in each of them.
func PriceQtyBySegment(s core.Snapshot, dim core.Dimension) []core.PriceQtyMetric {
	orders := make(map[string]core.Order, len(s.Orders))
	for _, o := range s.Orders {
		if !o.IsDelivered() {
			continue
		}
		if _, dup := orders[o.OrderID]; !dup {
			orders[o.OrderID] = o
		}
	}
	categories := make(map[string]string, len(s.Products))
	for _, p := range s.Products {
		categories[p.ProductID] = core.SegmentLabel(p.CategoryName)
	}
	states := make(map[string]string, len(s.Customers))
	for _, c := range s.Customers {
		states[c.CustomerID] = stateLabel(c.State)
	}

	type group struct {
		orders map[string]struct{}
		items  int
		gmv    float64
	}
	groups := make(map[segmentKey]*group)
	for _, it := range s.Items {
		o, ok := orders[it.OrderID]
		if !ok {
			continue
		}
		m := o.MonthKey()
		if m.IsZero() {
			continue
		}
		var seg string
		switch dim {
		case core.StateDimension:
			seg = labelOr(states, o.CustomerID)
		default:
			seg = labelOr(categories, it.ProductID)
		}
		k := segmentKey{month: m, segment: seg}
		g := groups[k]
		if g == nil {
			g = &group{orders: make(map[string]struct{})}
			groups[k] = g
		}
		g.orders[it.OrderID] = struct{}{}
		g.items++
		g.gmv += it.Price
	}

	out := make([]core.PriceQtyMetric, 0, len(groups))
	for k, g := range groups {
		out = append(out, core.NewPriceQtyMetric(k.month, k.segment, len(g.orders), g.items, g.gmv))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month.Before(out[j].Month)
		}
		return out[i].Segment < out[j].Segment
	})
	return out
}

func labelOr(labels map[string]string, key string) string {
	if l, ok := labels[key]; ok {
		return l
	}
	return core.UnknownSegment
}

func stateLabel(s *string) string {
	l := core.SegmentLabel(s)
	if l == core.UnknownSegment {
		return l
	}
	return strings.ToUpper(l)
}
