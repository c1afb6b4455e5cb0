// Package csvdir reads a snapshot from a directory of Olist-style CSV exports.
//
// Files are matched by name and columns by header, so extra columns and any
// column order are accepted. Non-castable values in nullable columns are read
// as nulls; rows whose required keys or amounts cannot be read are skipped and
// counted.
package csvdir

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gmvbridge/internal/core"
	applog "gmvbridge/internal/log"
)

// File names of the Olist public dataset.
const (
	OrdersFile    = "olist_orders_dataset.csv"
	ItemsFile     = "olist_order_items_dataset.csv"
	ProductsFile  = "olist_products_dataset.csv"
	PaymentsFile  = "olist_order_payments_dataset.csv"
	ReviewsFile   = "olist_order_reviews_dataset.csv"
	CustomersFile = "olist_customers_dataset.csv"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Stats counts rows dropped while reading.
type Stats struct {
	Rows    map[string]int
	Skipped map[string]int
}

// Reader implements input.SnapshotReader over a directory.
type Reader struct {
	dir    string
	logger *applog.Logger
	stats  Stats
}

func New(dir string, logger *applog.Logger) *Reader {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Reader{dir: dir, logger: logger.WithComponent(applog.ComponentInput)}
}

// Stats reports the counts of the last ReadSnapshot call.
func (r *Reader) Stats() Stats {
	return r.stats
}

func (r *Reader) ReadSnapshot(ctx context.Context) (core.Snapshot, error) {
	r.stats = Stats{Rows: map[string]int{}, Skipped: map[string]int{}}
	var s core.Snapshot

	steps := []struct {
		file     string
		optional bool
		row      func(row) bool
	}{
		{OrdersFile, false, func(rw row) bool { return appendOrder(&s, rw) }},
		{ItemsFile, false, func(rw row) bool { return appendItem(&s, rw) }},
		{ProductsFile, false, func(rw row) bool { return appendProduct(&s, rw) }},
		{PaymentsFile, true, func(rw row) bool { return appendPayment(&s, rw) }},
		{ReviewsFile, true, func(rw row) bool { return appendReview(&s, rw) }},
		{CustomersFile, true, func(rw row) bool { return appendCustomer(&s, rw) }},
	}
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return core.Snapshot{}, err
		}
		err := r.readFile(st.file, st.row)
		if errors.Is(err, os.ErrNotExist) && st.optional {
			r.logger.Warn("Optional input file missing", applog.FieldPath, filepath.Join(r.dir, st.file))
			continue
		}
		if err != nil {
			return core.Snapshot{}, fmt.Errorf("read %s: %w: %w", st.file, core.ErrInputUnavailable, err)
		}
	}

	r.logger.Info("Snapshot read",
		applog.FieldPath, r.dir,
		"orders", len(s.Orders),
		"items", len(s.Items),
		"skipped", totalOf(r.stats.Skipped))
	return s, nil
}

func (r *Reader) readFile(name string, each func(row) bool) error {
	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		r.stats.Rows[name]++
		if !each(row{cols: cols, rec: rec}) {
			r.stats.Skipped[name]++
		}
	}
}

// row is one CSV record addressed by header name.
type row struct {
	cols map[string]int
	rec  []string
}

func (r row) get(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r row) str(col string) *string {
	v := r.get(col)
	if v == "" {
		return nil
	}
	return &v
}

func (r row) integer(col string) *int {
	v, err := strconv.Atoi(r.get(col))
	if err != nil {
		return nil
	}
	return &v
}

func (r row) amount(col string) *float64 {
	v, err := core.ParseAmount(r.get(col))
	if err != nil {
		return nil
	}
	return v
}

func (r row) ts(col string) *time.Time {
	v := r.get(col)
	if v == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

func appendOrder(s *core.Snapshot, r row) bool {
	id := r.get("order_id")
	if id == "" {
		return false
	}
	o := core.Order{
		OrderID:             id,
		CustomerID:          r.get("customer_id"),
		Status:              r.get("order_status"),
		PurchaseTS:          r.ts("order_purchase_timestamp"),
		DeliveredCustomerTS: r.ts("order_delivered_customer_date"),
		EstimatedDeliveryTS: r.ts("order_estimated_delivery_date"),
	}
	if y := r.integer("year"); y != nil {
		o.Year = *y
	}
	if m := r.integer("month"); m != nil {
		o.Month = *m
	}
	s.Orders = append(s.Orders, o)
	return true
}

func appendItem(s *core.Snapshot, r row) bool {
	id := r.get("order_id")
	price := r.amount("price")
	if id == "" || price == nil {
		return false
	}
	it := core.OrderItem{OrderID: id, ProductID: r.get("product_id"), Price: *price}
	if seq := r.integer("order_item_id"); seq != nil {
		it.ItemSeq = *seq
	}
	if fv := r.amount("freight_value"); fv != nil {
		it.FreightValue = *fv
	}
	s.Items = append(s.Items, it)
	return true
}

func appendProduct(s *core.Snapshot, r row) bool {
	id := r.get("product_id")
	if id == "" {
		return false
	}
	s.Products = append(s.Products, core.Product{ProductID: id, CategoryName: r.str("product_category_name")})
	return true
}

func appendPayment(s *core.Snapshot, r row) bool {
	id := r.get("order_id")
	if id == "" {
		return false
	}
	p := core.Payment{
		OrderID:      id,
		PaymentType:  r.str("payment_type"),
		Installments: r.integer("payment_installments"),
		Value:        r.amount("payment_value"),
	}
	if seq := r.integer("payment_sequential"); seq != nil {
		p.Sequential = *seq
	}
	s.Payments = append(s.Payments, p)
	return true
}

func appendReview(s *core.Snapshot, r row) bool {
	id := r.get("order_id")
	if id == "" {
		return false
	}
	s.Reviews = append(s.Reviews, core.Review{
		ReviewID:   r.get("review_id"),
		OrderID:    id,
		Score:      r.integer("review_score"),
		CreationTS: r.ts("review_creation_date"),
	})
	return true
}

func appendCustomer(s *core.Snapshot, r row) bool {
	id := r.get("customer_id")
	if id == "" {
		return false
	}
	s.Customers = append(s.Customers, core.Customer{CustomerID: id, State: r.str("customer_state")})
	return true
}

func totalOf(m map[string]int) int {
	var n int
	for _, v := range m {
		n += v
	}
	return n
}
