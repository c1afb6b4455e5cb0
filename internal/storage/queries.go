package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the SQL of the repository, one method per statement.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Input tables

type OrderRow struct {
	OrderID             string
	CustomerID          string
	Status              string
	PurchaseTS          sql.NullString
	DeliveredCustomerTS sql.NullString
	EstimatedDeliveryTS sql.NullString
	Year                int64
	Month               int64
}

const insertOrder = `INSERT OR REPLACE INTO orders
(order_id, customer_id, status, purchase_ts, delivered_customer_ts, estimated_delivery_ts, year, month)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertOrder(ctx context.Context, r OrderRow) error {
	_, err := q.db.ExecContext(ctx, insertOrder, r.OrderID, r.CustomerID, r.Status,
		r.PurchaseTS, r.DeliveredCustomerTS, r.EstimatedDeliveryTS, r.Year, r.Month)
	return err
}

const listOrders = `SELECT order_id, customer_id, status, purchase_ts, delivered_customer_ts, estimated_delivery_ts, year, month
FROM orders ORDER BY order_id`

func (q *Queries) ListOrders(ctx context.Context) ([]OrderRow, error) {
	rows, err := q.db.QueryContext(ctx, listOrders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderRow
	for rows.Next() {
		var i OrderRow
		if err := rows.Scan(&i.OrderID, &i.CustomerID, &i.Status, &i.PurchaseTS,
			&i.DeliveredCustomerTS, &i.EstimatedDeliveryTS, &i.Year, &i.Month); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type OrderItemRow struct {
	OrderID      string
	ItemSeq      int64
	ProductID    string
	Price        float64
	FreightValue float64
}

const insertOrderItem = `INSERT OR REPLACE INTO order_items (order_id, item_seq, product_id, price, freight_value)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertOrderItem(ctx context.Context, r OrderItemRow) error {
	_, err := q.db.ExecContext(ctx, insertOrderItem, r.OrderID, r.ItemSeq, r.ProductID, r.Price, r.FreightValue)
	return err
}

const listOrderItems = `SELECT order_id, item_seq, product_id, price, freight_value
FROM order_items ORDER BY order_id, item_seq`

func (q *Queries) ListOrderItems(ctx context.Context) ([]OrderItemRow, error) {
	rows, err := q.db.QueryContext(ctx, listOrderItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItemRow
	for rows.Next() {
		var i OrderItemRow
		if err := rows.Scan(&i.OrderID, &i.ItemSeq, &i.ProductID, &i.Price, &i.FreightValue); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type ProductRow struct {
	ProductID    string
	CategoryName sql.NullString
}

const insertProduct = `INSERT OR REPLACE INTO products (product_id, category_name) VALUES (?, ?)`

func (q *Queries) InsertProduct(ctx context.Context, r ProductRow) error {
	_, err := q.db.ExecContext(ctx, insertProduct, r.ProductID, r.CategoryName)
	return err
}

const listProducts = `SELECT product_id, category_name FROM products ORDER BY product_id`

func (q *Queries) ListProducts(ctx context.Context) ([]ProductRow, error) {
	rows, err := q.db.QueryContext(ctx, listProducts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProductRow
	for rows.Next() {
		var i ProductRow
		if err := rows.Scan(&i.ProductID, &i.CategoryName); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type PaymentRow struct {
	OrderID      string
	Sequential   int64
	PaymentType  sql.NullString
	Installments sql.NullInt64
	Value        sql.NullFloat64
}

const insertPayment = `INSERT OR REPLACE INTO payments (order_id, sequential, payment_type, installments, value)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertPayment(ctx context.Context, r PaymentRow) error {
	_, err := q.db.ExecContext(ctx, insertPayment, r.OrderID, r.Sequential, r.PaymentType, r.Installments, r.Value)
	return err
}

const listPayments = `SELECT order_id, sequential, payment_type, installments, value
FROM payments ORDER BY order_id, sequential`

func (q *Queries) ListPayments(ctx context.Context) ([]PaymentRow, error) {
	rows, err := q.db.QueryContext(ctx, listPayments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaymentRow
	for rows.Next() {
		var i PaymentRow
		if err := rows.Scan(&i.OrderID, &i.Sequential, &i.PaymentType, &i.Installments, &i.Value); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type ReviewRow struct {
	ReviewID   string
	OrderID    string
	Score      sql.NullInt64
	CreationTS sql.NullString
}

const insertReview = `INSERT OR REPLACE INTO reviews (review_id, order_id, score, creation_ts) VALUES (?, ?, ?, ?)`

func (q *Queries) InsertReview(ctx context.Context, r ReviewRow) error {
	_, err := q.db.ExecContext(ctx, insertReview, r.ReviewID, r.OrderID, r.Score, r.CreationTS)
	return err
}

const listReviews = `SELECT review_id, order_id, score, creation_ts FROM reviews ORDER BY order_id, review_id`

func (q *Queries) ListReviews(ctx context.Context) ([]ReviewRow, error) {
	rows, err := q.db.QueryContext(ctx, listReviews)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReviewRow
	for rows.Next() {
		var i ReviewRow
		if err := rows.Scan(&i.ReviewID, &i.OrderID, &i.Score, &i.CreationTS); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type CustomerRow struct {
	CustomerID string
	State      sql.NullString
}

const insertCustomer = `INSERT OR REPLACE INTO customers (customer_id, state) VALUES (?, ?)`

func (q *Queries) InsertCustomer(ctx context.Context, r CustomerRow) error {
	_, err := q.db.ExecContext(ctx, insertCustomer, r.CustomerID, r.State)
	return err
}

const listCustomers = `SELECT customer_id, state FROM customers ORDER BY customer_id`

func (q *Queries) ListCustomers(ctx context.Context) ([]CustomerRow, error) {
	rows, err := q.db.QueryContext(ctx, listCustomers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CustomerRow
	for rows.Next() {
		var i CustomerRow
		if err := rows.Scan(&i.CustomerID, &i.State); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// Output tables

type FactRow struct {
	Year                int64
	Month               int64
	OrderID             string
	RunID               string
	CustomerID          string
	PurchaseTS          sql.NullString
	DeliveredCustomerTS sql.NullString
	EstimatedDeliveryTS sql.NullString
	CustomerState       sql.NullString
	MainCategory        string
	PaymentType         sql.NullString
	PaymentInstallments sql.NullInt64
	ReviewScore         sql.NullInt64
	AmountNet           float64
	AmountGross         float64
	Freight             float64
	ItemsPerOrder       int64
	DistinctSKUs        int64
	DeliveryDays        sql.NullFloat64
	DeliveredLate       sql.NullBool
}

const deleteFactsByMonth = `DELETE FROM order_facts WHERE year = ? AND month = ?`

func (q *Queries) DeleteFactsByMonth(ctx context.Context, year, month int64) error {
	_, err := q.db.ExecContext(ctx, deleteFactsByMonth, year, month)
	return err
}

const insertFact = `INSERT INTO order_facts (
    year, month, order_id, run_id, customer_id, purchase_ts, delivered_customer_ts, estimated_delivery_ts,
    customer_state, main_category, payment_type, payment_installments, review_score,
    amount_net, amount_gross, freight, items_per_order, distinct_skus, delivery_days, delivered_late
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertFact(ctx context.Context, r FactRow) error {
	_, err := q.db.ExecContext(ctx, insertFact,
		r.Year, r.Month, r.OrderID, r.RunID, r.CustomerID, r.PurchaseTS, r.DeliveredCustomerTS, r.EstimatedDeliveryTS,
		r.CustomerState, r.MainCategory, r.PaymentType, r.PaymentInstallments, r.ReviewScore,
		r.AmountNet, r.AmountGross, r.Freight, r.ItemsPerOrder, r.DistinctSKUs, r.DeliveryDays, r.DeliveredLate)
	return err
}

const listFactsByMonth = `SELECT year, month, order_id, run_id, customer_id, purchase_ts, delivered_customer_ts, estimated_delivery_ts,
    customer_state, main_category, payment_type, payment_installments, review_score,
    amount_net, amount_gross, freight, items_per_order, distinct_skus, delivery_days, delivered_late
FROM order_facts WHERE year = ? AND month = ? ORDER BY order_id`

func (q *Queries) ListFactsByMonth(ctx context.Context, year, month int64) ([]FactRow, error) {
	rows, err := q.db.QueryContext(ctx, listFactsByMonth, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FactRow
	for rows.Next() {
		var i FactRow
		if err := rows.Scan(&i.Year, &i.Month, &i.OrderID, &i.RunID, &i.CustomerID, &i.PurchaseTS,
			&i.DeliveredCustomerTS, &i.EstimatedDeliveryTS, &i.CustomerState, &i.MainCategory,
			&i.PaymentType, &i.PaymentInstallments, &i.ReviewScore, &i.AmountNet, &i.AmountGross,
			&i.Freight, &i.ItemsPerOrder, &i.DistinctSKUs, &i.DeliveryDays, &i.DeliveredLate); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type StepRow struct {
	Year        int64
	Month       int64
	Family      string
	Dimension   string
	SortKey     int64
	RunID       string
	MonthIndex  int64
	SortInMonth int64
	Kind        string
	Stage       string
	Component   string
	Amount      float64
	IsTotal     bool
}

const deleteStepsByMonth = `DELETE FROM waterfall_steps WHERE year = ? AND month = ?`

func (q *Queries) DeleteStepsByMonth(ctx context.Context, year, month int64) error {
	_, err := q.db.ExecContext(ctx, deleteStepsByMonth, year, month)
	return err
}

const insertStep = `INSERT INTO waterfall_steps (
    year, month, family, dimension, sort_key, run_id, month_index, sort_in_month, kind, stage, component, amount, is_total
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertStep(ctx context.Context, r StepRow) error {
	_, err := q.db.ExecContext(ctx, insertStep, r.Year, r.Month, r.Family, r.Dimension, r.SortKey, r.RunID,
		r.MonthIndex, r.SortInMonth, r.Kind, r.Stage, r.Component, r.Amount, r.IsTotal)
	return err
}

const listStepsByMonth = `SELECT year, month, family, dimension, sort_key, run_id, month_index, sort_in_month,
    kind, stage, component, amount, is_total
FROM waterfall_steps WHERE year = ? AND month = ? ORDER BY family, dimension, sort_key`

func (q *Queries) ListStepsByMonth(ctx context.Context, year, month int64) ([]StepRow, error) {
	rows, err := q.db.QueryContext(ctx, listStepsByMonth, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StepRow
	for rows.Next() {
		var i StepRow
		if err := rows.Scan(&i.Year, &i.Month, &i.Family, &i.Dimension, &i.SortKey, &i.RunID, &i.MonthIndex,
			&i.SortInMonth, &i.Kind, &i.Stage, &i.Component, &i.Amount, &i.IsTotal); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type DrilldownRowRecord struct {
	Dimension string
	Metric    string
	MonthA    string
	MonthB    string
	Rank      int64
	RunID     string
	Segment   string
	MetricA   float64
	MetricB   float64
	Delta     float64
	AbsDelta  float64
	PctChange sql.NullFloat64
}

const deleteDrilldown = `DELETE FROM drilldown_rows WHERE dimension = ? AND metric = ? AND month_a = ? AND month_b = ?`

func (q *Queries) DeleteDrilldown(ctx context.Context, dimension, metric, monthA, monthB string) error {
	_, err := q.db.ExecContext(ctx, deleteDrilldown, dimension, metric, monthA, monthB)
	return err
}

const insertDrilldownRow = `INSERT INTO drilldown_rows (
    dimension, metric, month_a, month_b, rank, run_id, segment, metric_a, metric_b, delta, abs_delta, pct_change
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertDrilldownRow(ctx context.Context, r DrilldownRowRecord) error {
	_, err := q.db.ExecContext(ctx, insertDrilldownRow, r.Dimension, r.Metric, r.MonthA, r.MonthB, r.Rank, r.RunID,
		r.Segment, r.MetricA, r.MetricB, r.Delta, r.AbsDelta, r.PctChange)
	return err
}

const listDrilldown = `SELECT dimension, metric, month_a, month_b, rank, run_id, segment, metric_a, metric_b, delta, abs_delta, pct_change
FROM drilldown_rows WHERE dimension = ? AND metric = ? AND month_a = ? AND month_b = ? ORDER BY rank`

func (q *Queries) ListDrilldown(ctx context.Context, dimension, metric, monthA, monthB string) ([]DrilldownRowRecord, error) {
	rows, err := q.db.QueryContext(ctx, listDrilldown, dimension, metric, monthA, monthB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DrilldownRowRecord
	for rows.Next() {
		var i DrilldownRowRecord
		if err := rows.Scan(&i.Dimension, &i.Metric, &i.MonthA, &i.MonthB, &i.Rank, &i.RunID, &i.Segment,
			&i.MetricA, &i.MetricB, &i.Delta, &i.AbsDelta, &i.PctChange); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type RunRow struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Facts          int64
	Months         int64
	Steps          int64
	DrilldownRows  int64
	RecalcWarnings int64
}

const insertRun = `INSERT OR REPLACE INTO runs (run_id, started_at, finished_at, facts, months, steps, drilldown_rows, recalc_warnings)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertRun(ctx context.Context, r RunRow) error {
	_, err := q.db.ExecContext(ctx, insertRun, r.RunID, r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.FinishedAt.UTC().Format(time.RFC3339Nano), r.Facts, r.Months, r.Steps, r.DrilldownRows, r.RecalcWarnings)
	return err
}

const countRuns = `SELECT COUNT(*) FROM runs`

func (q *Queries) CountRuns(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countRuns).Scan(&n)
	return n, err
}
