package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"gmvbridge/internal/core"
	"gmvbridge/internal/input"
	applog "gmvbridge/internal/log"
	"gmvbridge/internal/report"

	_ "modernc.org/sqlite"
)

// DefaultShardWriters bounds the number of month shards written at once.
const DefaultShardWriters = 4

var (
	_ input.SnapshotReader = (*SQLiteRepository)(nil)
	_ report.Writer        = (*SQLiteRepository)(nil)
	_ report.RunRecorder   = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db           *sql.DB
	queries      *Queries
	logger       *applog.Logger
	shardWriters int
}

type Option func(*SQLiteRepository)

// WithShardWriters sets how many month shards may be written concurrently.
func WithShardWriters(n int) Option {
	return func(r *SQLiteRepository) {
		if n > 0 {
			r.shardWriters = n
		}
	}
}

func WithLogger(l *applog.Logger) Option {
	return func(r *SQLiteRepository) {
		if l != nil {
			r.logger = l.WithComponent(applog.ComponentStorage)
		}
	}
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; shard transactions queue on the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:           db,
		queries:      New(db),
		logger:       applog.Discard(),
		shardWriters: DefaultShardWriters,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReadSnapshot implements input.SnapshotReader over the input tables.
func (r *SQLiteRepository) ReadSnapshot(ctx context.Context) (core.Snapshot, error) {
	s, err := r.readSnapshot(ctx)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("read sqlite snapshot: %w: %w", core.ErrInputUnavailable, err)
	}
	r.logger.InfoContext(ctx, "Snapshot read from SQLite",
		applog.FieldOperation, applog.OpRead,
		"orders", len(s.Orders),
		"items", len(s.Items))
	return s, nil
}

func (r *SQLiteRepository) readSnapshot(ctx context.Context) (core.Snapshot, error) {
	var s core.Snapshot

	orders, err := r.queries.ListOrders(ctx)
	if err != nil {
		return s, fmt.Errorf("list orders: %w", err)
	}
	for _, o := range orders {
		s.Orders = append(s.Orders, core.Order{
			OrderID:             o.OrderID,
			CustomerID:          o.CustomerID,
			Status:              o.Status,
			PurchaseTS:          fromNullTime(o.PurchaseTS),
			DeliveredCustomerTS: fromNullTime(o.DeliveredCustomerTS),
			EstimatedDeliveryTS: fromNullTime(o.EstimatedDeliveryTS),
			Year:                int(o.Year),
			Month:               int(o.Month),
		})
	}

	items, err := r.queries.ListOrderItems(ctx)
	if err != nil {
		return s, fmt.Errorf("list order items: %w", err)
	}
	for _, it := range items {
		s.Items = append(s.Items, core.OrderItem{
			OrderID:      it.OrderID,
			ItemSeq:      int(it.ItemSeq),
			ProductID:    it.ProductID,
			Price:        it.Price,
			FreightValue: it.FreightValue,
		})
	}

	products, err := r.queries.ListProducts(ctx)
	if err != nil {
		return s, fmt.Errorf("list products: %w", err)
	}
	for _, p := range products {
		s.Products = append(s.Products, core.Product{ProductID: p.ProductID, CategoryName: fromNullString(p.CategoryName)})
	}

	payments, err := r.queries.ListPayments(ctx)
	if err != nil {
		return s, fmt.Errorf("list payments: %w", err)
	}
	for _, p := range payments {
		s.Payments = append(s.Payments, core.Payment{
			OrderID:      p.OrderID,
			Sequential:   int(p.Sequential),
			PaymentType:  fromNullString(p.PaymentType),
			Installments: fromNullInt(p.Installments),
			Value:        fromNullFloat(p.Value),
		})
	}

	reviews, err := r.queries.ListReviews(ctx)
	if err != nil {
		return s, fmt.Errorf("list reviews: %w", err)
	}
	for _, rv := range reviews {
		s.Reviews = append(s.Reviews, core.Review{
			ReviewID:   rv.ReviewID,
			OrderID:    rv.OrderID,
			Score:      fromNullInt(rv.Score),
			CreationTS: fromNullTime(rv.CreationTS),
		})
	}

	customers, err := r.queries.ListCustomers(ctx)
	if err != nil {
		return s, fmt.Errorf("list customers: %w", err)
	}
	for _, c := range customers {
		s.Customers = append(s.Customers, core.Customer{CustomerID: c.CustomerID, State: fromNullString(c.State)})
	}
	return s, nil
}

// LoadSnapshot upserts a snapshot into the input tables in one transaction.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context, s core.Snapshot) error {
	err := r.withTx(ctx, func(q *Queries) error {
		for _, o := range s.Orders {
			if err := q.InsertOrder(ctx, OrderRow{
				OrderID:             o.OrderID,
				CustomerID:          o.CustomerID,
				Status:              o.Status,
				PurchaseTS:          toNullTime(o.PurchaseTS),
				DeliveredCustomerTS: toNullTime(o.DeliveredCustomerTS),
				EstimatedDeliveryTS: toNullTime(o.EstimatedDeliveryTS),
				Year:                int64(o.Year),
				Month:               int64(o.Month),
			}); err != nil {
				return fmt.Errorf("insert order %s: %w", o.OrderID, err)
			}
		}
		for _, it := range s.Items {
			if err := q.InsertOrderItem(ctx, OrderItemRow{
				OrderID:      it.OrderID,
				ItemSeq:      int64(it.ItemSeq),
				ProductID:    it.ProductID,
				Price:        it.Price,
				FreightValue: it.FreightValue,
			}); err != nil {
				return fmt.Errorf("insert item %s/%d: %w", it.OrderID, it.ItemSeq, err)
			}
		}
		for _, p := range s.Products {
			if err := q.InsertProduct(ctx, ProductRow{ProductID: p.ProductID, CategoryName: toNullString(p.CategoryName)}); err != nil {
				return fmt.Errorf("insert product %s: %w", p.ProductID, err)
			}
		}
		for _, p := range s.Payments {
			if err := q.InsertPayment(ctx, PaymentRow{
				OrderID:      p.OrderID,
				Sequential:   int64(p.Sequential),
				PaymentType:  toNullString(p.PaymentType),
				Installments: toNullInt(p.Installments),
				Value:        toNullFloat(p.Value),
			}); err != nil {
				return fmt.Errorf("insert payment %s/%d: %w", p.OrderID, p.Sequential, err)
			}
		}
		for _, rv := range s.Reviews {
			if err := q.InsertReview(ctx, ReviewRow{
				ReviewID:   rv.ReviewID,
				OrderID:    rv.OrderID,
				Score:      toNullInt(rv.Score),
				CreationTS: toNullTime(rv.CreationTS),
			}); err != nil {
				return fmt.Errorf("insert review %s: %w", rv.ReviewID, err)
			}
		}
		for _, c := range s.Customers {
			if err := q.InsertCustomer(ctx, CustomerRow{CustomerID: c.CustomerID, State: toNullString(c.State)}); err != nil {
				return fmt.Errorf("insert customer %s: %w", c.CustomerID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	return nil
}

// writeShards runs one write per month with bounded concurrency.
func writeShards[T any](ctx context.Context, limit int, shards map[core.Month][]T, write func(context.Context, core.Month, []T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, m := range report.SortedMonths(shards) {
		m := m
		rows := shards[m]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return write(gctx, m, rows)
		})
	}
	return g.Wait()
}

// WriteFacts replaces the fact shard of every month present in facts.
func (r *SQLiteRepository) WriteFacts(ctx context.Context, run report.Run, facts []core.OrderFact) error {
	shards := report.ShardFacts(facts)
	err := writeShards(ctx, r.shardWriters, shards, func(ctx context.Context, m core.Month, rows []core.OrderFact) error {
		return r.withTx(ctx, func(q *Queries) error {
			if err := q.DeleteFactsByMonth(ctx, int64(m.Year), int64(m.Month)); err != nil {
				return fmt.Errorf("clear facts %s: %w", m, err)
			}
			for _, f := range rows {
				row := factRow(run.ID, f)
				row.Year, row.Month = int64(m.Year), int64(m.Month)
				if err := q.InsertFact(ctx, row); err != nil {
					return fmt.Errorf("insert fact %s: %w", f.OrderID, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("write facts: %w", err)
	}
	r.logger.InfoContext(ctx, "Facts written",
		applog.FieldRunID, run.ID,
		applog.FieldRows, len(facts),
		"shards", len(shards))
	return nil
}

// WriteWaterfall replaces the waterfall shard of every month present in steps.
func (r *SQLiteRepository) WriteWaterfall(ctx context.Context, run report.Run, steps []core.WaterfallStep) error {
	shards := report.ShardSteps(steps)
	err := writeShards(ctx, r.shardWriters, shards, func(ctx context.Context, m core.Month, rows []core.WaterfallStep) error {
		return r.withTx(ctx, func(q *Queries) error {
			if err := q.DeleteStepsByMonth(ctx, int64(m.Year), int64(m.Month)); err != nil {
				return fmt.Errorf("clear steps %s: %w", m, err)
			}
			for _, s := range rows {
				if err := q.InsertStep(ctx, StepRow{
					Year:        int64(m.Year),
					Month:       int64(m.Month),
					Family:      string(s.Family),
					Dimension:   string(s.Dimension),
					SortKey:     int64(s.SortKey),
					RunID:       run.ID,
					MonthIndex:  int64(s.MonthIndex),
					SortInMonth: int64(s.SortInMonth),
					Kind:        s.Kind.String(),
					Stage:       s.Stage,
					Component:   s.Component,
					Amount:      s.Amount,
					IsTotal:     s.IsTotal,
				}); err != nil {
					return fmt.Errorf("insert step %s/%s/%d: %w", s.Family, s.Dimension, s.SortKey, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("write waterfall: %w", err)
	}
	r.logger.InfoContext(ctx, "Waterfall written",
		applog.FieldRunID, run.ID,
		applog.FieldRows, len(steps),
		"shards", len(shards))
	return nil
}

// WriteDrilldown replaces the stored ranking of the same comparison.
func (r *SQLiteRepository) WriteDrilldown(ctx context.Context, run report.Run, d report.Drilldown) error {
	dim, metric, a, b := string(d.Dimension), string(d.Metric), d.MonthA.String(), d.MonthB.String()
	err := r.withTx(ctx, func(q *Queries) error {
		if err := q.DeleteDrilldown(ctx, dim, metric, a, b); err != nil {
			return err
		}
		for i, row := range d.Rows {
			if err := q.InsertDrilldownRow(ctx, DrilldownRowRecord{
				Dimension: dim,
				Metric:    metric,
				MonthA:    a,
				MonthB:    b,
				Rank:      int64(i + 1),
				RunID:     run.ID,
				Segment:   row.Segment,
				MetricA:   row.MetricA,
				MetricB:   row.MetricB,
				Delta:     row.Delta,
				AbsDelta:  row.AbsDelta,
				PctChange: toNullFloat(row.PctChange),
			}); err != nil {
				return fmt.Errorf("insert segment %s: %w", row.Segment, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write drilldown: %w", err)
	}
	return nil
}

// ReadDrilldown returns the stored ranking of a comparison.
func (r *SQLiteRepository) ReadDrilldown(ctx context.Context, dim core.Dimension, metric core.DrilldownMetric, a, b core.Month) ([]core.DrilldownRow, error) {
	recs, err := r.queries.ListDrilldown(ctx, string(dim), string(metric), a.String(), b.String())
	if err != nil {
		return nil, fmt.Errorf("list drilldown: %w", err)
	}
	out := make([]core.DrilldownRow, len(recs))
	for i, rec := range recs {
		out[i] = core.DrilldownRow{
			Segment:   rec.Segment,
			MetricA:   rec.MetricA,
			MetricB:   rec.MetricB,
			Delta:     rec.Delta,
			AbsDelta:  rec.AbsDelta,
			PctChange: fromNullFloat(rec.PctChange),
		}
	}
	return out, nil
}

// ReadFacts returns the fact shard of one month.
func (r *SQLiteRepository) ReadFacts(ctx context.Context, m core.Month) ([]core.OrderFact, error) {
	rows, err := r.queries.ListFactsByMonth(ctx, int64(m.Year), int64(m.Month))
	if err != nil {
		return nil, fmt.Errorf("list facts %s: %w", m, err)
	}
	out := make([]core.OrderFact, len(rows))
	for i, row := range rows {
		out[i] = core.OrderFact{
			OrderID:             row.OrderID,
			CustomerID:          row.CustomerID,
			PurchaseTS:          fromNullTime(row.PurchaseTS),
			DeliveredCustomerTS: fromNullTime(row.DeliveredCustomerTS),
			EstimatedDeliveryTS: fromNullTime(row.EstimatedDeliveryTS),
			CustomerState:       fromNullString(row.CustomerState),
			MainCategory:        row.MainCategory,
			PaymentType:         fromNullString(row.PaymentType),
			PaymentInstallments: fromNullInt(row.PaymentInstallments),
			ReviewScore:         fromNullInt(row.ReviewScore),
			AmountNet:           row.AmountNet,
			AmountGross:         row.AmountGross,
			Freight:             row.Freight,
			ItemsPerOrder:       int(row.ItemsPerOrder),
			DistinctSKUs:        int(row.DistinctSKUs),
			DeliveryDays:        fromNullFloat(row.DeliveryDays),
			DeliveredLate:       fromNullBool(row.DeliveredLate),
			Year:                int(row.Year),
			Month:               int(row.Month),
		}
	}
	return out, nil
}

// ReadSteps returns the waterfall rows stored for one month.
func (r *SQLiteRepository) ReadSteps(ctx context.Context, m core.Month) ([]StepRow, error) {
	rows, err := r.queries.ListStepsByMonth(ctx, int64(m.Year), int64(m.Month))
	if err != nil {
		return nil, fmt.Errorf("list steps %s: %w", m, err)
	}
	return rows, nil
}

// RecordRun implements report.RunRecorder.
func (r *SQLiteRepository) RecordRun(ctx context.Context, s report.Summary) error {
	if err := r.queries.InsertRun(ctx, RunRow{
		RunID:          s.Run.ID,
		StartedAt:      s.Run.StartedAt,
		FinishedAt:     s.FinishedAt,
		Facts:          int64(s.Facts),
		Months:         int64(s.Months),
		Steps:          int64(s.Steps),
		DrilldownRows:  int64(s.DrilldownRows),
		RecalcWarnings: int64(s.RecalcWarnings),
	}); err != nil {
		return fmt.Errorf("record run %s: %w", s.Run.ID, err)
	}
	return nil
}

// CountRuns returns the number of recorded runs.
func (r *SQLiteRepository) CountRuns(ctx context.Context) (int, error) {
	n, err := r.queries.CountRuns(ctx)
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return int(n), nil
}

func factRow(runID string, f core.OrderFact) FactRow {
	return FactRow{
		Year:                int64(f.Year),
		Month:               int64(f.Month),
		OrderID:             f.OrderID,
		RunID:               runID,
		CustomerID:          f.CustomerID,
		PurchaseTS:          toNullTime(f.PurchaseTS),
		DeliveredCustomerTS: toNullTime(f.DeliveredCustomerTS),
		EstimatedDeliveryTS: toNullTime(f.EstimatedDeliveryTS),
		CustomerState:       toNullString(f.CustomerState),
		MainCategory:        f.MainCategory,
		PaymentType:         toNullString(f.PaymentType),
		PaymentInstallments: toNullInt(f.PaymentInstallments),
		ReviewScore:         toNullInt(f.ReviewScore),
		AmountNet:           f.AmountNet,
		AmountGross:         f.AmountGross,
		Freight:             f.Freight,
		ItemsPerOrder:       int64(f.ItemsPerOrder),
		DistinctSKUs:        int64(f.DistinctSKUs),
		DeliveryDays:        toNullFloat(f.DeliveryDays),
		DeliveredLate:       toNullBool(f.DeliveredLate),
	}
}
