// Package parquet writes run output as Parquet files partitioned by month,
// laid out for query engines that prune on year=/month= directories:
//
//	<dir>/facts/year=2017/month=11/part-0.parquet
//	<dir>/facts/month=unknown/part-0.parquet
//	<dir>/waterfall/year=2017/month=11/part-0.parquet
//	<dir>/drilldown/dimension=category/metric=unit_price/2017-10_2017-11.parquet
//
// Every shard is written to a temporary file and renamed into place, so a
// rerun replaces a month without readers seeing a partial file.
package parquet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	pqformat "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"golang.org/x/sync/errgroup"

	"gmvbridge/internal/core"
	applog "gmvbridge/internal/log"
	"gmvbridge/internal/report"
)

// Dataset directories under the sink root.
const (
	FactsDataset     = "facts"
	WaterfallDataset = "waterfall"
	DrilldownDataset = "drilldown"

	partFile = "part-0.parquet"
)

var _ report.Writer = (*Sink)(nil)

type Sink struct {
	dir          string
	shardWriters int
	logger       *applog.Logger
}

// New creates a sink rooted at dir. shardWriters bounds how many month
// shards are written at once.
func New(dir string, shardWriters int, logger *applog.Logger) *Sink {
	if shardWriters < 1 {
		shardWriters = 1
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Sink{
		dir:          dir,
		shardWriters: shardWriters,
		logger:       logger.WithComponent(applog.ComponentReport),
	}
}

// ShardPath returns the file holding one month of a dataset. Rows without a
// month live under month=unknown.
func (s *Sink) ShardPath(dataset string, m core.Month) string {
	if m.IsZero() {
		return filepath.Join(s.dir, dataset, "month=unknown", partFile)
	}
	return filepath.Join(s.dir, dataset,
		fmt.Sprintf("year=%04d", m.Year),
		fmt.Sprintf("month=%02d", m.Month),
		partFile)
}

// DrilldownPath returns the file holding one drill-down comparison.
func (s *Sink) DrilldownPath(dim core.Dimension, metric core.DrilldownMetric, a, b core.Month) string {
	return filepath.Join(s.dir, DrilldownDataset,
		"dimension="+dim.String(),
		"metric="+string(metric),
		a.String()+"_"+b.String()+".parquet")
}

func (s *Sink) WriteFacts(ctx context.Context, run report.Run, facts []core.OrderFact) error {
	shards := report.ShardFacts(facts)
	err := writeShards(ctx, s.shardWriters, FactsDataset, shards, func(m core.Month, rows []core.OrderFact) error {
		out := make([]factRow, len(rows))
		for i, f := range rows {
			out[i] = newFactRow(run.ID, f)
		}
		return writeFile(s.ShardPath(FactsDataset, m), out)
	})
	if err != nil {
		return fmt.Errorf("write fact shards: %w", err)
	}
	s.logger.InfoContext(ctx, "Wrote parquet fact shards",
		applog.FieldRunID, run.ID,
		applog.FieldPath, filepath.Join(s.dir, FactsDataset),
		"shards", len(shards),
		applog.FieldRows, len(facts))
	return nil
}

func (s *Sink) WriteWaterfall(ctx context.Context, run report.Run, steps []core.WaterfallStep) error {
	shards := report.ShardSteps(steps)
	err := writeShards(ctx, s.shardWriters, WaterfallDataset, shards, func(m core.Month, rows []core.WaterfallStep) error {
		out := make([]stepRow, len(rows))
		for i, st := range rows {
			out[i] = newStepRow(run.ID, st)
		}
		return writeFile(s.ShardPath(WaterfallDataset, m), out)
	})
	if err != nil {
		return fmt.Errorf("write waterfall shards: %w", err)
	}
	s.logger.InfoContext(ctx, "Wrote parquet waterfall shards",
		applog.FieldRunID, run.ID,
		"shards", len(shards),
		applog.FieldRows, len(steps))
	return nil
}

func (s *Sink) WriteDrilldown(ctx context.Context, run report.Run, d report.Drilldown) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := make([]drilldownRow, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = newDrilldownRow(run.ID, d, i+1, r)
	}
	path := s.DrilldownPath(d.Dimension, d.Metric, d.MonthA, d.MonthB)
	if err := writeFile(path, out); err != nil {
		return fmt.Errorf("write drilldown: %w", err)
	}
	s.logger.DebugContext(ctx, "Wrote parquet drilldown", applog.FieldPath, path, applog.FieldRows, len(out))
	return nil
}

// writeShards writes one file per month with bounded concurrency. Shards
// share nothing, so no ordering is needed between them.
func writeShards[T any](ctx context.Context, limit int, dataset string, shards map[core.Month][]T, write func(core.Month, []T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, m := range report.SortedMonths(shards) {
		m := m
		rows := shards[m]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := write(m, rows); err != nil {
				return fmt.Errorf("%s %s: %w", dataset, m, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// writeFile replaces path with a Snappy-compressed file holding rows.
func writeFile[T any](path string, rows []T) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create shard directory: %w", err)
	}
	tmp := path + ".tmp"
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(T), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = pqformat.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			fw.Close()
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finish parquet file: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
