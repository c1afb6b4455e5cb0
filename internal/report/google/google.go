// Package google publishes run output to a Google Sheets dashboard.
//
// Sheets has a hard cell limit, so order facts are summarized per month
// rather than exported row by row. Waterfalls and drill-downs are written in
// full. Tabs are created on first use and fully rewritten on every flush.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"gmvbridge/internal/core"
	applog "gmvbridge/internal/log"
	"gmvbridge/internal/report"
)

// Tab names.
const (
	SummaryTab   = "Monthly"
	WaterfallTab = "Waterfall"
	DrilldownTab = "Drilldown"
)

var (
	_ report.Writer  = (*Client)(nil)
	_ report.Flusher = (*Client)(nil)
)

type monthTotals struct {
	orders int
	gmv    float64
	items  int
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *applog.Logger

	mu         sync.Mutex
	totals     map[core.Month]monthTotals
	steps      map[core.Month][]core.WaterfallStep
	drilldowns []report.Drilldown
}

// NewFromEnv creates a dashboard client for spreadsheetID. An OAuth user
// token (see oauth.go) is preferred; otherwise service account credentials
// come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context, spreadsheetID string, logger *applog.Logger) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	var opts []goption.ClientOption
	ts, err := oauthTokenSource(ctx)
	switch {
	case err == nil:
		opts = append(opts, goption.WithTokenSource(ts))
	case !errors.Is(err, errNoOAuth):
		return nil, err
	}
	svc, err := newSheetsService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID string, logger *applog.Logger) *Client {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		logger:        logger.WithComponent(applog.ComponentReport),
		totals:        make(map[core.Month]monthTotals),
		steps:         make(map[core.Month][]core.WaterfallStep),
	}
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials unless opts already carry a token source.
func newSheetsService(ctx context.Context, opts ...goption.ClientOption) (*gsheet.Service, error) {
	if len(opts) > 0 {
		service, err := gsheet.NewService(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return service, nil
	}
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	opts = append([]goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)
	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) WriteFacts(_ context.Context, _ report.Run, facts []core.OrderFact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for m, shard := range report.ShardFacts(facts) {
		var t monthTotals
		for _, f := range shard {
			t.orders++
			t.gmv += f.AmountNet
			t.items += f.ItemsPerOrder
		}
		c.totals[m] = t
	}
	return nil
}

func (c *Client) WriteWaterfall(_ context.Context, _ report.Run, steps []core.WaterfallStep) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for m, shard := range report.ShardSteps(steps) {
		c.steps[m] = shard
	}
	return nil
}

func (c *Client) WriteDrilldown(_ context.Context, _ report.Run, d report.Drilldown) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, old := range c.drilldowns {
		if old.Dimension == d.Dimension && old.Metric == d.Metric && old.MonthA == d.MonthA && old.MonthB == d.MonthB {
			c.drilldowns[i] = d
			return nil
		}
	}
	c.drilldowns = append(c.drilldowns, d)
	return nil
}

// Flush rewrites every dashboard tab.
func (c *Client) Flush(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	tabs := map[string][][]interface{}{
		SummaryTab:   c.summaryValues(),
		WaterfallTab: c.waterfallValues(),
		DrilldownTab: c.drilldownValues(),
	}
	c.mu.Unlock()

	if err := c.ensureTabs(ctx, SummaryTab, WaterfallTab, DrilldownTab); err != nil {
		return err
	}
	for _, tab := range []string{SummaryTab, WaterfallTab, DrilldownTab} {
		if err := c.replaceTab(ctx, tab, tabs[tab]); err != nil {
			return err
		}
	}
	c.logger.InfoContext(ctx, "Dashboard updated",
		"spreadsheet_id", c.spreadsheetID,
		applog.FieldRows, len(tabs[WaterfallTab])-1)
	return nil
}

// ensureTabs adds the tabs missing from the spreadsheet in one batch.
func (c *Client) ensureTabs(ctx context.Context, names ...string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	have := make(map[string]bool, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			have[sh.Properties.Title] = true
		}
	}
	var reqs []*gsheet.Request
	for _, n := range names {
		if !have[n] {
			reqs = append(reqs, &gsheet.Request{AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: n}}})
		}
	}
	if len(reqs) == 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add tabs: %w", err)
	}
	return nil
}

func (c *Client) replaceTab(ctx context.Context, tab string, values [][]interface{}) error {
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, tab+"!A:Z", &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, tab+"!A1", vr).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", tab, err)
	}
	return nil
}

func (c *Client) summaryValues() [][]interface{} {
	out := [][]interface{}{{"month", "orders", "gmv", "items", "aov"}}
	for _, m := range report.SortedMonths(c.totals) {
		t := c.totals[m]
		aov := interface{}("")
		if r := core.Ratio(t.gmv, float64(t.orders)); r != nil {
			aov = *r
		}
		out = append(out, []interface{}{report.MonthLabel(m), t.orders, t.gmv, t.items, aov})
	}
	return out
}

func (c *Client) waterfallValues() [][]interface{} {
	var steps []core.WaterfallStep
	for _, m := range report.SortedMonths(c.steps) {
		steps = append(steps, c.steps[m]...)
	}
	familyRank := make(map[core.Family]int)
	for i, f := range core.Families() {
		familyRank[f] = i
	}
	sort.SliceStable(steps, func(i, j int) bool {
		a, b := steps[i], steps[j]
		if a.Family != b.Family {
			return familyRank[a.Family] < familyRank[b.Family]
		}
		if a.Dimension != b.Dimension {
			return a.Dimension < b.Dimension
		}
		return a.SortKey < b.SortKey
	})

	out := [][]interface{}{{"family", "dimension", "month", "month_index", "sort_key", "stage", "component", "amount", "is_total"}}
	for _, s := range steps {
		out = append(out, []interface{}{
			string(s.Family), string(s.Dimension), s.Month.String(), s.MonthIndex, s.SortKey,
			s.Stage, s.Component, s.Amount, s.IsTotal,
		})
	}
	return out
}

func (c *Client) drilldownValues() [][]interface{} {
	out := [][]interface{}{{"dimension", "metric", "month_a", "month_b", "rank", "segment", "metric_a", "metric_b", "delta", "abs_delta", "pct_change"}}
	for _, d := range c.drilldowns {
		for i, r := range d.Rows {
			pct := interface{}("")
			if r.PctChange != nil {
				pct = *r.PctChange
			}
			out = append(out, []interface{}{
				string(d.Dimension), string(d.Metric), d.MonthA.String(), d.MonthB.String(), i + 1,
				r.Segment, r.MetricA, r.MetricB, r.Delta, r.AbsDelta, pct,
			})
		}
	}
	return out
}
