package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"gmvbridge/internal/core"
	"gmvbridge/internal/report"
)

type call struct {
	method string
	path   string
	body   string
}

// fakeSheets records every API call and answers with an empty object, except
// for the spreadsheet lookup which reports one existing tab.
func fakeSheets(t *testing.T) (*gsheet.Service, func() []call) {
	t.Helper()
	var mu sync.Mutex
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, call{method: r.Method, path: r.URL.Path, body: string(b)})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"sheets": []any{map[string]any{"properties": map[string]any{"title": SummaryTab}}},
			})
			return
		}
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, func() []call {
		mu.Lock()
		defer mu.Unlock()
		return append([]call(nil), calls...)
	}
}

func TestFlushCreatesMissingTabsAndRewritesValues(t *testing.T) {
	svc, calls := fakeSheets(t)
	c := NewWithService(svc, "sheet-1", nil)
	ctx := context.Background()
	feb := core.Month{Year: 2017, Month: 2}

	_ = c.WriteFacts(ctx, report.Run{ID: "r"}, []core.OrderFact{
		{OrderID: "a", AmountNet: 10, ItemsPerOrder: 1, Year: 2017, Month: 2},
		{OrderID: "b", AmountNet: 30, ItemsPerOrder: 3, Year: 2017, Month: 2},
	})
	_ = c.WriteWaterfall(ctx, report.Run{ID: "r"}, []core.WaterfallStep{
		{Family: core.FamilyPriceBasket, Month: feb, SortKey: 10, Stage: "Start AOV", Component: "start", Amount: 20, IsTotal: true},
		{Family: core.FamilyVolumeAOV, Month: feb, SortKey: 10, Stage: "Start GMV", Component: "start", Amount: 40, IsTotal: true},
	})
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got := calls()
	// get, batchUpdate, then clear+update for three tabs
	if len(got) != 8 {
		t.Fatalf("expected 8 calls, got %d: %+v", len(got), got)
	}
	if got[0].method != http.MethodGet || !strings.HasSuffix(got[0].path, "/spreadsheets/sheet-1") {
		t.Fatalf("first call should read the spreadsheet: %+v", got[0])
	}
	if !strings.HasSuffix(got[1].path, ":batchUpdate") || strings.Contains(got[1].body, SummaryTab) {
		t.Fatalf("only missing tabs should be added: %+v", got[1])
	}
	if !strings.Contains(got[1].body, WaterfallTab) || !strings.Contains(got[1].body, DrilldownTab) {
		t.Fatalf("missing tabs not requested: %s", got[1].body)
	}

	summary := got[3]
	if summary.method != http.MethodPut || !strings.Contains(summary.body, `"2017-02",2,40,4,20`) {
		t.Fatalf("unexpected summary update: %+v", summary)
	}
	waterfall := got[5].body
	if strings.Index(waterfall, string(core.FamilyVolumeAOV)) > strings.Index(waterfall, string(core.FamilyPriceBasket)) {
		t.Fatalf("waterfall rows should follow family order: %s", waterfall)
	}
}

func TestFlushWithoutService(t *testing.T) {
	c := NewWithService(nil, "sheet-1", nil)
	if err := c.Flush(context.Background()); err == nil {
		t.Fatalf("expected error without a service")
	}
}

func TestNewFromEnvMissingSpreadsheetID(t *testing.T) {
	if _, err := NewFromEnv(context.Background(), "  ", nil); err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

// clearCredentials unsets every credential variable for the test's duration.
func clearCredentials(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS",
		EnvOAuthClientJSON, EnvOAuthClientFile, EnvOAuthTokenJSON, EnvOAuthTokenFile,
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestNewFromEnvMissingCredentials(t *testing.T) {
	clearCredentials(t)
	_, err := NewFromEnv(context.Background(), "sheet-1", nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}
