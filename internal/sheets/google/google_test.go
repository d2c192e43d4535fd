package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"expenses/internal/core"
	ports "expenses/internal/sheets"
)

// fakeSheets keeps a grid of cells and answers like the values API: reads
// are projected onto the requested columns and trailing empty rows are
// dropped.
type fakeSheets struct {
	mu        sync.Mutex
	existing  [][]any
	gets      []string
	updates   []string
	written   [][]any
	inputOpt  string
	failGet   bool
	failWrite bool
}

func (f *fakeSheets) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if !strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/sheet-id/values/") {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		rng := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sheet-id/values/")

		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			f.gets = append(f.gets, rng)
			if f.failGet {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": f.read(rng)})
		case http.MethodPut:
			if f.failWrite {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad range"}}`))
				return
			}
			var body struct {
				Values [][]any `json:"values"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			f.updates = append(f.updates, rng)
			f.written = body.Values
			f.inputOpt = r.URL.Query().Get("valueInputOption")
			f.write(t, rng, body.Values)
			_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng})
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}
}

// read returns the grid limited to column A or A:G, without trailing
// empty cells or rows.
func (f *fakeSheets) read(rng string) [][]any {
	width := 7
	if strings.HasSuffix(rng, "!A:A") {
		width = 1
	}
	out := make([][]any, 0, len(f.existing))
	for _, row := range f.existing {
		if len(row) > width {
			row = row[:width]
		}
		for len(row) > 0 && row[len(row)-1] == "" {
			row = row[:len(row)-1]
		}
		out = append(out, row)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}

func (f *fakeSheets) write(t *testing.T, rng string, values [][]any) {
	cells := rng[strings.LastIndex(rng, "!")+1:]
	start, err := strconv.Atoi(strings.TrimPrefix(cells[:strings.Index(cells, ":")], "A"))
	if err != nil {
		t.Errorf("bad update range %q", rng)
		return
	}
	for len(f.existing) < start-1+len(values) {
		f.existing = append(f.existing, nil)
	}
	for i, row := range values {
		f.existing[start-1+i] = row
	}
}

func newTestClient(t *testing.T, f *fakeSheets, sheet string) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{
		SpreadsheetID: "sheet-id",
		SheetName:     sheet,
		HTTPClient:    srv.Client(),
		Endpoint:      srv.URL + "/",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c
}

func testReport() ports.Report {
	records := []core.Record{
		{ID: 1, Date: "2024-01-01", Category: core.CategoryMeals, Description: "Lunch", Amount: "20", Currency: "USD"},
	}
	return ports.NewReport("Q1 trip", "USD", records, core.EmptySnapshot("USD"))
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet ID")
	}
	if err.Error() != "missing spreadsheet ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "id"})
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{
		SpreadsheetID:   "id",
		CredentialsFile: filepath.Join(t.TempDir(), "missing.json"),
	})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Errorf("expected read error, got: %v", err)
	}
}

func TestNew_InvalidCredentialsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte("invalid-json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := New(context.Background(), Config{SpreadsheetID: "id", CredentialsFile: path})
	if err == nil {
		t.Fatal("expected error with invalid JSON credentials")
	}
}

func TestNew_DefaultSheetName(t *testing.T) {
	c := newTestClient(t, &fakeSheets{}, "  ")
	if c.sheetName != "Expenses" {
		t.Errorf("sheetName = %q, want Expenses", c.sheetName)
	}
}

func TestExportReport_EmptySheet(t *testing.T) {
	f := &fakeSheets{}
	c := newTestClient(t, f, "Expenses")

	ref, err := c.ExportReport(context.Background(), testReport())
	if err != nil {
		t.Fatalf("ExportReport() error = %v", err)
	}
	if ref != "Expenses!A1:G3" {
		t.Errorf("ref = %q, want Expenses!A1:G3", ref)
	}
	if len(f.gets) != 1 || f.gets[0] != "Expenses!A:G" {
		t.Errorf("gets = %v", f.gets)
	}
	if f.inputOpt != "RAW" {
		t.Errorf("valueInputOption = %q", f.inputOpt)
	}
	if len(f.written) != 3 {
		t.Fatalf("wrote %d rows, want 3", len(f.written))
	}
	if f.written[0][0] != "Q1 trip" || f.written[0][1] != "Base: USD" || f.written[0][2] != "2024-01-02T03:04:05Z" {
		t.Errorf("title row = %v", f.written[0])
	}
	if f.written[1][5] != "Amount in USD" {
		t.Errorf("header row = %v", f.written[1])
	}
	if f.written[2][0] != "2024-01-01" || f.written[2][5] != "20.00" {
		t.Errorf("data row = %v", f.written[2])
	}
}

func TestExportReport_AppendsAfterExistingRows(t *testing.T) {
	f := &fakeSheets{existing: [][]any{{"a"}, {"b"}, {"c"}}}
	c := newTestClient(t, f, "Travel Q1")

	ref, err := c.ExportReport(context.Background(), testReport())
	if err != nil {
		t.Fatalf("ExportReport() error = %v", err)
	}
	if ref != "'Travel Q1'!A5:G7" {
		t.Errorf("ref = %q, want 'Travel Q1'!A5:G7", ref)
	}
}

func TestExportReport_UndatedTrailingRowsAreNotOverwritten(t *testing.T) {
	f := &fakeSheets{}
	c := newTestClient(t, f, "Expenses")
	records := []core.Record{
		{ID: 1, Date: "2024-01-01", Description: "Hotel", Amount: "120", Currency: "USD"},
		{ID: 2, Description: "Parking", Amount: "5", Currency: "USD"},
		{ID: 3, Currency: "USD"},
	}
	report := ports.NewReport("Trip", "USD", records, core.EmptySnapshot("USD"))

	first, err := c.ExportReport(context.Background(), report)
	if err != nil {
		t.Fatalf("first ExportReport() error = %v", err)
	}
	second, err := c.ExportReport(context.Background(), report)
	if err != nil {
		t.Fatalf("second ExportReport() error = %v", err)
	}

	if first != "Expenses!A1:G5" || second != "Expenses!A7:G11" {
		t.Errorf("ranges = %s, %s; want Expenses!A1:G5, Expenses!A7:G11", first, second)
	}
	if got := f.existing[3][2]; got != "Parking" {
		t.Errorf("row 4 description = %v, want Parking", got)
	}
	if got := f.existing[4][4]; got != "USD" {
		t.Errorf("row 5 currency = %v, want the first report's blank record", got)
	}
}

func TestExportReport_WritesFormulaTextVerbatim(t *testing.T) {
	f := &fakeSheets{}
	c := newTestClient(t, f, "Expenses")
	records := []core.Record{{ID: 1, Description: `=IMPORTXML("http://x","//a")`, Amount: "1", Currency: "USD"}}

	if _, err := c.ExportReport(context.Background(), ports.NewReport("R", "USD", records, core.EmptySnapshot("USD"))); err != nil {
		t.Fatalf("ExportReport() error = %v", err)
	}
	if f.inputOpt != "RAW" {
		t.Errorf("valueInputOption = %q, want RAW", f.inputOpt)
	}
	if got := f.written[2][2]; got != `=IMPORTXML("http://x","//a")` {
		t.Errorf("description cell = %v", got)
	}
}

func TestExportReport_Errors(t *testing.T) {
	t.Run("read failure", func(t *testing.T) {
		c := newTestClient(t, &fakeSheets{failGet: true}, "Expenses")
		_, err := c.ExportReport(context.Background(), testReport())
		if err == nil || !strings.Contains(err.Error(), "failed to get sheet dimensions") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("write failure", func(t *testing.T) {
		c := newTestClient(t, &fakeSheets{failWrite: true}, "Expenses")
		_, err := c.ExportReport(context.Background(), testReport())
		if err == nil || !strings.Contains(err.Error(), "failed to update") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("no header", func(t *testing.T) {
		c := newTestClient(t, &fakeSheets{}, "Expenses")
		if _, err := c.ExportReport(context.Background(), ports.Report{}); err == nil {
			t.Error("expected error for empty report")
		}
	})

	t.Run("uninitialized service", func(t *testing.T) {
		c := &Client{spreadsheetID: "test"}
		if _, err := c.ExportReport(context.Background(), testReport()); err == nil {
			t.Error("expected error with nil service")
		}
	})
}

func TestNextRow(t *testing.T) {
	tests := map[int]int{0: 1, 1: 3, 10: 12}
	for used, want := range tests {
		if got := nextRow(used); got != want {
			t.Errorf("nextRow(%d) = %d, want %d", used, got, want)
		}
	}
}

func TestQuoteSheet(t *testing.T) {
	tests := map[string]string{
		"Expenses":   "Expenses",
		"Travel Q1":  "'Travel Q1'",
		"Bob's":      "'Bob''s'",
		"2024-trips": "'2024-trips'",
	}
	for in, want := range tests {
		if got := quoteSheet(in); got != want {
			t.Errorf("quoteSheet(%q) = %q, want %q", in, got, want)
		}
	}
}
