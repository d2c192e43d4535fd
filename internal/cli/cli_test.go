package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/session"
	"expenses/internal/store"
)

// testEnv points the driver at a fresh bolt file with static rates.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("EXPENSES_DATA_BACKEND", "bolt")
	t.Setenv("EXPENSES_BOLT_PATH", filepath.Join(dir, "expenses.bolt"))
	t.Setenv("EXPENSES_BASE_CURRENCY", "USD")
	t.Setenv("EXPENSES_REPORT_NAME", "Weekly Expense Report")
	t.Setenv("EXPENSES_RATES_SOURCE", "static")
	t.Setenv("EXPENSES_RATES_CACHE", "none")
	t.Setenv("EXPENSES_RATES_STRICT", "false")
	t.Setenv("EXPENSES_AMQP_URL", "")
	t.Setenv("EXPENSES_GOOGLE_SPREADSHEET_ID", "")
	t.Setenv("EXPENSES_LOG_LEVEL", "error")
	t.Setenv("EXPENSES_LOG_FORMAT", "text")
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := Run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), errOut.String(), err
}

var addedID = regexp.MustCompile(`Added expense (\d+)`)

func add(t *testing.T, args ...string) int64 {
	t.Helper()
	out, _, err := run(t, "", append([]string{"add"}, args...)...)
	require.NoError(t, err)
	m := addedID.FindStringSubmatch(out)
	require.Len(t, m, 2, "unexpected output %q", out)
	id, err := strconv.ParseInt(m[1], 10, 64)
	require.NoError(t, err)
	return id
}

func TestTotalAcrossCurrencies(t *testing.T) {
	testEnv(t)

	add(t, "--amount", "100", "--currency", "USD")
	add(t, "--amount", "50", "--currency", "EUR", "--category", "meals")

	out, _, err := run(t, "", "total")
	require.NoError(t, err)
	assert.Equal(t, "$158.82\n", out)

	out, _, err = run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Weekly Expense Report (base USD)")
	assert.Contains(t, out, "58.82")
	assert.Contains(t, out, "Meals")
	assert.Contains(t, out, "Total: $158.82")
}

func TestSetAndRemove(t *testing.T) {
	testEnv(t)
	id := add(t, "--description", "Taxi")
	sid := strconv.FormatInt(id, 10)

	out, _, err := run(t, "", "set", sid, "amount", "12.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated expense "+sid)

	_, _, err = run(t, "", "set", sid, "colour", "red")
	assert.ErrorIs(t, err, store.ErrInvalidField)

	out, _, err = run(t, "", "set", "999", "amount", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "No expense 999")

	out, _, err = run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "12.5")

	out, _, err = run(t, "", "rm", sid)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed expense "+sid)

	out, _, err = run(t, "", "rm", sid)
	require.NoError(t, err)
	assert.Contains(t, out, "No expense "+sid)

	_, _, err = run(t, "", "rm", "abc")
	assert.Error(t, err)
}

func TestAddRejectsUnknownCategory(t *testing.T) {
	testEnv(t)
	_, _, err := run(t, "", "add", "--category", "Spa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Business Meals"`)
}

func TestBaseAndName(t *testing.T) {
	testEnv(t)

	out, _, err := run(t, "", "base", "eur")
	require.NoError(t, err)
	assert.Contains(t, out, "Base currency set to EUR")

	out, _, err = run(t, "", "base")
	require.NoError(t, err)
	assert.Equal(t, "EUR\n", out)

	_, _, err = run(t, "", "base", "XXX")
	assert.Error(t, err)

	_, _, err = run(t, "", "name", "Trip", "to", "Rome")
	require.NoError(t, err)
	out, _, err = run(t, "", "name")
	require.NoError(t, err)
	assert.Equal(t, "Trip to Rome\n", out)
}

func TestExport(t *testing.T) {
	testEnv(t)
	add(t, "--amount", "10", "--description", "Lunch")
	_, _, err := run(t, "", "name", "Trip to Rome")
	require.NoError(t, err)

	out, _, err := run(t, "", "export", "--stdout")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Date,Category,Description,Amount,Currency,Amount in USD,Notes"))
	assert.Contains(t, out, "Lunch")

	dir := t.TempDir()
	out, _, err = run(t, "", "export", "--dir", dir)
	require.NoError(t, err)
	path := filepath.Join(dir, "Trip-to-Rome.csv")
	assert.Contains(t, out, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Lunch")
}

func TestReferenceCommands(t *testing.T) {
	testEnv(t)

	out, _, err := run(t, "", "currencies")
	require.NoError(t, err)
	assert.Contains(t, out, "JPY")
	assert.Contains(t, out, "Indian Rupee")

	out, _, err = run(t, "", "rates", "--refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Rates per 1 USD from static")
	assert.Contains(t, out, "EUR")

	out, _, err = run(t, "", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Records: 1")
}

func TestSheetsExport(t *testing.T) {
	testEnv(t)

	_, _, err := run(t, "", "sheets-export")
	assert.ErrorIs(t, err, session.ErrSheetsDisabled)

	out, _, err := run(t, "", "--sheets-dry-run", "sheets-export")
	require.NoError(t, err)
	assert.Contains(t, out, "Amount in USD")
	assert.Contains(t, out, "Exported to mem:1")
}

func TestWatchRequiresBroker(t *testing.T) {
	testEnv(t)
	_, _, err := run(t, "", "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestInvalidConfig(t *testing.T) {
	testEnv(t)
	_, _, err := run(t, "", "--data-backend", "sheets", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid data backend")

	_, _, err = run(t, "", "--env-file", filepath.Join(t.TempDir(), "missing.env"), "list")
	assert.Error(t, err)
}

func TestCommandLogsCarryCommandName(t *testing.T) {
	testEnv(t)
	_, errOut, err := run(t, "", "--log-level", "debug", "--log-format", "json", "total")
	require.NoError(t, err)
	assert.Contains(t, errOut, `"msg":"Running command"`)
	assert.Contains(t, errOut, `"command":"total"`)
	assert.Contains(t, errOut, `"component":"cli"`)
}

func TestDataBackendFlagListsBackends(t *testing.T) {
	out, _, err := run(t, "", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Storage backend: memory, bolt, sqlite")
}

func TestShell(t *testing.T) {
	testEnv(t)
	input := strings.Join([]string{
		`add --amount 5 --description "Taxi ride"`,
		`name 'Shell Report'`,
		``,
		`bogus`,
		`list`,
		`exit`,
		`total`,
	}, "\n")

	out, errOut, err := run(t, input, "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "Taxi ride")
	assert.Contains(t, out, "Shell Report (base USD)")
	assert.Contains(t, errOut, "Error:")

	out, _, err = run(t, "", "name")
	require.NoError(t, err)
	assert.Equal(t, "Shell Report\n", out)
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{line: "", want: nil},
		{line: "list", want: []string{"list"}},
		{line: "  set 1  amount 12 ", want: []string{"set", "1", "amount", "12"}},
		{line: `add --description "Hotel in Rome"`, want: []string{"add", "--description", "Hotel in Rome"}},
		{line: `name 'It''s'`, want: []string{"name", "Its"}},
		{line: `name Trip\ Rome`, want: []string{"name", "Trip Rome"}},
		{line: `set 1 notes ""`, want: []string{"set", "1", "notes", ""}},
		{line: `name "open`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := splitArgs(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
