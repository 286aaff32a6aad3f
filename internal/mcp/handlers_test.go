package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"issuemetrics/internal/config"
	"issuemetrics/internal/metrics"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.April, 30, 12, 0, 0, 0, time.UTC)

func testRecords() []metrics.Record {
	var records []metrics.Record
	add := func(day int, lead float64) {
		completed := time.Date(2024, time.April, day, 9, 0, 0, 0, time.UTC)
		x := float64(len(records) + 1)
		records = append(records, metrics.Record{
			IssueNumber: len(records) + 1,
			Title:       "change",
			CreatedAt:   completed.Add(-48 * time.Hour),
			CompletedAt: &completed,
			Metrics: map[metrics.Key]metrics.Result{
				metrics.LeadTime:     metrics.Ok(lead),
				metrics.CycleTime:    metrics.Ok(2*x + 1),
				metrics.ReviewTime:   metrics.Ok(x*x + 3),
				metrics.CommentCount: metrics.Ok(float64(day % 5)),
				metrics.Complexity:   metrics.Ok(x),
				metrics.PlanVsActual: metrics.Ok(1),
			},
		})
	}
	for i, v := range []float64{10, 11, 9, 10, 10, 11, 9, 10} {
		add(2+i, v)
	}
	for i, v := range []float64{20, 21, 19, 20} {
		add(25+i, v)
	}
	return records
}

// connect starts the server over in-memory transports and returns a connected client session.
func connect(t *testing.T, store *metrics.Store, cfg *config.AppConfig) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	s := NewServer(store, cfg)
	s.now = func() time.Time { return testNow }

	serverTransport, clientTransport := sdk.NewInMemoryTransports()
	serverSession, err := s.build().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func newFixture(t *testing.T) (*metrics.Store, *config.AppConfig) {
	t.Helper()
	store := metrics.NewStore()
	store.Append(testRecords())
	cfg := &config.AppConfig{
		RecordsFile: filepath.Join(t.TempDir(), "records.jsonl"),
		Profile:     config.DefaultProfile(),
	}
	return store, cfg
}

func callJSON(t *testing.T, session *sdk.ClientSession, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)

	text, ok := res.Content[0].(*sdk.TextContent)
	require.True(t, ok, "expected text content")
	if res.IsError {
		return map[string]any{"error": text.Text}, true
	}

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out, false
}

func TestServer_ListsTools(t *testing.T) {
	store, cfg := newFixture(t)
	session := connect(t, store, cfg)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"describe_metrics", "correlate_metrics", "fit_regression", "detect_anomalies", "reload_records"}, names)
}

func TestDescribeMetrics(t *testing.T) {
	store, cfg := newFixture(t)
	session := connect(t, store, cfg)

	out, isErr := callJSON(t, session, "describe_metrics", map[string]any{
		"metrics": []string{"leadTime"},
		"since":   "2024-04-20",
		"charts":  true,
	})
	require.False(t, isErr, "%v", out)

	assert.Equal(t, 4.0, out["recordCount"])
	statistics := out["statistics"].(map[string]any)
	require.Len(t, statistics, 1)
	summary := statistics["leadTime"].(map[string]any)["summary"].(map[string]any)
	assert.Equal(t, 20.0, summary["mean"])
	assert.Len(t, out["charts"], 1)

	out, isErr = callJSON(t, session, "describe_metrics", map[string]any{"metrics": []string{"velocity"}})
	assert.True(t, isErr)
	assert.Contains(t, out["error"], "unknown metric key")
}

func TestCorrelateMetrics(t *testing.T) {
	store, cfg := newFixture(t)
	session := connect(t, store, cfg)

	out, isErr := callJSON(t, session, "correlate_metrics", map[string]any{"method": "pearson"})
	require.False(t, isErr, "%v", out)
	matrices := out["matrices"].(map[string]any)
	assert.Len(t, matrices, 1)
	cell := matrices["pearson"].(map[string]any)["cycleTime"].(map[string]any)["complexity"].(map[string]any)
	assert.InDelta(t, 1.0, cell["coefficient"], 1e-9)
	assert.Nil(t, matrices["pearson"].(map[string]any)["planVsActual"].(map[string]any)["planVsActual"].(map[string]any)["coefficient"])

	out, isErr = callJSON(t, session, "correlate_metrics", map[string]any{"target": "complexity", "top": 1, "method": "spearman"})
	require.False(t, isErr, "%v", out)
	factors := out["factors"].(map[string]any)["spearman"].([]any)
	require.Len(t, factors, 1)

	_, isErr = callJSON(t, session, "correlate_metrics", map[string]any{"method": "kendall"})
	assert.True(t, isErr)
}

func TestFitRegression(t *testing.T) {
	store, cfg := newFixture(t)
	session := connect(t, store, cfg)

	out, isErr := callJSON(t, session, "fit_regression", map[string]any{
		"target":     "cycleTime",
		"predictors": []string{"complexity"},
	})
	require.False(t, isErr, "%v", out)
	coefficients := out["coefficients"].(map[string]any)
	assert.InDelta(t, 2.0, coefficients["complexity"], 1e-6)
	assert.InDelta(t, 1.0, coefficients["intercept"], 1e-6)

	out, isErr = callJSON(t, session, "fit_regression", map[string]any{
		"target":     "cycleTime",
		"predictors": []string{"cycleTime"},
	})
	assert.True(t, isErr)
	assert.Contains(t, out["error"], "invalid configuration")

	out, isErr = callJSON(t, session, "fit_regression", map[string]any{
		"target":     "leadTime",
		"predictors": []string{"cycleTime", "complexity"},
	})
	assert.True(t, isErr)
	assert.Contains(t, out["error"], "singular matrix")
}

func TestDetectAnomalies(t *testing.T) {
	store, cfg := newFixture(t)
	session := connect(t, store, cfg)

	out, isErr := callJSON(t, session, "detect_anomalies", map[string]any{
		"recent_days":   7,
		"baseline_days": 28,
		"charts":        true,
	})
	require.False(t, isErr, "%v", out)
	assert.Contains(t, out["anomalousMetrics"], "leadTime")
	assert.NotEmpty(t, out["charts"])

	result := out["result"].(map[string]any)
	lead := result["metrics"].(map[string]any)["leadTime"].(map[string]any)
	assert.Equal(t, "increase", lead["direction"])
	assert.Equal(t, 8.0, lead["baselineCount"])

	_, isErr = callJSON(t, session, "detect_anomalies", map[string]any{"reference_date": "30/04/2024"})
	assert.True(t, isErr)
}

func TestReloadRecords(t *testing.T) {
	store, cfg := newFixture(t)

	extra := metrics.NewStore()
	completed := time.Date(2024, time.April, 29, 0, 0, 0, 0, time.UTC)
	extra.Append([]metrics.Record{
		{IssueNumber: 1, Title: "replaced", CreatedAt: completed, CompletedAt: &completed, Metrics: map[metrics.Key]metrics.Result{metrics.LeadTime: metrics.Ok(1)}},
		{IssueNumber: 500, Title: "new", CreatedAt: completed, CompletedAt: &completed, Metrics: map[metrics.Key]metrics.Result{metrics.LeadTime: metrics.Ok(2)}},
	})
	require.NoError(t, extra.Save(cfg.RecordsFile))

	session := connect(t, store, cfg)
	out, isErr := callJSON(t, session, "reload_records", map[string]any{})
	require.False(t, isErr, "%v", out)
	assert.Equal(t, 2.0, out["loaded"])
	assert.Equal(t, 1.0, out["added"])
	assert.Equal(t, 1.0, out["replaced"])
	assert.Equal(t, 13.0, out["total"])
	assert.Equal(t, cfg.RecordsFile, out["savedTo"])

	persisted := metrics.NewStore()
	require.NoError(t, persisted.Load(cfg.RecordsFile))
	assert.Equal(t, 13, persisted.Count())
	stored := persisted.Records()
	assert.Equal(t, "replaced", stored[0].Title)

	dir := filepath.Join(t.TempDir(), "dir.jsonl")
	require.NoError(t, os.Mkdir(dir, 0755))
	_, isErr = callJSON(t, session, "reload_records", map[string]any{"path": dir})
	assert.True(t, isErr)
	assert.Equal(t, 13, store.Count())
}

func TestReloadRecords_FromOtherFilePersistsToRecordsFile(t *testing.T) {
	store, cfg := newFixture(t)

	extra := metrics.NewStore()
	completed := time.Date(2024, time.April, 29, 0, 0, 0, 0, time.UTC)
	extra.Append([]metrics.Record{
		{IssueNumber: 900, Title: "imported", CreatedAt: completed, CompletedAt: &completed, Metrics: map[metrics.Key]metrics.Result{metrics.LeadTime: metrics.Ok(4)}},
	})
	importPath := filepath.Join(t.TempDir(), "import.jsonl")
	require.NoError(t, extra.Save(importPath))

	session := connect(t, store, cfg)
	out, isErr := callJSON(t, session, "reload_records", map[string]any{"path": importPath})
	require.False(t, isErr, "%v", out)
	assert.Equal(t, 1.0, out["added"])

	restarted := metrics.NewStore()
	require.NoError(t, restarted.Load(cfg.RecordsFile))
	assert.Equal(t, 13, restarted.Count())

	records := restarted.Records()
	assert.Equal(t, 900, records[len(records)-1].IssueNumber)
}
