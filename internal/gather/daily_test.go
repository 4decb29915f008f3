package gather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markqiu/openbb-tushare/internal/provider"
	"github.com/markqiu/openbb-tushare/internal/store"
)

type staticSymbols []string

func (s staticSymbols) Load(context.Context, string, bool) ([]store.Row, error) {
	rows := make([]store.Row, 0, len(s))
	for _, code := range s {
		rows = append(rows, store.Row{"ts_code": code})
	}
	return rows, nil
}

type recordingEndpoint struct {
	mu    sync.Mutex
	errs  map[string]error
	calls map[string]provider.Params
	creds provider.Credentials
}

func (e *recordingEndpoint) Name() string        { return "EquityHistorical" }
func (e *recordingEndpoint) Description() string { return "" }

func (e *recordingEndpoint) Fetch(_ context.Context, p provider.Params, creds provider.Credentials) ([]provider.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sym := p["symbol"].(string)
	if e.calls == nil {
		e.calls = map[string]provider.Params{}
	}
	e.calls[sym] = p
	e.creds = creds
	return nil, e.errs[sym]
}

func (e *recordingEndpoint) reset(errs map[string]error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = errs
	e.calls = nil
}

func TestBarGathererRun(t *testing.T) {
	dir := t.TempDir()
	endpoint := &recordingEndpoint{errs: map[string]error{
		"000001.SZ": provider.ErrEmptyData,
		"600036.SH": errors.New("tushare daily: code 40203: quota"),
	}}
	cfg := BarGathererConfig{
		Token:   "tok",
		Dates:   DateRange{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)},
		DataDir: dir,
		Workers: 2,
	}
	g := NewBarGatherer(staticSymbols{"600000.SH", "000001.SZ", "600036.SH"}, endpoint, cfg)
	assert.Equal(t, "cn-daily-bars", g.Name())

	// First run: one failure keeps the range open.
	err := g.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 symbols failed")
	require.Len(t, endpoint.calls, 3)
	p := endpoint.calls["600000.SH"]
	assert.Equal(t, "2024-01-01", p["start_date"])
	assert.Equal(t, "2024-06-28", p["end_date"])
	assert.Equal(t, "daily", p["period"])
	assert.Equal(t, "tok", endpoint.creds.APIKey())

	// Second run: the empty symbol is skipped and the range completes.
	endpoint.reset(nil)
	require.NoError(t, NewBarGatherer(staticSymbols{"600000.SH", "000001.SZ", "600036.SH"}, endpoint, cfg).Run(context.Background()))
	assert.Len(t, endpoint.calls, 2)
	assert.NotContains(t, endpoint.calls, "000001.SZ")

	// Third run: nothing left to do.
	endpoint.reset(nil)
	require.NoError(t, g.Run(context.Background()))
	assert.Empty(t, endpoint.calls)
}

func TestBarGathererCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewBarGatherer(staticSymbols{"600000.SH"}, &recordingEndpoint{}, BarGathererConfig{DataDir: t.TempDir()})

	assert.ErrorIs(t, g.Run(ctx), context.Canceled)
}

func TestProgressTrackerPersists(t *testing.T) {
	dir := t.TempDir()
	pt, err := newProgressTracker(dir)
	require.NoError(t, err)
	require.NoError(t, pt.MarkEmpty("830799.BJ"))
	require.NoError(t, pt.MarkEmpty("830799.BJ"))
	require.NoError(t, pt.MarkCompleted("20240101-20240628"))
	require.NoError(t, pt.Close())

	reopened, err := newProgressTracker(dir)
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.IsTriedEmpty("830799.BJ"))
	assert.False(t, reopened.IsTriedEmpty("600000.SH"))
	assert.True(t, reopened.IsCompleted("20240101-20240628"))
	assert.False(t, reopened.IsCompleted("20240101-20240629"))
}
