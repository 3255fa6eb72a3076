package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/metrics"
	"tradesim/internal/model"
	sqlitestore "tradesim/internal/store/sqlite"
)

func readAll(t *testing.T, data string, tf model.Timeframe) ([]model.Candle, error) {
	t.Helper()
	ch := make(chan model.Candle, 100)
	_, err := readCSVCandles(context.Background(), strings.NewReader(data), tf, ch)
	close(ch)
	var out []model.Candle
	for c := range ch {
		out = append(out, c)
	}
	return out, err
}

func TestParseCandleTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC).UnixNano()
	for _, s := range []string{"1709296200", "2024-03-01T12:30:00Z", "2024-03-01 12:30:00", "2024-03-01 12:30"} {
		got, err := parseCandleTime(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}
	_, err := parseCandleTime("March 1st")
	assert.Error(t, err)
}

func TestReadCSVCandles(t *testing.T) {
	candles, err := readAll(t, `time,open,high,low,close,volume
2024-03-01 00:00,1.1000,1.1010,1.0990,1.1005,120
2024-03-01 00:05,1.1005,1.1020,1.1000,1.1015,80
`, model.M5)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	c := candles[1]
	assert.Equal(t, model.M5, c.Timeframe)
	assert.Equal(t, c.OpenTime+int64(5*time.Minute), c.CloseTime)
	assert.Equal(t, "1.102", c.High.String())
	assert.True(t, c.IsComplete)
}

func TestReadCSVCandles_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"short row", "2024-03-01,1,1,1\n", "fields"},
		{"bad price", "2024-03-01,1,x,1,1\n", "column 3"},
		{"high below low", "2024-03-01,1,0.9,1.1,1\n", "invalid candle"},
		{"overlap", "2024-03-01 00:00,1,1,1,1\n2024-03-01 00:02,1,1,1,1\n", "overlaps"},
		{"bad time after header", "time,o,h,l,c\nsoon,1,1,1,1\n", "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readAll(t, tt.data, model.M5)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := readAll(t, "2024-03-01,1,1,1,1\n", model.Tiger)
	assert.Error(t, err)
}

func TestImportCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m1.csv")
	var b strings.Builder
	b.WriteString("time,open,high,low,close\n")
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		b.WriteString(start.Add(time.Duration(i) * time.Minute).Format(time.RFC3339))
		b.WriteString(",100,101,99,100.5\n")
	}
	require.NoError(t, writeFile(path, b.String()))

	db := filepath.Join(dir, "candles.db")
	prom := metrics.NewMetrics(prometheus.NewRegistry())
	n, err := importCSV(context.Background(), db, "EURUSD", model.M1, 10, []string{path}, prom)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	r, err := sqlitestore.NewReader(db)
	require.NoError(t, err)
	defer r.Close()
	got, err := r.ReadCandles(context.Background(), "EURUSD", model.M1, 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 25)
}

func writeFile(path, data string) error {
	return os.WriteFile(path, []byte(data), 0o644)
}
