package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/model"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseCandleTime accepts Unix seconds or one of timeLayouts (UTC).
func parseCandleTime(s string) (int64, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UnixNano(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return model.TicksOf(t), nil
		}
	}
	return 0, fmt.Errorf("unrecognised time %q", s)
}

// readCSVCandles streams time,open,high,low,close rows from r into out.
// Extra columns are ignored and a header row is skipped. Rows must be in
// ascending time order and describe valid candles of tf.
func readCSVCandles(ctx context.Context, r io.Reader, tf model.Timeframe, out chan<- model.Candle) (int, error) {
	if !tf.IsClockBased() {
		return 0, fmt.Errorf("cannot import %s candles", tf)
	}
	period := tf.Duration().Nanoseconds()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	n := 0
	var prev int64
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if len(rec) < 5 {
			return n, fmt.Errorf("line %d: want time,open,high,low,close, got %d fields", line, len(rec))
		}

		openTime, err := parseCandleTime(strings.TrimSpace(rec[0]))
		if err != nil {
			if line == 1 {
				continue // header
			}
			return n, fmt.Errorf("line %d: %w", line, err)
		}

		var px [4]decimal.Decimal
		for i := range px {
			if px[i], err = decimal.NewFromString(strings.TrimSpace(rec[i+1])); err != nil {
				return n, fmt.Errorf("line %d: column %d: %w", line, i+2, err)
			}
		}
		c := model.Candle{
			Timeframe:  tf,
			OpenTime:   openTime,
			CloseTime:  openTime + period,
			Open:       px[0],
			High:       px[1],
			Low:        px[2],
			Close:      px[3],
			IsComplete: true,
		}
		if !c.Simple().Valid() {
			return n, fmt.Errorf("line %d: invalid candle (high %s, low %s)", line, c.High, c.Low)
		}
		if n > 0 && openTime < prev+period {
			return n, fmt.Errorf("line %d: candle at %s overlaps or precedes the previous one", line, model.TimeOf(openTime).Format(time.RFC3339))
		}
		prev = openTime

		select {
		case out <- c:
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
}
