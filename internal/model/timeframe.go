package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe is one of the fixed, totally ordered candle granularities.
// The zero value is M1. Tiger is the price-step timeframe and sorts last.
type Timeframe uint8

const (
	M1 Timeframe = iota
	M5
	M15
	M30
	H1
	H2
	H4
	H8
	D1
	Tiger
)

// TimeframeCount is the size of per-timeframe state arrays.
const TimeframeCount = 10

// AllTimeframes lists every supported timeframe in order.
var AllTimeframes = [TimeframeCount]Timeframe{M1, M5, M15, M30, H1, H2, H4, H8, D1, Tiger}

var timeframeNames = [TimeframeCount]string{"M1", "M5", "M15", "M30", "H1", "H2", "H4", "H8", "D1", "TIGER"}

var timeframeDurations = [TimeframeCount]time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	time.Hour,
	2 * time.Hour,
	4 * time.Hour,
	8 * time.Hour,
	24 * time.Hour,
	0,
}

// Index maps the timeframe onto [0, TimeframeCount). An unsupported value is
// a configuration bug and panics.
func (tf Timeframe) Index() int {
	switch tf {
	case M1, M5, M15, M30, H1, H2, H4, H8, D1, Tiger:
		return int(tf)
	}
	panic(fmt.Sprintf("model: unsupported timeframe %d", uint8(tf)))
}

// String returns the canonical name, e.g. "M15".
func (tf Timeframe) String() string {
	if int(tf) < TimeframeCount {
		return timeframeNames[tf]
	}
	return fmt.Sprintf("Timeframe(%d)", uint8(tf))
}

// Duration returns the clock length of one candle. Tiger returns 0.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf.Index()]
}

// IsClockBased reports whether candles of this timeframe are bounded by time.
func (tf Timeframe) IsClockBased() bool {
	return tf != Tiger
}

// ParseTimeframe parses a timeframe name (case-insensitive).
func ParseTimeframe(s string) (Timeframe, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range timeframeNames {
		if n == name {
			return Timeframe(i), nil
		}
	}
	return 0, fmt.Errorf("unknown timeframe %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (tf Timeframe) MarshalText() ([]byte, error) {
	if int(tf) >= TimeframeCount {
		return nil, fmt.Errorf("unknown timeframe %d", uint8(tf))
	}
	return []byte(tf.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (tf *Timeframe) UnmarshalText(b []byte) error {
	v, err := ParseTimeframe(string(b))
	if err != nil {
		return err
	}
	*tf = v
	return nil
}

// SortTimeframes sorts in place, lowest first, and drops duplicates.
func SortTimeframes(tfs []Timeframe) []Timeframe {
	sort.Slice(tfs, func(i, j int) bool { return tfs[i] < tfs[j] })
	out := tfs[:0]
	for _, tf := range tfs {
		if len(out) > 0 && out[len(out)-1] == tf {
			continue
		}
		out = append(out, tf)
	}
	return out
}
