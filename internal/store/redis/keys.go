package redis

import (
	"strings"

	"tradesim/internal/model"
)

// Keyspace builds stream, latest and pubsub key names for one simulation run.
// Every key is prefixed with "sim:{run}:" so concurrent runs never collide.
//
//	sim:{run}:candle:{tf}:{market}            stream of complete candles
//	sim:{run}:candle:{tf}:latest:{market}     latest complete candle
//	pub:sim:{run}:candle:{tf}:{market}        complete and forming candles
//	sim:{run}:ind:{name}:{tf}:{market}        stream of formed indicator values
//	sim:{run}:trades:{market}                 stream of trade transitions
type Keyspace struct {
	prefix string
}

// NewKeyspace returns the keyspace of runID.
func NewKeyspace(runID string) Keyspace {
	return Keyspace{prefix: "sim:" + runID + ":"}
}

func (k Keyspace) CandleStream(market string, tf model.Timeframe) string {
	return k.prefix + "candle:" + tf.String() + ":" + market
}

func (k Keyspace) CandleLatest(market string, tf model.Timeframe) string {
	return k.prefix + "candle:" + tf.String() + ":latest:" + market
}

func (k Keyspace) CandleChannel(market string, tf model.Timeframe) string {
	return "pub:" + k.CandleStream(market, tf)
}

func (k Keyspace) IndicatorStream(name, market string, tf model.Timeframe) string {
	return k.prefix + "ind:" + name + ":" + tf.String() + ":" + market
}

func (k Keyspace) IndicatorLatest(name, market string, tf model.Timeframe) string {
	return k.prefix + "ind:" + name + ":" + tf.String() + ":latest:" + market
}

func (k Keyspace) IndicatorChannel(name, market string, tf model.Timeframe) string {
	return "pub:" + k.IndicatorStream(name, market, tf)
}

func (k Keyspace) TradeStream(market string) string {
	return k.prefix + "trades:" + market
}

func (k Keyspace) TradeChannel(market string) string {
	return "pub:" + k.TradeStream(market)
}

// RunOf extracts the run id from any key of a Keyspace. ok is false for
// foreign keys.
func RunOf(key string) (run string, ok bool) {
	key = strings.TrimPrefix(key, "pub:")
	if !strings.HasPrefix(key, "sim:") {
		return "", false
	}
	rest := key[len("sim:"):]
	i := strings.IndexByte(rest, ':')
	if i <= 0 {
		return "", false
	}
	return rest[:i], true
}
