package stream

import "fmt"

// Channel identifiers on the venue's socket protocol. Each logical stream
// (one symbol's candles at one resolution, one symbol's ticker, ...) maps to
// exactly one string key, so repeated subscribe calls for the same stream
// collapse in the subscription set.

// CandleChannel returns the channel id of the candlestick stream for the
// given symbol and venue resolution token.
func CandleChannel(symbol, resolution string) string {
	return fmt.Sprintf("candlestick_%s_%sm", symbol, resolution)
}

// TickerChannel returns the channel id of the ticker stream for the symbol.
func TickerChannel(symbol string) string {
	return "v2/ticker/" + symbol
}

// OrderBookChannel returns the channel id of the L2 order book stream for
// the symbol.
func OrderBookChannel(symbol string) string {
	return "l2_orderbook/" + symbol
}
