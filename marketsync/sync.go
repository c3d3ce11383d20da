package marketsync

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/deltakit/delta-trade-go/delta"
	"github.com/deltakit/delta-trade-go/delta/stream"
)

const (
	defaultLookback = 24 * time.Hour
	bookDepth       = 20
)

// mockable in tests
var timeNow = time.Now

// StreamSession is the part of the stream session the synchronizer relies on.
type StreamSession interface {
	SubscribeCandles(symbol, resolution string)
	SubscribeTicker(symbol string)
	SubscribeOrderBook(symbol string)
	OnCandle(handler func(stream.CandleUpdate))
	OnTicker(handler func(stream.TickerUpdate))
	OnOrderBook(handler func(stream.OrderBookUpdate))
}

// Synchronizer reconciles REST-fetched snapshots with the live stream into
// ordered, deduplicated series that consumers observe as whole snapshots.
//
// It owns the in-memory candle cache for its active (symbol, timeframe).
// Cancelling a consumer's subscription stops forwarding to that consumer but
// deliberately leaves the underlying channel subscribed: other consumers may
// share it, and unsubscription is a separate action on the session.
type Synchronizer struct {
	logger   stream.Logger
	api      delta.Client
	session  StreamSession
	lookback time.Duration

	mu           sync.Mutex
	symbol       string
	resolution   string
	tickerSymbol string
	bookSymbol   string
	candles      []delta.Candle

	candleFeed *Feed[[]delta.Candle]
	tickerFeed *Feed[TickerSnapshot]
	bookFeed   *Feed[OrderBookSnapshot]
}

// NewSynchronizer builds a Synchronizer over the given REST client and stream
// session and registers itself as the session's payload handler. A nil logger
// falls back to the default one.
func NewSynchronizer(api delta.Client, session StreamSession, logger stream.Logger) *Synchronizer {
	if logger == nil {
		logger = stream.DefaultLogger()
	}
	s := &Synchronizer{
		logger:     logger,
		api:        api,
		session:    session,
		lookback:   defaultLookback,
		candleFeed: NewFeed[[]delta.Candle](),
		tickerFeed: NewFeed[TickerSnapshot](),
		bookFeed:   NewFeed[OrderBookSnapshot](),
	}
	session.OnCandle(s.applyCandle)
	session.OnTicker(s.applyTicker)
	session.OnOrderBook(s.applyOrderBook)
	return s
}

// StreamCandles makes (symbol, timeframe) the active candle series: it
// replaces the cache with a historical window fetched over REST, emits it,
// and subscribes the live channel. Live updates merge into the cache
// last-write-wins per timestamp, and every merge emits the full ordered
// series, never a delta.
//
// A failed historical fetch emits an empty series and still subscribes the
// live channel: the series degrades to live-only rather than erroring.
func (s *Synchronizer) StreamCandles(symbol, timeframe string) (<-chan []delta.Candle, func()) {
	resolution := Resolution(timeframe)

	s.mu.Lock()
	s.symbol = symbol
	s.resolution = resolution
	s.candles = nil
	s.mu.Unlock()

	end := timeNow().Unix()
	start := end - int64(s.lookback/time.Second)

	fetched, err := s.api.GetCandles(delta.GetCandlesParams{
		Symbol:     symbol,
		Resolution: resolution,
		Start:      start,
		End:        end,
	})
	if err != nil {
		s.logger.Warnf("marketsync: historical fetch for %s %s failed, degrading to live-only: %v", symbol, timeframe, err)
		s.candleFeed.Publish([]delta.Candle{})
	} else {
		sort.Slice(fetched, func(i, j int) bool { return fetched[i].Time < fetched[j].Time })
		s.mu.Lock()
		s.candles = fetched
		s.mu.Unlock()
		s.candleFeed.Publish(append([]delta.Candle(nil), fetched...))
	}

	s.session.SubscribeCandles(symbol, resolution)
	return s.candleFeed.Subscribe()
}

// StreamTicker subscribes the symbol's live ticker channel and returns its
// normalized snapshot stream.
func (s *Synchronizer) StreamTicker(symbol string) (<-chan TickerSnapshot, func()) {
	s.mu.Lock()
	s.tickerSymbol = symbol
	s.mu.Unlock()

	s.session.SubscribeTicker(symbol)
	return s.tickerFeed.Subscribe()
}

// StreamOrderBook emits a REST snapshot of the book first (the stream does
// not carry cumulative depth) and then re-emits on every live frame. A failed
// snapshot fetch emits an empty book and continues with live frames.
func (s *Synchronizer) StreamOrderBook(symbol string) (<-chan OrderBookSnapshot, func()) {
	s.mu.Lock()
	s.bookSymbol = symbol
	s.mu.Unlock()

	book, err := s.api.GetOrderBook(symbol, bookDepth)
	if err != nil {
		s.logger.Warnf("marketsync: order book fetch for %s failed, degrading to live-only: %v", symbol, err)
		s.bookFeed.Publish(OrderBookSnapshot{Symbol: symbol})
	} else {
		s.bookFeed.Publish(snapshotFromREST(book))
	}

	s.session.SubscribeOrderBook(symbol)
	return s.bookFeed.Subscribe()
}

// applyCandle merges one live update into the cache: same timestamp replaces
// in place, a new timestamp appends (re-sorting if it arrived out of order).
func (s *Synchronizer) applyCandle(u stream.CandleUpdate) {
	s.mu.Lock()
	if u.Symbol != "" && s.symbol != "" && u.Symbol != s.symbol {
		s.mu.Unlock()
		return
	}

	c := delta.Candle{
		Time:  u.Time(),
		Open:  decimal.NewFromFloat(u.Open),
		High:  decimal.NewFromFloat(u.High),
		Low:   decimal.NewFromFloat(u.Low),
		Close: decimal.NewFromFloat(u.Close),
	}
	if u.Volume != nil {
		c.Volume = decimal.NewFromFloat(*u.Volume)
	} else {
		c.Volume = decimal.Zero
	}

	replaced := false
	for i := range s.candles {
		if s.candles[i].Time == c.Time {
			s.candles[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		s.candles = append(s.candles, c)
		if n := len(s.candles); n > 1 && s.candles[n-2].Time > c.Time {
			sort.Slice(s.candles, func(i, j int) bool { return s.candles[i].Time < s.candles[j].Time })
		}
	}

	snapshot := append([]delta.Candle(nil), s.candles...)
	s.mu.Unlock()

	s.candleFeed.Publish(snapshot)
}

// applyTicker normalizes one live ticker frame, substituting zero for any
// field that is absent or non-numeric.
func (s *Synchronizer) applyTicker(u stream.TickerUpdate) {
	s.mu.Lock()
	symbol := s.tickerSymbol
	s.mu.Unlock()
	if u.Symbol != nil && *u.Symbol != "" {
		symbol = *u.Symbol
	}

	snap := TickerSnapshot{
		Symbol:    symbol,
		LastPrice: parseDecimal(u.MarkPrice),
		Volume:    parseDecimal(u.Volume),
		High24h:   parseFloat(u.High),
		Low24h:    parseFloat(u.Low),
		Change24h: parseDecimal(u.MarkChange24h),
	}
	if u.Quotes != nil {
		snap.BidPrice = parseDecimal(u.Quotes.BestBid)
		snap.AskPrice = parseDecimal(u.Quotes.BestAsk)
	}

	s.tickerFeed.Publish(snap)
}

// applyOrderBook normalizes one live book frame. The streaming payload does
// not carry cumulative depth, so depth is recomputed client-side as the
// running sum of level sizes; that keeps live and REST snapshots uniform.
func (s *Synchronizer) applyOrderBook(u stream.OrderBookUpdate) {
	s.mu.Lock()
	symbol := s.bookSymbol
	s.mu.Unlock()
	if u.Symbol != "" {
		symbol = u.Symbol
	}

	s.bookFeed.Publish(OrderBookSnapshot{
		Symbol: symbol,
		Bids:   levelsFromUpdate(u.Buy),
		Asks:   levelsFromUpdate(u.Sell),
	})
}

func snapshotFromREST(book *delta.OrderBook) OrderBookSnapshot {
	return OrderBookSnapshot{
		Symbol: book.Symbol,
		Bids:   levelsFromREST(book.Buy),
		Asks:   levelsFromREST(book.Sell),
	}
}

func levelsFromREST(levels []delta.OrderBookLevel) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, PriceLevel{Price: l.Price, Quantity: l.Size, Depth: l.Depth})
	}
	return out
}

func levelsFromUpdate(levels []stream.BookLevel) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	depth := decimal.Zero
	for _, l := range levels {
		price := parseDecimalString(l.Price)
		size := parseDecimalString(l.Size)
		depth = depth.Add(size)
		out = append(out, PriceLevel{Price: price, Quantity: size, Depth: depth})
	}
	return out
}
