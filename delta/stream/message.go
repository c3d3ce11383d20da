package stream

import (
	"bytes"
	"encoding/json"
	"sync"
)

// controlMessage is an outbound subscribe/unsubscribe frame.
type controlMessage struct {
	Type    string         `json:"type"`
	Payload controlPayload `json:"payload"`
}

type controlPayload struct {
	Channels []string `json:"channels"`
}

func subscribeMessage(channels ...string) []byte {
	b, _ := json.Marshal(controlMessage{Type: "subscribe", Payload: controlPayload{Channels: channels}})
	return b
}

func unsubscribeMessage(channels ...string) []byte {
	b, _ := json.Marshal(controlMessage{Type: "unsubscribe", Payload: controlPayload{Channels: channels}})
	return b
}

// CandleUpdate is a live candlestick frame. CandleStartTime is in
// milliseconds; Time converts it to the epoch-second keying used everywhere
// else.
type CandleUpdate struct {
	Symbol          string   `json:"symbol"`
	Resolution      string   `json:"resolution"`
	CandleStartTime int64    `json:"candle_start_time"`
	Open            float64  `json:"open"`
	High            float64  `json:"high"`
	Low             float64  `json:"low"`
	Close           float64  `json:"close"`
	Volume          *float64 `json:"volume"`
}

// Time returns the candle start in epoch seconds.
func (u CandleUpdate) Time() int64 {
	return u.CandleStartTime / 1000
}

// TickerUpdate is a live ticker frame. Every field the venue may omit is a
// pointer; the consumer substitutes zero for anything absent.
type TickerUpdate struct {
	Symbol        *string       `json:"symbol"`
	MarkPrice     *string       `json:"mark_price"`
	Quotes        *TickerQuotes `json:"quotes"`
	Volume        *string       `json:"volume"`
	High          *float64      `json:"high"`
	Low           *float64      `json:"low"`
	MarkChange24h *string       `json:"mark_change_24h"`
}

type TickerQuotes struct {
	BestBid *string `json:"best_bid"`
	BestAsk *string `json:"best_ask"`
}

// OrderBookUpdate is a live L2 order book frame. Unlike the REST snapshot,
// levels here carry no cumulative depth.
type OrderBookUpdate struct {
	Symbol    string      `json:"symbol"`
	Buy       []BookLevel `json:"buy"`
	Sell      []BookLevel `json:"sell"`
	Timestamp int64       `json:"timestamp"`
}

type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type handlers struct {
	mu               sync.RWMutex
	candleHandler    func(CandleUpdate)
	tickerHandler    func(TickerUpdate)
	orderBookHandler func(OrderBookUpdate)
}

func newHandlers() handlers {
	return handlers{
		candleHandler:    func(CandleUpdate) {},
		tickerHandler:    func(TickerUpdate) {},
		orderBookHandler: func(OrderBookUpdate) {},
	}
}

// handleMessage inspects a single inbound frame and routes it to the matching
// handler. The venue does not put an explicit kind discriminator in every
// frame, so the kind is determined by substring sniffing, checked in the order
// candlestick then ticker then l2_orderbook; a frame matching several
// substrings is routed to the first match. Anything unrecognized or malformed is logged and
// dropped; a bad frame never terminates the session.
func (s *Session) handleMessage(b []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		s.logger.Warnf("deltastream: dropping malformed frame: %v", err)
		return
	}
	if probe.Type == "subscriptions" {
		s.logger.Infof("deltastream: subscription ack: %s", b)
		return
	}

	switch {
	case bytes.Contains(b, []byte("candlestick")):
		var update CandleUpdate
		if err := json.Unmarshal(b, &update); err != nil {
			s.logger.Warnf("deltastream: dropping malformed candle frame: %v", err)
			return
		}
		s.handler.mu.RLock()
		h := s.handler.candleHandler
		s.handler.mu.RUnlock()
		h(update)
	case bytes.Contains(b, []byte("ticker")):
		var update TickerUpdate
		if err := json.Unmarshal(b, &update); err != nil {
			s.logger.Warnf("deltastream: dropping malformed ticker frame: %v", err)
			return
		}
		s.handler.mu.RLock()
		h := s.handler.tickerHandler
		s.handler.mu.RUnlock()
		h(update)
	case bytes.Contains(b, []byte("l2_orderbook")):
		var update OrderBookUpdate
		if err := json.Unmarshal(b, &update); err != nil {
			s.logger.Warnf("deltastream: dropping malformed order book frame: %v", err)
			return
		}
		s.handler.mu.RLock()
		h := s.handler.orderBookHandler
		s.handler.mu.RUnlock()
		h(update)
	default:
		s.logger.Infof("deltastream: unhandled message: %s", b)
	}
}
