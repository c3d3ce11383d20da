package stream

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"
)

// ConnState is the observable connection state of a Session.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
	// StateFailed is terminal: the reconnect budget is exhausted and no
	// further automatic attempts will be made. A new Connect call starts a
	// fresh budget.
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// mockable in tests
var afterFunc = time.AfterFunc

// Session manages one long-lived streaming connection to the venue: channel
// subscription bookkeeping, inbound message dispatch and reconnection with
// linear backoff.
//
// All exported methods are safe for concurrent use. Subscribe and Unsubscribe
// are fire-and-forget: the subscription set is the source of truth and is
// replayed to the venue whenever a connection (re)opens. Only Disconnect
// clears the set.
type Session struct {
	logger        Logger
	baseURL       string
	baseDelay     time.Duration
	maxReconnects int
	connCreator   func(ctx context.Context, u url.URL) (conn, error)

	handler handlers

	mu             sync.Mutex
	state          ConnState
	conn           conn
	quit           chan struct{}
	subs           map[string]struct{}
	attempts       int
	gen            uint64
	reconnectTimer *time.Timer

	stateCh chan ConnState
}

// NewSession returns a new Session whose default configuration is modified
// by opts. The session does not connect until Connect is called.
func NewSession(opts ...Option) *Session {
	o := defaultOptions()
	o.apply(opts...)

	s := &Session{
		logger:        o.logger,
		baseURL:       o.baseURL,
		baseDelay:     o.reconnectDelay,
		maxReconnects: o.reconnectLimit,
		connCreator:   o.connCreator,
		handler:       newHandlers(),
		subs:          make(map[string]struct{}),
		stateCh:       make(chan ConnState, 1),
	}
	return s
}

// OnCandle registers the handler for live candlestick frames.
func (s *Session) OnCandle(handler func(CandleUpdate)) {
	s.handler.mu.Lock()
	s.handler.candleHandler = handler
	s.handler.mu.Unlock()
}

// OnTicker registers the handler for live ticker frames.
func (s *Session) OnTicker(handler func(TickerUpdate)) {
	s.handler.mu.Lock()
	s.handler.tickerHandler = handler
	s.handler.mu.Unlock()
}

// OnOrderBook registers the handler for live order book frames.
func (s *Session) OnOrderBook(handler func(OrderBookUpdate)) {
	s.handler.mu.Lock()
	s.handler.orderBookHandler = handler
	s.handler.mu.Unlock()
}

// State returns the current connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// States returns a conflated channel carrying the latest connection state.
// A slow reader only ever observes the most recent transition.
func (s *Session) States() <-chan ConnState {
	return s.stateCh
}

// Connect opens the transport. It is a no-op if the session is already
// connecting or connected, and returns immediately: connection progress is
// observable through States. Connection failures feed the reconnect policy
// rather than being returned.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateConnected {
		s.logger.Infof("deltastream: already %s, ignoring connect", s.state)
		s.mu.Unlock()
		return
	}
	s.stopReconnectTimerLocked()
	if s.state == StateFailed {
		// Manual retry after an exhausted budget starts a fresh one.
		s.attempts = 0
	}
	s.gen++
	gen := s.gen
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	go s.dial(gen)
}

// Disconnect cancels any pending reconnect, closes the transport with a
// normal-closure code and clears the subscription set. This is the only path
// that clears subscriptions; transient reconnects keep them.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.gen++
	s.stopReconnectTimerLocked()
	c := s.conn
	s.conn = nil
	if s.quit != nil {
		close(s.quit)
		s.quit = nil
	}
	s.subs = make(map[string]struct{})
	s.attempts = 0
	if c != nil {
		s.setStateLocked(StateClosing)
	}
	s.mu.Unlock()

	if c != nil {
		if err := c.close(); err != nil {
			s.logger.Warnf("deltastream: error closing connection: %v", err)
		}
	}

	s.mu.Lock()
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()
}

// SubscribeCandles subscribes to the candlestick channel for the given symbol
// and venue resolution token.
func (s *Session) SubscribeCandles(symbol, resolution string) {
	s.Subscribe(CandleChannel(symbol, resolution))
}

// SubscribeTicker subscribes to the ticker channel for the given symbol.
func (s *Session) SubscribeTicker(symbol string) {
	s.Subscribe(TickerChannel(symbol))
}

// SubscribeOrderBook subscribes to the L2 order book channel for the given
// symbol.
func (s *Session) SubscribeOrderBook(symbol string) {
	s.Subscribe(OrderBookChannel(symbol))
}

// Subscribe adds the channel to the subscription set and, if connected, sends
// a subscribe control frame. Subscribing to an already subscribed channel is
// a no-op and sends nothing.
func (s *Session) Subscribe(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[channel]; ok {
		s.logger.Infof("deltastream: already subscribed to %s", channel)
		return
	}
	s.subs[channel] = struct{}{}
	if s.state == StateConnected && s.conn != nil {
		s.writeLocked(subscribeMessage(channel))
	}
}

// Unsubscribe removes the channel from the subscription set regardless of
// connection state, so a future reconnect will not resubscribe it. If
// connected, an unsubscribe control frame is sent.
func (s *Session) Unsubscribe(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, channel)
	if s.state == StateConnected && s.conn != nil {
		s.writeLocked(unsubscribeMessage(channel))
	}
}

// Subscriptions returns the channels currently in the subscription set,
// sorted for determinism.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	channels := make([]string, 0, len(s.subs))
	for channel := range s.subs {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}

func (s *Session) dial(gen uint64) {
	u, err := s.wsURL()
	if err == nil {
		var c conn
		c, err = s.connCreator(context.Background(), u)
		if err == nil {
			s.onOpen(gen, c)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.logger.Warnf("deltastream: failed to connect: %v", err)
	s.setStateLocked(StateDisconnected)
	s.scheduleReconnectLocked()
}

func (s *Session) wsURL() (url.URL, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return url.URL{}, err
	}
	scheme := "wss"
	switch u.Scheme {
	case "http", "ws":
		scheme = "ws"
	}
	return url.URL{Scheme: scheme, Host: u.Host, Path: u.Path}, nil
}

// onOpen installs the fresh connection, resets the reconnect budget and
// replays the whole subscription set. The venue tolerates duplicate
// subscribes, so the replay is idempotent.
func (s *Session) onOpen(gen uint64, c conn) {
	s.mu.Lock()
	if gen != s.gen {
		// Disconnect happened while dialing.
		s.mu.Unlock()
		c.close()
		return
	}
	s.conn = c
	s.quit = make(chan struct{})
	s.attempts = 0
	s.setStateLocked(StateConnected)
	s.logger.Infof("deltastream: connected to %s", s.baseURL)
	for channel := range s.subs {
		s.writeLocked(subscribeMessage(channel))
	}
	quit := s.quit
	s.mu.Unlock()

	go s.readLoop(gen, c)
	go s.pingLoop(c, quit)
}

// readLoop reads frames until the connection dies, then drives the reconnect
// policy.
func (s *Session) readLoop(gen uint64, c conn) {
	for {
		msg, err := c.readMessage(context.Background())
		if err != nil {
			s.connLost(gen, err)
			return
		}
		s.handleMessage(msg)
	}
}

// pingLoop keeps the transport alive. A failed ping closes the connection,
// which unblocks readLoop and lets it run the reconnect policy.
func (s *Session) pingLoop(c conn, quit <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			if err := c.ping(context.Background()); err != nil {
				s.logger.Errorf("deltastream: ping failed: %v", err)
				c.close()
				return
			}
		}
	}
}

func (s *Session) connLost(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// Explicit disconnect already tore this connection down.
		return
	}
	s.logger.Warnf("deltastream: connection lost: %v", err)
	if s.quit != nil {
		close(s.quit)
		s.quit = nil
	}
	if s.conn != nil {
		s.conn.close()
		s.conn = nil
	}
	s.setStateLocked(StateDisconnected)
	s.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms a reconnect timer with linear backoff:
// baseDelay times the attempt number, capped at maxReconnects attempts.
// Exceeding the cap is terminal.
func (s *Session) scheduleReconnectLocked() {
	if s.attempts >= s.maxReconnects {
		s.logger.Errorf("deltastream: max reconnect attempts (%d) reached", s.maxReconnects)
		s.setStateLocked(StateFailed)
		return
	}
	s.attempts++
	delay := time.Duration(s.attempts) * s.baseDelay
	s.logger.Infof("deltastream: reconnecting in %s (attempt %d/%d)", delay, s.attempts, s.maxReconnects)
	s.reconnectTimer = afterFunc(delay, s.Connect)
}

func (s *Session) stopReconnectTimerLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Session) writeLocked(msg []byte) {
	if err := s.conn.writeMessage(context.Background(), msg); err != nil {
		s.logger.Warnf("deltastream: failed to send %s: %v", msg, err)
	}
}

// setStateLocked updates the state and publishes it on the conflated state
// channel: the channel always holds the most recent transition.
func (s *Session) setStateLocked(state ConnState) {
	s.state = state
	select {
	case s.stateCh <- state:
	default:
		select {
		case <-s.stateCh:
		default:
		}
		select {
		case s.stateCh <- state:
		default:
		}
	}
}
