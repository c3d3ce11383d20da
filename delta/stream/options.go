package stream

import (
	"context"
	"net/url"
	"os"
	"time"
)

// Option is a configuration option for the Session
type Option interface {
	apply(*options)
}

type options struct {
	logger         Logger
	baseURL        string
	reconnectLimit int
	reconnectDelay time.Duration

	connCreator func(ctx context.Context, u url.URL) (conn, error)
}

// defaultOptions are the default options for a session.
// Don't change this in a backward incompatible way!
func defaultOptions() *options {
	baseURL := "wss://socket.delta.exchange"
	if s := os.Getenv("DELTA_WS_URL"); s != "" {
		baseURL = s
	}

	return &options{
		logger:         DefaultLogger(),
		baseURL:        baseURL,
		reconnectLimit: 5,
		reconnectDelay: 2 * time.Second,
		connCreator:    newNhooyrWebsocketConn,
	}
}

func (o *options) apply(opts ...Option) {
	for _, opt := range opts {
		opt.apply(o)
	}
}

type funcOption struct {
	f func(*options)
}

func (fo *funcOption) apply(o *options) {
	fo.f(o)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{f: f}
}

// WithLogger configures the logger
func WithLogger(logger Logger) Option {
	return newFuncOption(func(o *options) {
		o.logger = logger
	})
}

// WithBaseURL configures the websocket URL
func WithBaseURL(url string) Option {
	return newFuncOption(func(o *options) {
		o.baseURL = url
	})
}

// WithReconnectSettings configures how many automatic reconnect attempts are
// made and the base delay between them. The delay is multiplied by the
// attempt number (linear backoff). Exceeding limit attempts in a row puts the
// session in StateFailed.
func WithReconnectSettings(limit int, delay time.Duration) Option {
	return newFuncOption(func(o *options) {
		o.reconnectLimit = limit
		o.reconnectDelay = delay
	})
}

// WithGorillaWebsocket switches the transport to the gorilla/websocket
// implementation.
func WithGorillaWebsocket() Option {
	return newFuncOption(func(o *options) {
		o.connCreator = newGorillaWebsocketConn
	})
}

func withConnCreator(connCreator func(ctx context.Context, u url.URL) (conn, error)) Option {
	return newFuncOption(func(o *options) {
		o.connCreator = connCreator
	})
}
