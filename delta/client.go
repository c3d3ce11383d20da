package delta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Client is the Delta Exchange REST client.
type Client interface {
	GetProducts() ([]Product, error)
	GetProduct(symbol string) (*Product, error)
	GetOptionChain() ([]Product, error)
	GetCandles(params GetCandlesParams) ([]Candle, error)
	GetOrderBook(symbol string, depth int) (*OrderBook, error)
	GetTicker(symbol string) (*Ticker, error)
	PlaceOrder(req CreateOrderRequest) (*Order, error)
	CancelOrder(productID int64, orderID string) error
	ModifyOrder(req ModifyOrderRequest) (*Order, error)
	GetOrder(orderID string) (*Order, error)
	GetOrders(params GetOrdersParams) ([]Order, error)
	GetPositions() ([]Position, error)
	ChangeMargin(productID int64, deltaMargin decimal.Decimal) (*Position, error)
	CloseAllPositions() error
	GetBalances() ([]Balance, error)
	GetProfile() (*Profile, error)
}

// ClientOpts contains options for the Delta client.
type ClientOpts struct {
	// Token is the bearer credential attached to authenticated endpoints.
	// Market data endpoints work without it.
	Token      string
	BaseURL    string
	Timeout    time.Duration
	RetryLimit int
	RetryDelay time.Duration
}

type client struct {
	opts ClientOpts

	do func(c *client, req *http.Request) (*http.Response, error)
}

// NewClient creates a new Delta REST client using the given opts.
func NewClient(opts ClientOpts) Client {
	if opts.Token == "" {
		opts.Token = os.Getenv("DELTA_API_TOKEN")
	}
	if opts.BaseURL == "" {
		if s := os.Getenv("DELTA_API_BASE_URL"); s != "" {
			opts.BaseURL = s
		} else {
			opts.BaseURL = "https://api.delta.exchange"
		}
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryLimit == 0 {
		opts.RetryLimit = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Second
	}
	return &client{
		opts: opts,

		do: defaultDo,
	}
}

const apiVersion = "v2"

func defaultDo(c *client, req *http.Request) (*http.Response, error) {
	httpClient := &http.Client{
		Timeout: c.opts.Timeout,
	}
	var resp *http.Response
	var err error
	for i := 0; ; i++ {
		resp, err = httpClient.Do(req)
		if err != nil {
			return nil, &TransportError{Op: req.Method + " " + req.URL.Path, Err: err}
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		if i >= c.opts.RetryLimit {
			break
		}
		resp.Body.Close()
		time.Sleep(c.opts.RetryDelay)
	}
	return resp, nil
}

// GetProducts returns all live products.
func (c *client) GetProducts() ([]Product, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/products", c.opts.BaseURL, apiVersion))
	if err != nil {
		return nil, err
	}

	resp, err := c.get(u, false)
	if err != nil {
		return nil, err
	}

	products := []Product{}
	if err := unmarshalResult(resp, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct returns the product with the given symbol.
func (c *client) GetProduct(symbol string) (*Product, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/products/%s", c.opts.BaseURL, apiVersion, symbol))
	if err != nil {
		return nil, err
	}

	resp, err := c.get(u, false)
	if err != nil {
		return nil, err
	}

	product := &Product{}
	if err := unmarshalResult(resp, product); err != nil {
		return nil, err
	}
	return product, nil
}

// GetOptionChain returns every live call and put product. Filtering by
// underlying happens client-side; the venue only filters by contract type.
func (c *client) GetOptionChain() ([]Product, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/products", c.opts.BaseURL, apiVersion))
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("contract_types", "call_options,put_options")
	q.Set("states", "live")
	u.RawQuery = q.Encode()

	resp, err := c.get(u, false)
	if err != nil {
		return nil, err
	}

	products := []Product{}
	if err := unmarshalResult(resp, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetCandlesParams contains the parameters of a historical candle query.
// Start and End are epoch seconds, Resolution the venue's timeframe token
// (e.g. "1", "5", "D").
type GetCandlesParams struct {
	Symbol     string
	Resolution string
	Start      int64
	End        int64
}

// GetCandles returns the historical candles for the given window.
func (c *client) GetCandles(params GetCandlesParams) ([]Candle, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/history/candles", c.opts.BaseURL, apiVersion))
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("symbol", params.Symbol)
	q.Set("resolution", params.Resolution)
	q.Set("start", strconv.FormatInt(params.Start, 10))
	q.Set("end", strconv.FormatInt(params.End, 10))
	u.RawQuery = q.Encode()

	resp, err := c.get(u, false)
	if err != nil {
		return nil, err
	}

	candles := []Candle{}
	if err := unmarshalResult(resp, &candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// GetOrderBook returns an L2 order book snapshot with up to depth levels
// per side.
func (c *client) GetOrderBook(symbol string, depth int) (*OrderBook, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/l2orderbook/%s", c.opts.BaseURL, apiVersion, symbol))
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("depth", strconv.Itoa(depth))
	u.RawQuery = q.Encode()

	resp, err := c.get(u, false)
	if err != nil {
		return nil, err
	}

	book := &OrderBook{}
	if err := unmarshalResult(resp, book); err != nil {
		return nil, err
	}
	return book, nil
}

// GetTicker returns the 24h ticker for the given symbol.
func (c *client) GetTicker(symbol string) (*Ticker, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/tickers/%s", c.opts.BaseURL, apiVersion, symbol))
	if err != nil {
		return nil, err
	}

	resp, err := c.get(u, false)
	if err != nil {
		return nil, err
	}

	ticker := &Ticker{}
	if err := unmarshalResult(resp, ticker); err != nil {
		return nil, err
	}
	return ticker, nil
}

// PlaceOrder submits a new order.
func (c *client) PlaceOrder(req CreateOrderRequest) (*Order, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/orders", c.opts.BaseURL, apiVersion))
	if err != nil {
		return nil, err
	}

	resp, err := c.post(u, req)
	if err != nil {
		return nil, err
	}

	order := &Order{}
	if err := unmarshalResult(resp, order); err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder cancels an open order.
func (c *client) CancelOrder(productID int64, orderID string) error {
	u, err := url.Parse(fmt.Sprintf("%s/%s/orders", c.opts.BaseURL, apiVersion))
	if err != nil {
		return err
	}

	q := u.Query()
	q.Set("product_id", strconv.FormatInt(productID, 10))
	q.Set("order_id", orderID)
	u.RawQuery = q.Encode()

	resp, err := c.delete(u)
	if err != nil {
		return err
	}

	result := cancelOrderResult{}
	if err := unmarshalResult(resp, &result); err != nil {
		return err
	}
	if !result.Success {
		return &VenueError{Code: "cancel_failed", Message: "order " + result.OrderID + " was not cancelled"}
	}
	return nil
}

// ModifyOrder edits the price and/or size of an open order.
func (c *client) ModifyOrder(req ModifyOrderRequest) (*Order, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/orders", c.opts.BaseURL, apiVersion))
	if err != nil {
		return nil, err
	}

	resp, err := c.put(u, req)
	if err != nil {
		return nil, err
	}

	order := &Order{}
	if err := unmarshalResult(resp, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns a single order by its venue id.
func (c *client) GetOrder(orderID string) (*Order, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/orders/%s", c.opts.BaseURL, apiVersion, orderID))
	if err != nil {
		return nil, err
	}

	resp, err := c.get(u, true)
	if err != nil {
		return nil, err
	}

	order := &Order{}
	if err := unmarshalResult(resp, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrdersParams filters the open order listing.
type GetOrdersParams struct {
	ProductID *int64
	State     *OrderState
}

// GetOrders lists the account's orders.
func (c *client) GetOrders(params GetOrdersParams) ([]Order, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/orders", c.opts.BaseURL, apiVersion))
	if err != nil {
		return nil, err
	}

	q := u.Query()
	if params.ProductID != nil {
		q.Set("product_id", strconv.FormatInt(*params.ProductID, 10))
	}
	if params.State != nil {
		q.Set("state", string(*params.State))
	}
	u.RawQuery = q.Encode()

	resp, err := c.get(u, true)
	if err != nil {
		return nil, err
	}

	orders := []Order{}
	if err := unmarshalResult(resp, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetPositions lists the account's open positions.
func (c *client) GetPositions() ([]Position, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/positions", c.opts.BaseURL, apiVersion))
	if err != nil {
		return nil, err
	}

	resp, err := c.get(u, true)
	if err != nil {
		return nil, err
	}

	positions := []Position{}
	if err := unmarshalResult(resp, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

type changeMarginRequest struct {
	ProductID   int64  `json:"product_id"`
	DeltaMargin string `json:"delta_margin"`
}

// ChangeMargin adds or removes isolated margin on a position.
func (c *client) ChangeMargin(productID int64, deltaMargin decimal.Decimal) (*Position, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/positions/change_margin", c.opts.BaseURL, apiVersion))
	if err != nil {
		return nil, err
	}

	resp, err := c.post(u, changeMarginRequest{
		ProductID:   productID,
		DeltaMargin: deltaMargin.String(),
	})
	if err != nil {
		return nil, err
	}

	position := &Position{}
	if err := unmarshalResult(resp, position); err != nil {
		return nil, err
	}
	return position, nil
}

type closeAllPositionsRequest struct {
	CloseAllPortfolio bool `json:"close_all_portfolio"`
}

// CloseAllPositions closes every open position at market.
func (c *client) CloseAllPositions() error {
	u, err := url.Parse(fmt.Sprintf("%s/%s/positions/close_all", c.opts.BaseURL, apiVersion))
	if err != nil {
		return err
	}

	resp, err := c.post(u, closeAllPositionsRequest{CloseAllPortfolio: true})
	if err != nil {
		return err
	}

	if err := verify(resp); err != nil {
		return err
	}
	// verify only drains the body on the error path
	return resp.Body.Close()
}

// GetBalances returns the wallet balances.
func (c *client) GetBalances() ([]Balance, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/wallet/balances", c.opts.BaseURL, apiVersion))
	if err != nil {
		return nil, err
	}

	resp, err := c.get(u, true)
	if err != nil {
		return nil, err
	}

	balances := []Balance{}
	if err := unmarshalResult(resp, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

// GetProfile returns the user profile.
func (c *client) GetProfile() (*Profile, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/profile", c.opts.BaseURL, apiVersion))
	if err != nil {
		return nil, err
	}

	resp, err := c.get(u, true)
	if err != nil {
		return nil, err
	}

	profile := &Profile{}
	if err := unmarshalResult(resp, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (c *client) get(u *url.URL, authenticated bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req, authenticated); err != nil {
		return nil, err
	}
	return c.do(c, req)
}

func (c *client) post(u *url.URL, data interface{}) (*http.Response, error) {
	return c.send(http.MethodPost, u, data)
}

func (c *client) put(u *url.URL, data interface{}) (*http.Response, error) {
	return c.send(http.MethodPut, u, data)
}

func (c *client) send(method string, u *url.URL, data interface{}) (*http.Response, error) {
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(method, u.String(), bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req, true); err != nil {
		return nil, err
	}
	return c.do(c, req)
}

func (c *client) delete(u *url.URL) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodDelete, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req, true); err != nil {
		return nil, err
	}
	return c.do(c, req)
}

// authorize attaches the bearer credential. Authenticated endpoints fail
// locally when no token is configured; no request leaves the process.
func (c *client) authorize(req *http.Request, required bool) error {
	if c.opts.Token == "" {
		if required {
			return ErrNotAuthenticated
		}
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	return nil
}

func verify(resp *http.Response) error {
	if resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.HTTPStatus = resp.StatusCode
		return envelope.Error
	}
	return &VenueError{
		Code:       "http_error",
		Message:    fmt.Sprintf("HTTP %s: %s", resp.Status, body),
		HTTPStatus: resp.StatusCode,
	}
}

func unmarshalResult(resp *http.Response, data interface{}) error {
	if err := verify(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &ProtocolError{What: "response envelope", Err: err}
	}
	if !envelope.Success {
		if envelope.Error != nil {
			envelope.Error.HTTPStatus = resp.StatusCode
			return envelope.Error
		}
		return &VenueError{Code: "unknown", Message: "unsuccessful response with no error body", HTTPStatus: resp.StatusCode}
	}
	if len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, data); err != nil {
		return &ProtocolError{What: "response result", Err: err}
	}
	return nil
}
