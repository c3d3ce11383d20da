package delta

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// apiResponse is the envelope every Delta REST endpoint wraps its payload in.
type apiResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *VenueError     `json:"error"`
}

// Product describes a tradable contract.
type Product struct {
	ID              int64            `json:"id"`
	Symbol          string           `json:"symbol"`
	ContractType    string           `json:"contract_type"`
	StrikePrice     *decimal.Decimal `json:"strike_price"`
	Expiry          *string          `json:"expiry"`
	UnderlyingAsset Asset            `json:"underlying_asset"`
	SettlingAsset   Asset            `json:"settling_asset"`
	TickSize        decimal.Decimal  `json:"tick_size"`
	ContractValue   decimal.Decimal  `json:"contract_value"`
	State           string           `json:"state"`
}

type Asset struct {
	Symbol    string `json:"symbol"`
	Precision int    `json:"precision"`
}

// Candle is a single OHLCV bar. Time is the bar start in epoch seconds.
type Candle struct {
	Time   int64           `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// OrderBook is an L2 order book snapshot. Buy levels are sorted descending by
// price and sell levels ascending, as returned by the venue.
type OrderBook struct {
	Symbol        string           `json:"symbol"`
	ProductID     int64            `json:"product_id"`
	Buy           []OrderBookLevel `json:"buy"`
	Sell          []OrderBookLevel `json:"sell"`
	LastUpdatedAt int64            `json:"last_updated_at"`
}

// OrderBookLevel is one price level. Depth is the cumulative size up to and
// including this level; only the REST snapshot carries it.
type OrderBookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Depth decimal.Decimal `json:"depth"`
}

// Ticker is the 24h rolling ticker for a single product.
type Ticker struct {
	Symbol                string           `json:"symbol"`
	ProductID             int64            `json:"product_id"`
	Open                  *decimal.Decimal `json:"open"`
	High                  *decimal.Decimal `json:"high"`
	Low                   *decimal.Decimal `json:"low"`
	Close                 *decimal.Decimal `json:"close"`
	MarkPrice             *decimal.Decimal `json:"mark_price"`
	SpotPrice             *decimal.Decimal `json:"spot_price"`
	OpenInterest          *decimal.Decimal `json:"open_interest"`
	PriceChange24h        *decimal.Decimal `json:"price_change_24h"`
	PriceChangePercent24h *decimal.Decimal `json:"price_change_percent_24h"`
	Size                  *decimal.Decimal `json:"size"`
	Volume24h             *decimal.Decimal `json:"volume_24h"`
	Turnover24h           *decimal.Decimal `json:"turnover_24h"`
	Timestamp             int64            `json:"timestamp"`
}

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type OrderType string

const (
	LimitOrder      OrderType = "limit_order"
	MarketOrder     OrderType = "market_order"
	StopLimitOrder  OrderType = "stop_limit_order"
	StopMarketOrder OrderType = "stop_market_order"
)

type TimeInForce string

const (
	GTC TimeInForce = "gtc"
	IOC TimeInForce = "ioc"
	FOK TimeInForce = "fok"
)

// OrderState is the venue's order lifecycle vocabulary.
type OrderState string

const (
	OrderOpen      OrderState = "open"
	OrderPending   OrderState = "pending"
	OrderClosed    OrderState = "closed"
	OrderCancelled OrderState = "cancelled"
)

// CreateOrderRequest is the body of POST /v2/orders.
type CreateOrderRequest struct {
	ProductID     int64       `json:"product_id"`
	ProductSymbol string      `json:"product_symbol"`
	LimitPrice    *string     `json:"limit_price,omitempty"`
	Size          int64       `json:"size"`
	Side          Side        `json:"side"`
	OrderType     OrderType   `json:"order_type"`
	TimeInForce   TimeInForce `json:"time_in_force,omitempty"`
	PostOnly      bool        `json:"post_only"`
	ReduceOnly    bool        `json:"reduce_only"`
	StopOrderType *string     `json:"stop_order_type,omitempty"`
	StopPrice     *string     `json:"stop_price,omitempty"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
}

// ModifyOrderRequest is the body of PUT /v2/orders.
type ModifyOrderRequest struct {
	ID         string  `json:"id"`
	ProductID  int64   `json:"product_id"`
	LimitPrice *string `json:"limit_price,omitempty"`
	Size       *int64  `json:"size,omitempty"`
}

// Order is the venue's view of an order.
type Order struct {
	ID            string           `json:"id"`
	ClientOrderID string           `json:"client_order_id"`
	ProductID     int64            `json:"product_id"`
	ProductSymbol string           `json:"product_symbol"`
	LimitPrice    *decimal.Decimal `json:"limit_price"`
	AvgFillPrice  *decimal.Decimal `json:"avg_fill_price"`
	Size          int64            `json:"size"`
	UnfilledSize  int64            `json:"unfilled_size"`
	Side          Side             `json:"side"`
	OrderType     OrderType        `json:"order_type"`
	State         OrderState       `json:"state"`
	CreatedAt     string           `json:"created_at"`
	Commission    *decimal.Decimal `json:"commission"`
}

type cancelOrderResult struct {
	OrderID string `json:"order_id"`
	Success bool   `json:"success"`
}

// Position is an open position. Size is signed: positive long, negative short.
type Position struct {
	ProductID        int64            `json:"product_id"`
	ProductSymbol    string           `json:"product_symbol"`
	Size             int64            `json:"size"`
	EntryPrice       *decimal.Decimal `json:"entry_price"`
	Margin           decimal.Decimal  `json:"margin"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price"`
	UnrealizedPnl    decimal.Decimal  `json:"unrealized_pnl"`
	RealizedPnl      decimal.Decimal  `json:"realized_pnl"`
	RealizedCashflow decimal.Decimal  `json:"realized_cashflow"`
}

// Balance is a single wallet balance entry.
type Balance struct {
	AssetID          int64           `json:"asset_id"`
	AssetSymbol      string          `json:"asset_symbol"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	OrderMargin      decimal.Decimal `json:"order_margin"`
	PositionMargin   decimal.Decimal `json:"position_margin"`
	Commission       decimal.Decimal `json:"commission"`
}

type Profile struct {
	ID              int64  `json:"id"`
	Email           string `json:"email"`
	KYCStatus       string `json:"kyc_status"`
	DefaultCurrency string `json:"default_currency"`
}
