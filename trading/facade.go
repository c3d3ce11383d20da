package trading

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/deltakit/delta-trade-go/delta"
	"github.com/deltakit/delta-trade-go/delta/stream"
)

// Facade translates domain-level order, position and account intents into
// venue wire calls and normalizes responses and errors. Validation and
// authentication failures are detected locally, before any network call.
type Facade struct {
	logger stream.Logger
	api    delta.Client

	mu         sync.Mutex
	productIDs map[string]int64
}

// NewFacade builds a Facade over the given REST client. A nil logger falls
// back to the default one.
func NewFacade(api delta.Client, logger stream.Logger) *Facade {
	if logger == nil {
		logger = stream.DefaultLogger()
	}
	return &Facade{
		logger:     logger,
		api:        api,
		productIDs: make(map[string]int64),
	}
}

// PlaceOrder validates and submits an order. The returned order carries the
// venue-assigned ID, status and filled quantity.
func (f *Facade) PlaceOrder(order Order) (*Order, error) {
	if !order.Quantity.IsPositive() {
		return nil, &delta.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	if (order.Type == Limit || order.Type == StopLimit) && order.Price == nil {
		return nil, &delta.ValidationError{Field: "price", Reason: "limit orders require a price"}
	}
	if (order.Type == StopMarket || order.Type == StopLimit) && order.StopPrice == nil {
		return nil, &delta.ValidationError{Field: "stop_price", Reason: "stop orders require a trigger price"}
	}

	req := delta.CreateOrderRequest{
		ProductID:     f.productID(order.Symbol),
		ProductSymbol: order.Symbol,
		Size:          order.Quantity.IntPart(),
		Side:          wireSide(order.Side),
		OrderType:     wireOrderType(order.Type),
		TimeInForce:   delta.GTC,
		ClientOrderID: order.ID,
	}
	if order.Price != nil && (order.Type == Limit || order.Type == StopLimit) {
		p := order.Price.String()
		req.LimitPrice = &p
	}
	if order.Type == StopMarket || order.Type == StopLimit {
		sp := order.StopPrice.String()
		st := "stop_loss_order"
		req.StopPrice = &sp
		req.StopOrderType = &st
	}

	placed, err := f.api.PlaceOrder(req)
	if err != nil {
		return nil, errors.Wrap(err, "place order")
	}
	return orderFromWire(placed, order.Type), nil
}

// CancelOrder cancels an open order on the given symbol.
func (f *Facade) CancelOrder(symbol, orderID string) error {
	if err := f.api.CancelOrder(f.productID(symbol), orderID); err != nil {
		return errors.Wrap(err, "cancel order")
	}
	return nil
}

// ModifyOrder edits the price and/or quantity of an open order.
func (f *Facade) ModifyOrder(symbol, orderID string, mod OrderModification) (*Order, error) {
	req := delta.ModifyOrderRequest{
		ID:        orderID,
		ProductID: f.productID(symbol),
	}
	if mod.Price != nil {
		p := mod.Price.String()
		req.LimitPrice = &p
	}
	if mod.Quantity != nil {
		size := mod.Quantity.IntPart()
		req.Size = &size
	}

	modified, err := f.api.ModifyOrder(req)
	if err != nil {
		return nil, errors.Wrap(err, "modify order")
	}
	return orderFromWire(modified, Limit), nil
}

// GetOrder fetches a single order by its venue id.
func (f *Facade) GetOrder(orderID string) (*Order, error) {
	wire, err := f.api.GetOrder(orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return orderFromWire(wire, Market), nil
}

// GetOptionChain returns the live option contracts on the given underlying,
// sorted by strike.
func (f *Facade) GetOptionChain(underlying string) ([]OptionContract, error) {
	products, err := f.api.GetOptionChain()
	if err != nil {
		return nil, errors.Wrap(err, "get option chain")
	}

	contracts := make([]OptionContract, 0, len(products))
	for _, p := range products {
		if p.UnderlyingAsset.Symbol != underlying {
			continue
		}
		contract := OptionContract{Symbol: p.Symbol, Underlying: p.UnderlyingAsset.Symbol}
		switch p.ContractType {
		case "call_options":
			contract.Type = CallOption
		case "put_options":
			contract.Type = PutOption
		default:
			continue
		}
		if p.StrikePrice != nil {
			contract.Strike = *p.StrikePrice
		}
		if p.Expiry != nil {
			contract.Expiry = *p.Expiry
		}
		contracts = append(contracts, contract)
	}
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].Strike.LessThan(contracts[j].Strike) })
	return contracts, nil
}

// GetOption returns the single contract with the given symbol from the
// underlying's chain.
func (f *Facade) GetOption(underlying, symbol string) (*OptionContract, error) {
	chain, err := f.GetOptionChain(underlying)
	if err != nil {
		return nil, err
	}
	for i := range chain {
		if chain[i].Symbol == symbol {
			return &chain[i], nil
		}
	}
	return nil, errors.Errorf("option %s not found on %s", symbol, underlying)
}

// GetPositions returns the account's open positions.
func (f *Facade) GetPositions() ([]Position, error) {
	wire, err := f.api.GetPositions()
	if err != nil {
		return nil, errors.Wrap(err, "get positions")
	}

	positions := make([]Position, 0, len(wire))
	now := time.Now()
	for _, p := range wire {
		position := Position{
			Symbol:        p.ProductSymbol,
			Quantity:      decimal.NewFromInt(p.Size),
			UnrealizedPnL: p.UnrealizedPnl,
			RealizedPnL:   p.RealizedPnl,
			Timestamp:     now,
		}
		if p.EntryPrice != nil {
			position.AveragePrice = *p.EntryPrice
		}
		positions = append(positions, position)
	}
	return positions, nil
}

// StreamPositions re-fetches the position list every interval and emits it.
// Fetch failures emit an empty list rather than terminating the stream. The
// returned cancel func stops the polling.
func (f *Facade) StreamPositions(interval time.Duration) (<-chan []Position, func()) {
	out := make(chan []Position, 1)
	done := make(chan struct{})

	emit := func() {
		positions, err := f.GetPositions()
		if err != nil {
			f.logger.Warnf("trading: position fetch failed: %v", err)
			positions = []Position{}
		}
		select {
		case out <- positions:
		default:
			select {
			case <-out:
			default:
			}
			select {
			case out <- positions:
			default:
			}
		}
	}

	go func() {
		defer close(out)
		emit()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				emit()
			}
		}
	}()

	var once sync.Once
	return out, func() { once.Do(func() { close(done) }) }
}

// ChangeMargin adds or removes isolated margin on the symbol's position.
func (f *Facade) ChangeMargin(symbol string, deltaMargin decimal.Decimal) error {
	if _, err := f.api.ChangeMargin(f.productID(symbol), deltaMargin); err != nil {
		return errors.Wrap(err, "change margin")
	}
	return nil
}

// CloseAllPositions closes every open position at market.
func (f *Facade) CloseAllPositions() error {
	if err := f.api.CloseAllPositions(); err != nil {
		return errors.Wrap(err, "close all positions")
	}
	return nil
}

// GetAccountInfo returns the margin account summary. When unauthenticated or
// on any fetch error it degrades to the fixed demo account instead of
// failing: account data never blocks the consumer.
func (f *Facade) GetAccountInfo() *Account {
	balances, err := f.api.GetBalances()
	if err != nil {
		if !errors.Is(err, delta.ErrNotAuthenticated) {
			f.logger.Warnf("trading: balance fetch failed, using demo account: %v", err)
		}
		return DemoAccount()
	}

	for _, b := range balances {
		if b.AssetSymbol != "USDT" {
			continue
		}
		return &Account{
			ID:              "user",
			Balance:         b.Balance,
			AvailableMargin: b.AvailableBalance,
			UsedMargin:      b.OrderMargin.Add(b.PositionMargin),
		}
	}
	return DemoAccount()
}

// productID resolves the venue's numeric product id for a symbol, caching the
// result. Resolution failures fall back to 0 and are logged; the venue call
// will then fail with its own error.
func (f *Facade) productID(symbol string) int64 {
	f.mu.Lock()
	if id, ok := f.productIDs[symbol]; ok {
		f.mu.Unlock()
		return id
	}
	f.mu.Unlock()

	product, err := f.api.GetProduct(symbol)
	if err != nil {
		f.logger.Warnf("trading: product lookup for %s failed: %v", symbol, err)
		return 0
	}

	f.mu.Lock()
	f.productIDs[symbol] = product.ID
	f.mu.Unlock()
	return product.ID
}

func wireSide(s Side) delta.Side {
	if s == Sell {
		return delta.Sell
	}
	return delta.Buy
}

func wireOrderType(t OrderType) delta.OrderType {
	switch t {
	case Limit:
		return delta.LimitOrder
	case StopMarket:
		return delta.StopMarketOrder
	case StopLimit:
		return delta.StopLimitOrder
	default:
		return delta.MarketOrder
	}
}

func domainSide(s delta.Side) Side {
	if s == delta.Sell {
		return Sell
	}
	return Buy
}

func domainOrderType(t delta.OrderType) OrderType {
	switch t {
	case delta.LimitOrder:
		return Limit
	case delta.StopMarketOrder:
		return StopMarket
	case delta.StopLimitOrder:
		return StopLimit
	case delta.MarketOrder:
		return Market
	}
	return Market
}

func domainStatus(state delta.OrderState, filled, size int64) OrderStatus {
	switch state {
	case delta.OrderOpen:
		if filled > 0 && filled < size {
			return StatusPartiallyFilled
		}
		return StatusOpen
	case delta.OrderClosed:
		return StatusFilled
	case delta.OrderCancelled:
		return StatusCancelled
	case delta.OrderPending:
		return StatusPending
	}
	return StatusPending
}

func orderFromWire(o *delta.Order, fallbackType OrderType) *Order {
	filled := o.Size - o.UnfilledSize

	order := &Order{
		ID:             o.ID,
		Symbol:         o.ProductSymbol,
		Side:           domainSide(o.Side),
		Type:           fallbackType,
		Quantity:       decimal.NewFromInt(o.Size),
		FilledQuantity: decimal.NewFromInt(filled),
		Status:         domainStatus(o.State, filled, o.Size),
		Timestamp:      time.Now(),
	}
	if o.OrderType != "" {
		order.Type = domainOrderType(o.OrderType)
	}
	if o.LimitPrice != nil {
		p := *o.LimitPrice
		order.Price = &p
	}
	return order
}
