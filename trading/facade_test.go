package trading

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltakit/delta-trade-go/delta"
)

// stubAPI overrides the endpoints a test cares about; anything else panics.
type stubAPI struct {
	delta.Client
	getProduct     func(symbol string) (*delta.Product, error)
	getOptionChain func() ([]delta.Product, error)
	placeOrder     func(req delta.CreateOrderRequest) (*delta.Order, error)
	cancelOrder    func(productID int64, orderID string) error
	modifyOrder    func(req delta.ModifyOrderRequest) (*delta.Order, error)
	getOrder       func(orderID string) (*delta.Order, error)
	getPositions   func() ([]delta.Position, error)
	getBalances    func() ([]delta.Balance, error)
}

func (s *stubAPI) GetProduct(symbol string) (*delta.Product, error) { return s.getProduct(symbol) }
func (s *stubAPI) GetOptionChain() ([]delta.Product, error)         { return s.getOptionChain() }
func (s *stubAPI) GetOrder(orderID string) (*delta.Order, error)    { return s.getOrder(orderID) }
func (s *stubAPI) PlaceOrder(req delta.CreateOrderRequest) (*delta.Order, error) {
	return s.placeOrder(req)
}
func (s *stubAPI) CancelOrder(productID int64, orderID string) error {
	return s.cancelOrder(productID, orderID)
}
func (s *stubAPI) ModifyOrder(req delta.ModifyOrderRequest) (*delta.Order, error) {
	return s.modifyOrder(req)
}
func (s *stubAPI) GetPositions() ([]delta.Position, error) { return s.getPositions() }
func (s *stubAPI) GetBalances() ([]delta.Balance, error)   { return s.getBalances() }

func btcProduct(symbol string) (*delta.Product, error) {
	return &delta.Product{ID: 27, Symbol: symbol}, nil
}

func TestPlaceOrderValidation(t *testing.T) {
	var called bool
	api := &stubAPI{placeOrder: func(delta.CreateOrderRequest) (*delta.Order, error) {
		called = true
		return nil, nil
	}}
	f := NewFacade(api, nil)

	// Zero quantity is rejected before any wire call.
	_, err := f.PlaceOrder(NewOrder("BTCUSD", Buy, Market, decimal.Zero, nil))
	var validationErr *delta.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "quantity", validationErr.Field)

	_, err = f.PlaceOrder(NewOrder("BTCUSD", Buy, Market, decimal.NewFromInt(-1), nil))
	require.ErrorAs(t, err, &validationErr)

	// Limit and stop-limit orders need a price.
	_, err = f.PlaceOrder(NewOrder("BTCUSD", Buy, Limit, decimal.NewFromInt(1), nil))
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "price", validationErr.Field)

	_, err = f.PlaceOrder(NewOrder("BTCUSD", Buy, StopLimit, decimal.NewFromInt(1), nil))
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "price", validationErr.Field)

	// Stop orders need a trigger price.
	price := decimal.NewFromInt(42000)
	stopLimit := NewOrder("BTCUSD", Buy, StopLimit, decimal.NewFromInt(1), &price)
	_, err = f.PlaceOrder(stopLimit)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "stop_price", validationErr.Field)

	_, err = f.PlaceOrder(NewOrder("BTCUSD", Sell, StopMarket, decimal.NewFromInt(1), nil))
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "stop_price", validationErr.Field)

	assert.False(t, called)
}

func TestPlaceOrderStopWireMapping(t *testing.T) {
	var gotReq delta.CreateOrderRequest
	api := &stubAPI{
		getProduct: btcProduct,
		placeOrder: func(req delta.CreateOrderRequest) (*delta.Order, error) {
			gotReq = req
			return &delta.Order{ID: "venue-3", Size: 2, UnfilledSize: 2, State: delta.OrderPending}, nil
		},
	}
	f := NewFacade(api, nil)

	price := decimal.NewFromInt(42000)
	trigger := decimal.NewFromInt(41500)
	order := NewOrder("BTCUSD", Sell, StopLimit, decimal.NewFromInt(2), &price)
	order.StopPrice = &trigger
	placed, err := f.PlaceOrder(order)
	require.NoError(t, err)

	assert.Equal(t, delta.StopLimitOrder, gotReq.OrderType)
	require.NotNil(t, gotReq.LimitPrice)
	assert.Equal(t, "42000", *gotReq.LimitPrice)
	require.NotNil(t, gotReq.StopPrice)
	assert.Equal(t, "41500", *gotReq.StopPrice)
	require.NotNil(t, gotReq.StopOrderType)
	assert.Equal(t, "stop_loss_order", *gotReq.StopOrderType)
	assert.Equal(t, StatusPending, placed.Status)

	// Stop-market carries the trigger but no limit price.
	market := NewOrder("BTCUSD", Sell, StopMarket, decimal.NewFromInt(2), nil)
	market.StopPrice = &trigger
	_, err = f.PlaceOrder(market)
	require.NoError(t, err)
	assert.Equal(t, delta.StopMarketOrder, gotReq.OrderType)
	assert.Nil(t, gotReq.LimitPrice)
	require.NotNil(t, gotReq.StopPrice)
}

func TestPlaceOrderWireMapping(t *testing.T) {
	var gotReq delta.CreateOrderRequest
	api := &stubAPI{
		getProduct: btcProduct,
		placeOrder: func(req delta.CreateOrderRequest) (*delta.Order, error) {
			gotReq = req
			return &delta.Order{
				ID:            "venue-1",
				ProductSymbol: "BTCUSD",
				Size:          5,
				UnfilledSize:  2,
				Side:          delta.Sell,
				OrderType:     delta.LimitOrder,
				State:         delta.OrderOpen,
			}, nil
		},
	}
	f := NewFacade(api, nil)

	price := decimal.NewFromFloat(42000.5)
	order := NewOrder("BTCUSD", Sell, Limit, decimal.NewFromInt(5), &price)
	placed, err := f.PlaceOrder(order)
	require.NoError(t, err)

	assert.Equal(t, int64(27), gotReq.ProductID)
	assert.Equal(t, "BTCUSD", gotReq.ProductSymbol)
	assert.Equal(t, int64(5), gotReq.Size)
	assert.Equal(t, delta.Sell, gotReq.Side)
	assert.Equal(t, delta.LimitOrder, gotReq.OrderType)
	assert.Equal(t, delta.GTC, gotReq.TimeInForce)
	assert.Equal(t, order.ID, gotReq.ClientOrderID)
	require.NotNil(t, gotReq.LimitPrice)
	assert.Equal(t, "42000.5", *gotReq.LimitPrice)

	assert.Equal(t, "venue-1", placed.ID)
	assert.Equal(t, Sell, placed.Side)
	assert.Equal(t, Limit, placed.Type)
	assert.Equal(t, "3", placed.FilledQuantity.String())
	assert.Equal(t, StatusPartiallyFilled, placed.Status)
}

func TestPlaceOrderMarketHasNoPrice(t *testing.T) {
	var gotReq delta.CreateOrderRequest
	api := &stubAPI{
		getProduct: btcProduct,
		placeOrder: func(req delta.CreateOrderRequest) (*delta.Order, error) {
			gotReq = req
			return &delta.Order{ID: "venue-2", Size: 1, UnfilledSize: 0, State: delta.OrderClosed}, nil
		},
	}
	f := NewFacade(api, nil)

	price := decimal.NewFromInt(42000)
	// A market order may carry an indicative price; it must not go to the wire.
	placed, err := f.PlaceOrder(NewOrder("BTCUSD", Buy, Market, decimal.NewFromInt(1), &price))
	require.NoError(t, err)
	assert.Nil(t, gotReq.LimitPrice)
	assert.Equal(t, delta.MarketOrder, gotReq.OrderType)
	assert.Equal(t, StatusFilled, placed.Status)
	assert.Equal(t, "1", placed.FilledQuantity.String())
}

func TestPlaceOrderVenueErrorWrapped(t *testing.T) {
	venueErr := &delta.VenueError{Code: "insufficient_margin"}
	api := &stubAPI{
		getProduct: btcProduct,
		placeOrder: func(delta.CreateOrderRequest) (*delta.Order, error) { return nil, venueErr },
	}
	f := NewFacade(api, nil)

	_, err := f.PlaceOrder(NewOrder("BTCUSD", Buy, Market, decimal.NewFromInt(1), nil))
	var gotVenueErr *delta.VenueError
	require.ErrorAs(t, err, &gotVenueErr)
	assert.Equal(t, "insufficient_margin", gotVenueErr.Code)
}

func TestCancelOrderResolvesProduct(t *testing.T) {
	lookups := 0
	api := &stubAPI{
		getProduct: func(symbol string) (*delta.Product, error) {
			lookups++
			return btcProduct(symbol)
		},
		cancelOrder: func(productID int64, orderID string) error {
			assert.Equal(t, int64(27), productID)
			assert.Equal(t, "venue-1", orderID)
			return nil
		},
	}
	f := NewFacade(api, nil)

	require.NoError(t, f.CancelOrder("BTCUSD", "venue-1"))
	require.NoError(t, f.CancelOrder("BTCUSD", "venue-1"))
	// Second cancel hits the product id cache.
	assert.Equal(t, 1, lookups)
}

func TestModifyOrder(t *testing.T) {
	var gotReq delta.ModifyOrderRequest
	api := &stubAPI{
		getProduct: btcProduct,
		modifyOrder: func(req delta.ModifyOrderRequest) (*delta.Order, error) {
			gotReq = req
			return &delta.Order{ID: "venue-1", Size: 10, UnfilledSize: 10, State: delta.OrderOpen}, nil
		},
	}
	f := NewFacade(api, nil)

	price := decimal.NewFromInt(43000)
	quantity := decimal.NewFromInt(10)
	modified, err := f.ModifyOrder("BTCUSD", "venue-1", OrderModification{Price: &price, Quantity: &quantity})
	require.NoError(t, err)

	assert.Equal(t, "venue-1", gotReq.ID)
	assert.Equal(t, int64(27), gotReq.ProductID)
	require.NotNil(t, gotReq.LimitPrice)
	assert.Equal(t, "43000", *gotReq.LimitPrice)
	require.NotNil(t, gotReq.Size)
	assert.Equal(t, int64(10), *gotReq.Size)
	assert.Equal(t, StatusOpen, modified.Status)
}

func TestGetPositionsMapping(t *testing.T) {
	entry := decimal.NewFromInt(41000)
	api := &stubAPI{getPositions: func() ([]delta.Position, error) {
		return []delta.Position{
			{ProductSymbol: "BTCUSD", Size: 3, EntryPrice: &entry, UnrealizedPnl: decimal.NewFromInt(150)},
			{ProductSymbol: "ETHUSD", Size: -2},
		}, nil
	}}
	f := NewFacade(api, nil)

	positions, err := f.GetPositions()
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "BTCUSD", positions[0].Symbol)
	assert.Equal(t, "3", positions[0].Quantity.String())
	assert.Equal(t, "41000", positions[0].AveragePrice.String())
	assert.Equal(t, "150", positions[0].UnrealizedPnL.String())
	// Shorts keep their sign.
	assert.Equal(t, "-2", positions[1].Quantity.String())
}

func TestStreamPositions(t *testing.T) {
	var mu sync.Mutex
	calls, failing := 0, false
	api := &stubAPI{getPositions: func() ([]delta.Position, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls > 1 && failing {
			return nil, errors.New("venue is down")
		}
		return []delta.Position{{ProductSymbol: "BTCUSD", Size: 1}}, nil
	}}
	f := NewFacade(api, nil)

	ch, cancel := f.StreamPositions(5 * time.Millisecond)
	defer cancel()

	first := <-ch
	require.Len(t, first, 1)
	mu.Lock()
	failing = true
	mu.Unlock()

	// Failed polls emit an empty list instead of ending the stream, and the
	// stream recovers once the venue does.
	var sawEmpty, sawRecovered bool
	deadline := time.After(time.Second)
	for !(sawEmpty && sawRecovered) {
		select {
		case positions := <-ch:
			if len(positions) == 0 {
				sawEmpty = true
				mu.Lock()
				failing = false
				mu.Unlock()
			} else if sawEmpty {
				sawRecovered = true
			}
		case <-deadline:
			t.Fatalf("stream did not recover (empty=%v recovered=%v)", sawEmpty, sawRecovered)
		}
	}

	cancel()
	cancel() // second cancel is a no-op
}

func TestGetAccountInfoUnauthenticated(t *testing.T) {
	api := &stubAPI{getBalances: func() ([]delta.Balance, error) {
		return nil, delta.ErrNotAuthenticated
	}}
	f := NewFacade(api, nil)

	account := f.GetAccountInfo()
	assert.Equal(t, "demo", account.ID)
	assert.Equal(t, "100000", account.Balance.String())
	assert.Equal(t, "100000", account.AvailableMargin.String())
	assert.True(t, account.UsedMargin.IsZero())
}

func TestGetAccountInfoVenueErrorFallsBackToDemo(t *testing.T) {
	api := &stubAPI{getBalances: func() ([]delta.Balance, error) {
		return nil, &delta.VenueError{Code: "internal"}
	}}
	f := NewFacade(api, nil)

	assert.Equal(t, "demo", f.GetAccountInfo().ID)
}

func TestGetAccountInfoUSDTBalance(t *testing.T) {
	api := &stubAPI{getBalances: func() ([]delta.Balance, error) {
		return []delta.Balance{
			{AssetSymbol: "BTC", Balance: decimal.NewFromInt(1)},
			{
				AssetSymbol:      "USDT",
				Balance:          decimal.NewFromInt(5000),
				AvailableBalance: decimal.NewFromInt(4000),
				OrderMargin:      decimal.NewFromInt(600),
				PositionMargin:   decimal.NewFromInt(400),
			},
		}, nil
	}}
	f := NewFacade(api, nil)

	account := f.GetAccountInfo()
	assert.Equal(t, "user", account.ID)
	assert.Equal(t, "5000", account.Balance.String())
	assert.Equal(t, "4000", account.AvailableMargin.String())
	assert.Equal(t, "1000", account.UsedMargin.String())
}

func TestGetAccountInfoNoUSDTBalance(t *testing.T) {
	api := &stubAPI{getBalances: func() ([]delta.Balance, error) {
		return []delta.Balance{{AssetSymbol: "BTC", Balance: decimal.NewFromInt(1)}}, nil
	}}
	f := NewFacade(api, nil)

	assert.Equal(t, "demo", f.GetAccountInfo().ID)
}

func TestProductLookupFailureFallsBackToZero(t *testing.T) {
	var gotReq delta.CreateOrderRequest
	api := &stubAPI{
		getProduct: func(string) (*delta.Product, error) { return nil, errors.New("not found") },
		placeOrder: func(req delta.CreateOrderRequest) (*delta.Order, error) {
			gotReq = req
			return &delta.Order{ID: "venue-1", Size: 1, UnfilledSize: 1, State: delta.OrderOpen}, nil
		},
	}
	f := NewFacade(api, nil)

	_, err := f.PlaceOrder(NewOrder("BTCUSD", Buy, Market, decimal.NewFromInt(1), nil))
	require.NoError(t, err)
	// The symbol still identifies the product when the id lookup fails.
	assert.Zero(t, gotReq.ProductID)
	assert.Equal(t, "BTCUSD", gotReq.ProductSymbol)
}

func TestDomainStatusMapping(t *testing.T) {
	assert.Equal(t, StatusOpen, domainStatus(delta.OrderOpen, 0, 5))
	assert.Equal(t, StatusPartiallyFilled, domainStatus(delta.OrderOpen, 2, 5))
	assert.Equal(t, StatusOpen, domainStatus(delta.OrderOpen, 5, 5))
	assert.Equal(t, StatusFilled, domainStatus(delta.OrderClosed, 5, 5))
	assert.Equal(t, StatusCancelled, domainStatus(delta.OrderCancelled, 0, 5))
	assert.Equal(t, StatusPending, domainStatus(delta.OrderPending, 0, 5))
	assert.Equal(t, StatusPending, domainStatus(delta.OrderState("weird"), 0, 5))
}

func optionProduct(symbol, underlying, contractType string, strike int64) delta.Product {
	s := decimal.NewFromInt(strike)
	expiry := "2026-09-26"
	return delta.Product{
		Symbol:          symbol,
		ContractType:    contractType,
		StrikePrice:     &s,
		Expiry:          &expiry,
		UnderlyingAsset: delta.Asset{Symbol: underlying},
	}
}

func TestGetOptionChain(t *testing.T) {
	api := &stubAPI{getOptionChain: func() ([]delta.Product, error) {
		return []delta.Product{
			optionProduct("C-BTC-45000", "BTC", "call_options", 45000),
			optionProduct("P-BTC-40000", "BTC", "put_options", 40000),
			optionProduct("C-ETH-3000", "ETH", "call_options", 3000),
			optionProduct("C-BTC-42000", "BTC", "call_options", 42000),
			{Symbol: "BTCUSD", ContractType: "perpetual_futures", UnderlyingAsset: delta.Asset{Symbol: "BTC"}},
		}, nil
	}}
	f := NewFacade(api, nil)

	chain, err := f.GetOptionChain("BTC")
	require.NoError(t, err)
	// Other underlyings and non-option contracts are filtered out, and the
	// chain comes back sorted by strike.
	require.Len(t, chain, 3)
	assert.Equal(t, "P-BTC-40000", chain[0].Symbol)
	assert.Equal(t, PutOption, chain[0].Type)
	assert.Equal(t, "C-BTC-42000", chain[1].Symbol)
	assert.Equal(t, CallOption, chain[1].Type)
	assert.Equal(t, "C-BTC-45000", chain[2].Symbol)
	assert.Equal(t, "40000", chain[0].Strike.String())
	assert.Equal(t, "2026-09-26", chain[0].Expiry)
	assert.Equal(t, "BTC", chain[0].Underlying)
}

func TestGetOption(t *testing.T) {
	api := &stubAPI{getOptionChain: func() ([]delta.Product, error) {
		return []delta.Product{optionProduct("C-BTC-45000", "BTC", "call_options", 45000)}, nil
	}}
	f := NewFacade(api, nil)

	contract, err := f.GetOption("BTC", "C-BTC-45000")
	require.NoError(t, err)
	assert.Equal(t, CallOption, contract.Type)

	_, err = f.GetOption("BTC", "C-BTC-50000")
	assert.Error(t, err)
}

func TestGetOrder(t *testing.T) {
	api := &stubAPI{getOrder: func(orderID string) (*delta.Order, error) {
		assert.Equal(t, "venue-1", orderID)
		return &delta.Order{
			ID:            "venue-1",
			ProductSymbol: "BTCUSD",
			Size:          4,
			UnfilledSize:  1,
			Side:          delta.Buy,
			OrderType:     delta.LimitOrder,
			State:         delta.OrderOpen,
		}, nil
	}}
	f := NewFacade(api, nil)

	order, err := f.GetOrder("venue-1")
	require.NoError(t, err)
	assert.Equal(t, Limit, order.Type)
	assert.Equal(t, "3", order.FilledQuantity.String())
	assert.Equal(t, StatusPartiallyFilled, order.Status)
}

func TestNewOrderAssignsUniqueIDs(t *testing.T) {
	a := NewOrder("BTCUSD", Buy, Market, decimal.NewFromInt(1), nil)
	b := NewOrder("BTCUSD", Buy, Market, decimal.NewFromInt(1), nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, StatusPending, a.Status)
}
