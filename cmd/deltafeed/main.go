package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/deltakit/delta-trade-go/delta"
	"github.com/deltakit/delta-trade-go/delta/stream"
	"github.com/deltakit/delta-trade-go/marketsync"
	"github.com/deltakit/delta-trade-go/trading"
)

const maWindow = 20

func main() {
	// .env is optional, real deployments use the environment directly
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("deltafeed")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetDefault("symbol", "BTCUSD")
	v.SetDefault("timeframe", "1m")
	v.SetDefault("ws_url", "wss://socket.delta.exchange")
	v.SetDefault("rest_url", "https://api.delta.exchange")
	v.SetEnvPrefix("delta")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("reading config: %v", err)
		}
	}

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer zl.Sync()
	logger := stream.ZapLogger(zl)

	api := delta.NewClient(delta.ClientOpts{
		Token:   v.GetString("api_token"),
		BaseURL: v.GetString("rest_url"),
	})
	session := stream.NewSession(
		stream.WithBaseURL(v.GetString("ws_url")),
		stream.WithLogger(logger),
	)
	synchronizer := marketsync.NewSynchronizer(api, session, logger)
	facade := trading.NewFacade(api, logger)

	symbol := v.GetString("symbol")
	timeframe := v.GetString("timeframe")

	session.Connect()
	defer session.Disconnect()

	candles, stopCandles := synchronizer.StreamCandles(symbol, timeframe)
	defer stopCandles()
	tickers, stopTickers := synchronizer.StreamTicker(symbol)
	defer stopTickers()

	account := facade.GetAccountInfo()
	fmt.Printf("account %s: balance=%s available=%s\n", account.ID, account.Balance, account.AvailableMargin)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case series, ok := <-candles:
			if !ok {
				return
			}
			if len(series) == 0 {
				continue
			}
			last := series[len(series)-1]
			fmt.Printf("%s %s: close=%s ma%d=%.2f (%d candles)\n",
				symbol, timeframe, last.Close, maWindow,
				marketsync.CloseMovingAverage(series, maWindow), len(series))
		case ticker, ok := <-tickers:
			if !ok {
				return
			}
			fmt.Printf("%s ticker: last=%s bid=%s ask=%s\n",
				ticker.Symbol, ticker.LastPrice, ticker.BidPrice, ticker.AskPrice)
		case <-sigCh:
			return
		}
	}
}
