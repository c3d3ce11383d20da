package marketsync

import (
	movingaverage "github.com/RobinUS2/golang-moving-average"

	"github.com/deltakit/delta-trade-go/delta"
)

// CloseMovingAverage returns the simple moving average of the closes of the
// last window candles. It returns 0 for an empty series.
func CloseMovingAverage(candles []delta.Candle, window int) float64 {
	if len(candles) == 0 || window <= 0 {
		return 0
	}
	ma := movingaverage.New(window)
	for _, c := range candles {
		ma.Add(c.Close.InexactFloat64())
	}
	return ma.Avg()
}
