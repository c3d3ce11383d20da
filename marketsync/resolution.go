package marketsync

// Resolution maps a logical timeframe token to the venue's resolution
// vocabulary. Unknown tokens fall back to the finest resolution.
func Resolution(timeframe string) string {
	switch timeframe {
	case "1m":
		return "1"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "30m":
		return "30"
	case "1h":
		return "60"
	case "4h":
		return "240"
	case "1d":
		return "D"
	default:
		return "1"
	}
}
