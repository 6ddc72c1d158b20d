package catalog

import (
	"fmt"
	"math"
)

// Quote is the billable shape of a generation request against a backend.
type Quote struct {
	// Seconds is the duration actually dispatched per provider call, capped
	// at the backend maximum.
	Seconds int
	USD     float64
	Credits int64
}

// QuoteSingleCall prices one capped provider call: dispatched seconds are
// min(requested, backend max) and the bill covers exactly those seconds.
func QuoteSingleCall(b Backend, requestedSeconds int, creditUnitUSD float64) (Quote, error) {
	if requestedSeconds <= 0 {
		return Quote{}, fmt.Errorf("requested duration must be positive, got %d", requestedSeconds)
	}
	seconds := requestedSeconds
	if seconds > b.MaxSeconds {
		seconds = b.MaxSeconds
	}
	usd := b.PerSecondUSD * float64(seconds)
	return Quote{
		Seconds: seconds,
		USD:     usd,
		Credits: CreditsForUSD(usd, creditUnitUSD),
	}, nil
}

// ChunkedCalls returns how many provider calls a full render of the
// requested duration needs, given the backend's per-call maximum.
func ChunkedCalls(b Backend, requestedSeconds int) int {
	if requestedSeconds <= 0 {
		return 0
	}
	return (requestedSeconds + b.MaxSeconds - 1) / b.MaxSeconds
}

// ChunkedUSD prices a full render across multiple calls. Each call is
// billed at the backend maximum, not pro-rated: the backend cannot natively
// render longer than its max and charges per call.
func ChunkedUSD(b Backend, requestedSeconds int) float64 {
	calls := ChunkedCalls(b, requestedSeconds)
	return b.PerSecondUSD * float64(b.MaxSeconds) * float64(calls)
}

// CreditsForUSD converts a USD amount to billing credits, rounding up so
// fractional-cent provider costs are never under-charged. Amounts are
// compared in micro-USD to keep float noise out of the rounding.
func CreditsForUSD(usd, creditUnitUSD float64) int64 {
	if usd <= 0 {
		return 0
	}
	usdMicros := int64(math.Round(usd * 1e6))
	unitMicros := int64(math.Round(creditUnitUSD * 1e6))
	if unitMicros <= 0 {
		return 0
	}
	return (usdMicros + unitMicros - 1) / unitMicros
}
