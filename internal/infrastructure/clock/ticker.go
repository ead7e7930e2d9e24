// Package clock abstracts interval tickers so periodic workers can be driven
// deterministically in tests.
package clock

import "time"

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker with the given interval.
type TickerFactory func(interval time.Duration) Ticker

// NewTicker wraps time.NewTicker. It is the production TickerFactory.
func NewTicker(interval time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(interval)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// ManualTicker is a hand-driven ticker for tests.
type ManualTicker struct {
	ch chan time.Time
}

// NewManualTicker creates a ticker that fires only on Tick.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time, 1)}
}

// Factory returns a TickerFactory that always hands out this ticker.
func (t *ManualTicker) Factory() TickerFactory {
	return func(time.Duration) Ticker { return t }
}

// Tick fires one tick.
func (t *ManualTicker) Tick() { t.ch <- time.Now() }

func (t *ManualTicker) C() <-chan time.Time { return t.ch }
func (t *ManualTicker) Stop()               {}
