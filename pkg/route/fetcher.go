package route

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"phorus/pkg/metrics"
	"phorus/pkg/types"
)

// Quoter acquires one quote for an intent. Service implements it.
type Quoter interface {
	FetchQuote(ctx context.Context, intent types.TransferIntent) (*types.Quote, error)
}

// Result is delivered once per fetch that was still current when it finished.
type Result struct {
	Version uint64
	Intent  types.TransferIntent
	Quote   *types.Quote
	Err     error
}

// Fetcher debounces quote requests. Every Request supersedes the previous one:
// a pending timer is stopped, an in-flight fetch is cancelled, and any result
// that arrives for an older version is dropped.
type Fetcher struct {
	quoter  Quoter
	delay   time.Duration
	deliver func(Result)
	metrics *metrics.BridgeMetrics

	mu      sync.Mutex
	version uint64
	timer   *time.Timer
	cancel  context.CancelFunc
}

// NewFetcher creates a debounced fetcher that calls deliver with every
// result that is still current when it arrives.
func NewFetcher(quoter Quoter, delay time.Duration, deliver func(Result), m *metrics.BridgeMetrics) *Fetcher {
	return &Fetcher{
		quoter:  quoter,
		delay:   delay,
		deliver: deliver,
		metrics: m,
	}
}

// Request schedules a fetch for intent and returns its version.
func (f *Fetcher) Request(intent types.TransferIntent) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopLocked()
	f.version++
	version := f.version
	f.timer = time.AfterFunc(f.delay, func() { f.run(version, intent) })
	return version
}

// Cancel drops any pending or in-flight fetch.
func (f *Fetcher) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopLocked()
	f.version++
}

// Current returns the version of the latest request.
func (f *Fetcher) Current() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func (f *Fetcher) stopLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *Fetcher) run(version uint64, intent types.TransferIntent) {
	f.mu.Lock()
	if version != f.version {
		f.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.timer = nil
	f.mu.Unlock()

	quote, err := f.quoter.FetchQuote(ctx, intent)

	f.mu.Lock()
	current := version == f.version
	if current {
		f.cancel = nil
	}
	f.mu.Unlock()
	cancel()

	if !current {
		log.Debug().Msgf("Discarding quote result for superseded request %d", version)
		f.metrics.StaleDiscarded("quote")
		return
	}

	f.deliver(Result{
		Version: version,
		Intent:  intent,
		Quote:   quote,
		Err:     err,
	})
}
