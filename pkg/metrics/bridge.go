package metrics

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	EXECUTION_TTL = time.Hour
	METER_NAME    = "phorus"
)

// BridgeMetrics records quote and execution outcomes. A nil *BridgeMetrics
// records nothing.
type BridgeMetrics struct {
	quotesCounter       metric.Int64Counter
	quoteErrorsCounter  metric.Int64Counter
	staleCounter        metric.Int64Counter
	approvalsCounter    metric.Int64Counter
	executionsCounter   metric.Int64Counter
	executionHistogram  metric.Float64Histogram
	executionStartCache *ttlcache.Cache[string, time.Time]
}

// NewBridgeMetrics initializes the quote and execution instruments.
func NewBridgeMetrics(meter metric.Meter) (*BridgeMetrics, error) {
	quotesCounter, err := meter.Int64Counter(
		"bridge.Quotes",
		metric.WithDescription("Quotes fetched, by routing strategy"),
	)
	if err != nil {
		return nil, err
	}
	quoteErrorsCounter, err := meter.Int64Counter(
		"bridge.QuoteErrors",
		metric.WithDescription("Failed quote fetch cycles, by error kind"),
	)
	if err != nil {
		return nil, err
	}
	staleCounter, err := meter.Int64Counter(
		"bridge.StaleResults",
		metric.WithDescription("Asynchronous results discarded because a newer cycle superseded them"),
	)
	if err != nil {
		return nil, err
	}
	approvalsCounter, err := meter.Int64Counter(
		"bridge.Approvals",
		metric.WithDescription("Submitted approval transactions"),
	)
	if err != nil {
		return nil, err
	}
	executionsCounter, err := meter.Int64Counter(
		"bridge.Executions",
		metric.WithDescription("Bridge executions, by outcome"),
	)
	if err != nil {
		return nil, err
	}
	executionHistogram, err := meter.Float64Histogram("bridge.ExecutionTime")
	if err != nil {
		return nil, err
	}

	return &BridgeMetrics{
		quotesCounter:      quotesCounter,
		quoteErrorsCounter: quoteErrorsCounter,
		staleCounter:       staleCounter,
		approvalsCounter:   approvalsCounter,
		executionsCounter:  executionsCounter,
		executionHistogram: executionHistogram,
		executionStartCache: ttlcache.New(
			ttlcache.WithTTL[string, time.Time](EXECUTION_TTL),
		),
	}, nil
}

// NewGlobalBridgeMetrics uses the meter of the global otel provider.
func NewGlobalBridgeMetrics() (*BridgeMetrics, error) {
	return NewBridgeMetrics(otel.GetMeterProvider().Meter(METER_NAME))
}

func (m *BridgeMetrics) QuoteFetched(strategy string) {
	if m == nil {
		return
	}
	m.quotesCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

func (m *BridgeMetrics) QuoteFailed(kind string) {
	if m == nil {
		return
	}
	m.quoteErrorsCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *BridgeMetrics) StaleDiscarded(source string) {
	if m == nil {
		return
	}
	m.staleCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *BridgeMetrics) ApprovalSubmitted() {
	if m == nil {
		return
	}
	m.approvalsCounter.Add(context.Background(), 1)
}

func (m *BridgeMetrics) StartExecution(sessionID string) {
	if m == nil {
		return
	}
	m.executionStartCache.Set(sessionID, time.Now(), ttlcache.DefaultTTL)
}

func (m *BridgeMetrics) EndExecution(sessionID, outcome string) {
	if m == nil {
		return
	}
	m.executionsCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	startTime := m.executionStartCache.Get(sessionID)
	if startTime == nil {
		log.Warn().Msgf("Execution start time for session %s not found", sessionID)
		return
	}
	m.executionStartCache.Delete(sessionID)
	m.executionHistogram.Record(context.Background(), time.Since(startTime.Value()).Seconds())
}
