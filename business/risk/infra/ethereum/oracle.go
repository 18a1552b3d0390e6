// Package ethereum prices on-chain transfers from the node's suggested gas
// price.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	detection "github.com/fd1az/arbitrage-scanner/business/detection/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/cache"
	"github.com/fd1az/arbitrage-scanner/internal/circuitbreaker"
	"github.com/fd1az/arbitrage-scanner/internal/instrument"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

const (
	tracerName = "risk.ethereum"
	meterName  = "risk.ethereum"

	gasPriceKey = "gas_price"
)

// PriceFunc resolves the latest quote-currency price of a symbol.
type PriceFunc func(ctx context.Context, symbol instrument.Symbol) (decimal.Decimal, bool)

// Config holds configuration for the oracle.
type Config struct {
	RPCURL       string
	GasLimit     uint64        // gas charged per transfer
	CacheTTL     time.Duration // how long a gas price is reused
	MaxGasPrice  *big.Int      // wei; higher suggestions are clamped
	NativeSymbol instrument.Symbol
	NativePrice  decimal.Decimal // fallback when no live price is known
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(rpcURL string) Config {
	return Config{
		RPCURL:       rpcURL,
		GasLimit:     65000,
		CacheTTL:     12 * time.Second,
		MaxGasPrice:  big.NewInt(500_000_000_000),
		NativeSymbol: instrument.NewSymbol("ETH", "USDT"),
	}
}

// GweiToWei converts a gwei amount, truncating sub-wei fractions.
func GweiToWei(gwei float64) *big.Int {
	return decimal.NewFromFloat(gwei).Shift(9).Truncate(0).BigInt()
}

type oracleMetrics struct {
	fetches     metric.Int64Counter
	gasPrice    metric.Float64Gauge
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
}

// Oracle converts the suggested gas price into a per-transfer network cost
// in quote currency.
type Oracle struct {
	config Config
	prices PriceFunc
	logger logger.LoggerInterface

	client   *ethclient.Client
	clientMu sync.RWMutex

	priceCache *cache.Cache[string, *big.Int]
	cb         *circuitbreaker.CircuitBreaker[*big.Int]

	tracer  trace.Tracer
	metrics *oracleMetrics
}

func NewOracle(cfg Config, prices PriceFunc, log logger.LoggerInterface) (*Oracle, error) {
	if cfg.GasLimit == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("gas limit must be positive"))
	}
	o := &Oracle{
		config:     cfg,
		prices:     prices,
		logger:     log,
		priceCache: cache.New[string, *big.Int](time.Minute),
		cb:         circuitbreaker.New[*big.Int](circuitbreaker.DefaultConfig("gas-oracle")),
		tracer:     otel.Tracer(tracerName),
	}
	if err := o.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return o, nil
}

func (o *Oracle) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	o.metrics = &oracleMetrics{}

	o.metrics.fetches, err = meter.Int64Counter(
		"gas_price_fetches_total",
		metric.WithDescription("Total gas price fetch attempts"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	o.metrics.gasPrice, err = meter.Float64Gauge(
		"gas_price_gwei",
		metric.WithDescription("Current gas price in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	o.metrics.cacheHits, err = meter.Int64Counter(
		"gas_cache_hits_total",
		metric.WithDescription("Gas price cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	o.metrics.cacheMisses, err = meter.Int64Counter(
		"gas_cache_misses_total",
		metric.WithDescription("Gas price cache misses"),
		metric.WithUnit("{miss}"),
	)
	return err
}

// Connect dials the node.
func (o *Oracle) Connect(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "gas.connect",
		trace.WithAttributes(attribute.String("url", o.config.RPCURL)),
	)
	defer span.End()

	client, err := ethclient.DialContext(ctx, o.config.RPCURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return apperror.New(apperror.CodeNetworkCostUnavailable,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect gas oracle"))
	}

	o.clientMu.Lock()
	o.client = client
	o.clientMu.Unlock()

	o.logger.Info(ctx, "gas oracle connected", "url", o.config.RPCURL)
	return nil
}

// GasPrice returns the suggested gas price in wei, cached for CacheTTL and
// clamped to MaxGasPrice.
func (o *Oracle) GasPrice(ctx context.Context) (*big.Int, error) {
	ctx, span := o.tracer.Start(ctx, "gas.get_price")
	defer span.End()

	if wei, ok := o.priceCache.Get(ctx, gasPriceKey); ok {
		o.metrics.cacheHits.Add(ctx, 1)
		span.AddEvent("cache_hit")
		return wei, nil
	}
	o.metrics.cacheMisses.Add(ctx, 1)
	o.metrics.fetches.Add(ctx, 1)

	o.clientMu.RLock()
	client := o.client
	o.clientMu.RUnlock()

	if client == nil {
		err := apperror.New(apperror.CodeNetworkCostUnavailable,
			apperror.WithContext("gas oracle not connected"))
		span.RecordError(err)
		return nil, err
	}

	wei, err := o.cb.Execute(func() (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		if apperror.HasCode(err, apperror.CodeCircuitOpen) {
			return nil, err
		}
		return nil, apperror.New(apperror.CodeNetworkCostUnavailable,
			apperror.WithCause(err),
			apperror.WithContext("failed to get gas price"))
	}

	if o.config.MaxGasPrice != nil && wei.Cmp(o.config.MaxGasPrice) > 0 {
		o.logger.Warn(ctx, "gas price exceeds max, clamping", "wei", wei.String())
		wei = new(big.Int).Set(o.config.MaxGasPrice)
	}

	o.priceCache.Set(ctx, gasPriceKey, wei, o.config.CacheTTL)

	gwei := decimal.NewFromBigInt(wei, -9).InexactFloat64()
	o.metrics.gasPrice.Record(ctx, gwei)
	span.SetAttributes(attribute.Float64("gwei", gwei))
	return wei, nil
}

// Estimate prices one transfer: gas limit times gas price, converted at
// the native asset's live price or the configured fallback.
func (o *Oracle) Estimate(ctx context.Context) (*detection.GasCost, error) {
	ctx, span := o.tracer.Start(ctx, "gas.estimate")
	defer span.End()

	wei, err := o.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	price := o.config.NativePrice
	if o.prices != nil {
		if live, ok := o.prices(ctx, o.config.NativeSymbol); ok && live.IsPositive() {
			price = live
		}
	}
	if !price.IsPositive() {
		err := apperror.New(apperror.CodeNetworkCostUnavailable,
			apperror.WithContext(fmt.Sprintf("no price for %s", o.config.NativeSymbol)))
		span.RecordError(err)
		return nil, err
	}

	cost := detection.NewGasCost(o.config.GasLimit, wei, price)
	span.SetAttributes(attribute.String("quote", cost.Quote.StringFixed(4)))
	return cost, nil
}

// NetworkCost is Estimate reduced to quote currency.
func (o *Oracle) NetworkCost(ctx context.Context) (decimal.Decimal, error) {
	cost, err := o.Estimate(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return cost.Quote, nil
}

func (o *Oracle) Close() error {
	o.clientMu.Lock()
	defer o.clientMu.Unlock()

	if o.client != nil {
		o.client.Close()
		o.client = nil
	}
	o.priceCache.Close()
	return nil
}
