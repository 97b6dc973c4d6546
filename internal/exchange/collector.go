package exchange

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/skalibog/bptb/internal/storage"
	"github.com/skalibog/bptb/pkg/logger"
	"go.uber.org/zap"
)

// DataCollector интерфейс фонового сборщика данных
type DataCollector interface {
	Start(ctx context.Context) error
	Stop()
}

// CandleCollector периодически выгружает свечи и сохраняет их в
// хранилище для истории. Торговый цикл читает свечи напрямую с биржи,
// поэтому сбой сборщика не влияет на решения.
type CandleCollector struct {
	client   *BinanceClient
	store    storage.Storage
	symbol   string
	interval string
	poll     time.Duration
	limit    int
}

// NewCandleCollector создает сборщик свечей
func NewCandleCollector(client *BinanceClient, store storage.Storage, symbol, interval string, poll time.Duration) *CandleCollector {
	return &CandleCollector{
		client:   client,
		store:    store,
		symbol:   symbol,
		interval: interval,
		poll:     poll,
		limit:    100,
	}
}

// Start запускает цикл сбора. Временные ошибки выгрузки гасятся
// экспоненциальной паузой, сам цикл не останавливается.
func (c *CandleCollector) Start(ctx context.Context) error {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		candles, err := c.client.GetKlines(ctx, c.symbol, c.interval, c.limit)
		if err != nil {
			d := b.Duration()
			logger.Warn("Ошибка выгрузки свечей, повтор позже",
				zap.String("symbol", c.symbol),
				zap.Duration("retry_in", d),
				zap.Error(err))
			select {
			case <-time.After(d):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		b.Reset()

		if err := c.store.SaveCandles(ctx, candles); err != nil {
			logger.Warn("Ошибка сохранения свечей", zap.Error(err))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop завершает работу сборщика
func (c *CandleCollector) Stop() {}
