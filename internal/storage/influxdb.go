// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skalibog/bptb/internal/config"
	"github.com/skalibog/bptb/pkg/models"
)

// Storage интерфейс для работы с хранилищем данных
type Storage interface {
	// Свечи
	SaveCandle(ctx context.Context, candle *models.Candle) error
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)

	// Сигналы
	SaveSignal(ctx context.Context, signal *models.Signal) error
	GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.Signal, error)

	// Журнал сделок
	SaveTrade(ctx context.Context, trade *models.ClosedTrade) error
	GetTradeHistory(ctx context.Context, symbol string, limit int) ([]*models.ClosedTrade, error)

	// Отчеты сессии
	SaveReport(ctx context.Context, report *models.SessionReport) error

	Close()
}

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandle сохраняет свечу
func (s *InfluxDBStorage) SaveCandle(ctx context.Context, candle *models.Candle) error {
	s.writeAPI.WritePoint(candlePoint(candle))
	s.writeAPI.Flush()
	return nil
}

// SaveCandles сохраняет множество свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		s.writeAPI.WritePoint(candlePoint(candle))
	}
	s.writeAPI.Flush()
	return nil
}

func candlePoint(candle *models.Candle) *write.Point {
	return influxdb2.NewPoint(
		"candles",
		map[string]string{
			"symbol":   candle.Symbol,
			"interval": candle.Interval,
		},
		map[string]interface{}{
			"open":   candle.Open,
			"high":   candle.High,
			"low":    candle.Low,
			"close":  candle.Close,
			"volume": candle.Volume,
		},
		candle.OpenTime,
	)
}

// GetCandles получает исторические свечи, от старых к новым
func (s *InfluxDBStorage) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "candles")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, interval, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}

	var candles []*models.Candle
	for result.Next() {
		record := result.Record()

		timestamp := record.Time()
		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		close, _ := record.ValueByKey("close").(float64)
		volume, _ := record.ValueByKey("volume").(float64)

		candles = append(candles, &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: timestamp.Add(getIntervalDuration(interval)),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	// Запрос отдает новые свечи первыми, разворачиваем в хронологию
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// SaveSignal сохраняет сигнал
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, signal *models.Signal) error {
	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol": signal.Symbol,
			"kind":   string(signal.Kind),
		},
		map[string]interface{}{
			"confidence":   signal.Confidence,
			"price":        signal.Price,
			"trend":        string(signal.Trend),
			"main_trend":   string(signal.MainTrend),
			"obv_trend":    string(signal.OBV.Trend),
			"volume_ratio": signal.Volume.VolumeRatio,
			"ma10":         signal.MA10,
			"ma30":         signal.MA30,
			"ma60":         signal.MA60,
			"reasons":      strings.Join(signal.Reasons, "; "),
		},
		signal.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// GetSignalHistory получает историю сигналов, новые первыми
func (s *InfluxDBStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.Signal, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "signals")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории сигналов: %w", err)
	}

	var signals []*models.Signal
	for result.Next() {
		record := result.Record()

		confidence, _ := record.ValueByKey("confidence").(int64)
		price, _ := record.ValueByKey("price").(float64)
		trendStr, _ := record.ValueByKey("trend").(string)
		mainTrendStr, _ := record.ValueByKey("main_trend").(string)
		kindStr, _ := record.ValueByKey("kind").(string)

		signals = append(signals, &models.Signal{
			Symbol:     symbol,
			Timestamp:  record.Time(),
			Kind:       models.SignalKind(kindStr),
			Confidence: int(confidence),
			Trend:      models.Trend(trendStr),
			MainTrend:  models.MainTrend(mainTrendStr),
			Price:      price,
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return signals, nil
}

// SaveTrade сохраняет закрытую сделку в журнал
func (s *InfluxDBStorage) SaveTrade(ctx context.Context, trade *models.ClosedTrade) error {
	point := influxdb2.NewPoint(
		"trades",
		map[string]string{
			"symbol": trade.Symbol,
			"type":   string(trade.Type),
		},
		map[string]interface{}{
			"entry_price": trade.EntryPrice,
			"exit_price":  trade.ExitPrice,
			"size":        trade.Size,
			"pnl_percent": trade.PnLPercent,
			"pnl_quote":   trade.PnLQuote,
		},
		trade.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// GetTradeHistory получает журнал сделок, новые первыми
func (s *InfluxDBStorage) GetTradeHistory(ctx context.Context, symbol string, limit int) ([]*models.ClosedTrade, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -90d)
			|> filter(fn: (r) => r._measurement == "trades")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса журнала сделок: %w", err)
	}

	var trades []*models.ClosedTrade
	for result.Next() {
		record := result.Record()

		typeStr, _ := record.ValueByKey("type").(string)
		entryPrice, _ := record.ValueByKey("entry_price").(float64)
		exitPrice, _ := record.ValueByKey("exit_price").(float64)
		size, _ := record.ValueByKey("size").(float64)
		pnlPercent, _ := record.ValueByKey("pnl_percent").(float64)
		pnlQuote, _ := record.ValueByKey("pnl_quote").(float64)

		trades = append(trades, &models.ClosedTrade{
			Timestamp:  record.Time(),
			Symbol:     symbol,
			Type:       models.TradeType(typeStr),
			EntryPrice: entryPrice,
			ExitPrice:  exitPrice,
			Size:       size,
			PnLPercent: pnlPercent,
			PnLQuote:   pnlQuote,
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return trades, nil
}

// SaveReport сохраняет периодический отчет сессии
func (s *InfluxDBStorage) SaveReport(ctx context.Context, report *models.SessionReport) error {
	point := influxdb2.NewPoint(
		"session_reports",
		map[string]string{
			"symbol": report.Symbol,
		},
		map[string]interface{}{
			"total_signals":  report.TotalSignals,
			"buy_signals":    report.SignalCounts[models.SignalBuy],
			"sell_signals":   report.SignalCounts[models.SignalSell],
			"hold_signals":   report.SignalCounts[models.SignalHold],
			"price_low":      report.PriceLow,
			"price_high":     report.PriceHigh,
			"opened":         report.Opened,
			"closed":         report.Closed,
			"realized_quote": report.RealizedQuote,
			"win_rate":       report.WinRate,
			"unrealized_pnl": report.UnrealizedPnL,
			"position":       string(report.Position.State),
		},
		report.GeneratedAt,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// getIntervalDuration конвертирует строковый интервал в duration
func getIntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "8h":
		return 8 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "3d":
		return 72 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}
