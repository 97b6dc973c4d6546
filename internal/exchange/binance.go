package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/skalibog/bptb/internal/config"
	"github.com/skalibog/bptb/pkg/logger"
	"github.com/skalibog/bptb/pkg/models"
	"go.uber.org/zap"
)

// BinanceClient клиент для взаимодействия с Binance (спот)
type BinanceClient struct {
	spot  *binance.Client
	paper bool
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	spotClient := binance.NewClient(cfg.APIKey, cfg.APISecret)

	if cfg.Testnet {
		spotClient.BaseURL = "https://testnet.binance.vision"
	}

	return &BinanceClient{
		spot:  spotClient,
		paper: cfg.Paper,
	}, nil
}

// GetKlines получает исторические свечи
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	klines, err := c.spot.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]*models.Candle, len(klines))
	for i, k := range klines {
		candles[i] = &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.Unix(k.OpenTime/1000, 0),
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			CloseTime: time.Unix(k.CloseTime/1000, 0),
		}
	}

	return candles, nil
}

// GetPrice получает текущую цену символа
func (c *BinanceClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.spot.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения цены: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("биржа не вернула цену для %s", symbol)
	}
	return parseFloat(prices[0].Price), nil
}

// PlaceMarketOrder отправляет рыночный ордер и возвращает цену
// исполнения. В бумажном режиме ордер не отправляется на биржу, а
// исполняется по переданной справочной цене; SHORT на споте всегда
// имитируется именно так. Повторных попыток нет: отказ ордера
// возвращается вызывающему, и переход позиции не применяется.
func (c *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity, refPrice float64) (float64, error) {
	if c.paper {
		logger.Info("Бумажный ордер исполнен",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Float64("quantity", quantity),
			zap.Float64("price", refPrice))
		return refPrice, nil
	}

	sideType := binance.SideTypeBuy
	if side == models.OrderSideSell {
		sideType = binance.SideTypeSell
	}

	order, err := c.spot.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка отправки ордера: %w", err)
	}

	fill := fillPrice(order)
	if fill == 0 {
		fill = refPrice
	}

	logger.Info("Ордер исполнен",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int64("order_id", order.OrderID),
		zap.Float64("fill_price", fill))

	return fill, nil
}

// fillPrice средневзвешенная цена исполнения по частичным сделкам ордера
func fillPrice(order *binance.CreateOrderResponse) float64 {
	var totalQty, totalQuote float64
	for _, f := range order.Fills {
		qty := parseFloat(f.Quantity)
		totalQty += qty
		totalQuote += qty * parseFloat(f.Price)
	}
	if totalQty == 0 {
		return 0
	}
	return totalQuote / totalQty
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
