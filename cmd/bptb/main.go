package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skalibog/bptb/internal/backtest"
	"github.com/skalibog/bptb/internal/config"
	"github.com/skalibog/bptb/internal/exchange"
	"github.com/skalibog/bptb/internal/storage"
	"github.com/skalibog/bptb/internal/trader"
	"github.com/skalibog/bptb/internal/ui"
	"github.com/skalibog/bptb/pkg/logger"
	"github.com/skalibog/bptb/pkg/models"
	"go.uber.org/zap"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	backtestCandles := flag.Int("backtest", 0, "прогнать стратегию по N последним свечам и выйти")
	backtestSource := flag.String("backtest-source", "exchange", "источник свечей для бэктеста: exchange или storage")
	flag.Parse()

	// Проверяем наличие файла конфигурации
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем и проверяем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Некорректная конфигурация", zap.Error(err))
	}

	// Инициализируем клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Режим бэктеста: прогон по истории без торговли и UI
	if *backtestCandles > 0 {
		runBacktest(cfg, client, *backtestSource, *backtestCandles)
		return
	}

	// Создаем контекст с возможностью отмены через горутину
	ctx, cancel := context.WithCancel(context.Background())

	// Настраиваем обработку сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(5 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Инициализируем хранилище
	store, err := storage.NewInfluxDBStorage(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	// Контекст прошлых сессий из журнала
	if trades, err := store.GetTradeHistory(ctx, cfg.Trading.Symbol, cfg.Session.LastN); err != nil {
		logger.Warn("Не удалось загрузить журнал сделок", zap.Error(err))
	} else if len(trades) > 0 {
		logger.Info("Загружен журнал прошлых сделок",
			zap.Int("count", len(trades)),
			zap.String("last_type", string(trades[0].Type)),
			zap.Float64("last_pnl_percent", trades[0].PnLPercent))
	}
	if signals, err := store.GetSignalHistory(ctx, cfg.Trading.Symbol, cfg.Session.LastN); err != nil {
		logger.Warn("Не удалось загрузить историю сигналов", zap.Error(err))
	} else if len(signals) > 0 {
		logger.Info("Загружена история сигналов",
			zap.Int("count", len(signals)),
			zap.String("last_kind", string(signals[0].Kind)))
	}

	// Создаем трейдера
	bot := trader.New(client, store, cfg)

	// Инициализируем UI
	userInterface := ui.NewTermUI(cfg.UI)

	// Фоновые сборщики данных для истории
	dataCollectors := []exchange.DataCollector{
		exchange.NewCandleCollector(client, store, cfg.Trading.Symbol, cfg.Trading.Interval,
			time.Duration(cfg.Trading.PollSeconds)*time.Second),
	}
	for _, collector := range dataCollectors {
		collector := collector
		go func() {
			defer collector.Stop()
			if err := collector.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Сборщик данных остановлен", zap.Error(err))
			}
		}()
	}

	// Торговый цикл: первый тик сразу, дальше по таймеру
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Trading.PollSeconds) * time.Second)
		defer ticker.Stop()

		for {
			sig, err := bot.Tick(ctx)
			if err != nil {
				logger.Error("Ошибка торгового цикла", zap.Error(err))
			} else {
				userInterface.UpdateSignal(sig, bot.Position())
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Периодические отчеты сессии
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Session.ReportIntervalMinutes) * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				userInterface.UpdateReport(bot.Report(ctx))
			case <-ctx.Done():
				return
			}
		}
	}()

	// Запускаем UI в основном потоке (блокирующий вызов)
	if err := userInterface.Run(); err != nil {
		logger.Error("UI завершился с ошибкой", zap.Error(err))
	}
	cancel()
}

// runBacktest выгружает историю с биржи или из хранилища и прогоняет
// по ней стратегию
func runBacktest(cfg *config.Config, client *exchange.BinanceClient, source string, limit int) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var candles []*models.Candle
	var err error

	switch source {
	case "storage":
		store, serr := storage.NewInfluxDBStorage(cfg.Storage)
		if serr != nil {
			logger.Fatal("Ошибка инициализации хранилища", zap.Error(serr))
		}
		defer store.Close()
		candles, err = store.GetCandles(ctx, cfg.Trading.Symbol, cfg.Trading.Interval, limit)
	case "exchange":
		candles, err = client.GetKlines(ctx, cfg.Trading.Symbol, cfg.Trading.Interval, limit)
	default:
		logger.Fatal("Неизвестный источник свечей", zap.String("source", source))
	}
	if err != nil {
		logger.Fatal("Ошибка выгрузки истории для бэктеста", zap.Error(err))
	}

	result := backtest.Run(cfg, candles)
	fmt.Print(result.Summary())
}
