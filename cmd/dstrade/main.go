package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/dstrade/internal/ai"
	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/internal/exchange"
	"github.com/skalibog/dstrade/internal/execution"
	"github.com/skalibog/dstrade/internal/scheduler"
	"github.com/skalibog/dstrade/internal/storage"
	"github.com/skalibog/dstrade/internal/ui"
	"github.com/skalibog/dstrade/pkg/logger"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Обработка сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(3 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Инициализируем хранилище аудита
	store, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	// Источник рыночных данных
	source, err := exchange.NewCandleSource(cfg.Trading, cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации источника данных", zap.Error(err))
	}

	// AI-оракул для обзора позиций
	oracle, err := ai.NewOracle(cfg.Ai)
	if err != nil {
		logger.Fatal("Ошибка инициализации AI", zap.Error(err))
	}

	// Машина состояний и исполнитель
	sm := execution.NewStateMachine(cfg.Risk)
	executor := execution.NewExecutor(sm, store, cfg.Risk)

	orchestrator := scheduler.NewOrchestrator(cfg, source, sm, executor, oracle, store, nil)

	if !cfg.UI.Enabled {
		logger.Info("Запуск в headless-режиме")
		if err := orchestrator.Run(ctx); err != nil && err != context.Canceled {
			logger.Fatal("Оркестратор остановлен с ошибкой", zap.Error(err))
		}
		return
	}

	userInterface := ui.NewTermUI(cfg.UI, orchestrator.ContextBuilder())
	orchestrator.AttachSink(userInterface)

	go func() {
		if err := orchestrator.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Оркестратор остановлен с ошибкой", zap.Error(err))
		}
	}()

	// UI блокирует основной поток
	userInterface.Start()
	cancel()
}
