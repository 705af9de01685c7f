package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/bookstore-ledger/internal/infrastructure/config"
	"github.com/xiebiao/bookstore-ledger/internal/interface/http/handler"
	"github.com/xiebiao/bookstore-ledger/pkg/tracing"
)

// @title        图书库存账本 API
// @version      1.0
// @description  库存记录、库存变更（销售/入库/退货/盘点/预留）和库存变动流水查询
// @BasePath     /
func main() {
	// 步骤1：加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 步骤2：初始化日志
	logger, syncLogger, err := provideLogger(cfg)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer syncLogger()

	// 步骤3：链路追踪（可选）
	if cfg.Tracing.Enabled {
		shutdownTracer, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
		if err != nil {
			logger.Fatal("初始化链路追踪失败", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracer(ctx)
		}()
	}

	// 步骤4：组装依赖（InitializeApp的手动版本）
	app, cleanup, err := buildApp(cfg, logger)
	if err != nil {
		logger.Fatal("初始化应用失败", zap.Error(err))
	}
	defer cleanup()

	// 步骤5：运行，SIGINT/SIGTERM触发优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Error("服务退出", zap.Error(err))
	}
}

// buildApp 手动依赖注入
// 依赖链：Repository ← Service ← Handler ← Router ← App
func buildApp(cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// 基础设施层
	db, closeDB, err := provideDB(cfg, logger)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeDB)

	cache, closeCache, err := provideAvailabilityCache(cfg, logger)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeCache)

	publisher, closePublisher, err := provideEventPublisher(cfg, logger)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closePublisher)

	consumer, closeConsumer, err := provideSaleConsumer(cfg, logger)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeConsumer)

	repos := provideRepositories(db)

	// 应用层
	stock := provideStockService(cfg, repos, cache, publisher, logger)
	query := provideQueryService(cfg, repos, cache, logger)

	// 接口层
	router := provideRouter(cfg, logger,
		handler.NewInventoryHandler(stock, query),
		handler.NewMovementHandler(query),
	)

	return newApp(cfg, logger, router, consumer, stock), cleanup, nil
}
