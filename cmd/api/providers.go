package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appinventory "github.com/xiebiao/bookstore-ledger/internal/application/inventory"
	"github.com/xiebiao/bookstore-ledger/internal/domain/book"
	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
	"github.com/xiebiao/bookstore-ledger/internal/infrastructure/config"
	"github.com/xiebiao/bookstore-ledger/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/bookstore-ledger/internal/infrastructure/persistence/redis"
	httpiface "github.com/xiebiao/bookstore-ledger/internal/interface/http"
	"github.com/xiebiao/bookstore-ledger/internal/interface/http/handler"
	"github.com/xiebiao/bookstore-ledger/pkg/logger"
	"github.com/xiebiao/bookstore-ledger/pkg/mq"
	"github.com/xiebiao/bookstore-ledger/pkg/response"
)

// 以下Provider同时被main.go（手动组装）和wire.go（Wire生成）使用

// provideLogger 从配置创建zap.Logger，并设置response包的错误日志
func provideLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	log, err := logger.New(logger.Config{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		Output:       cfg.Log.Output,
		EnableCaller: cfg.Log.EnableCaller,
	})
	if err != nil {
		return nil, nil, err
	}
	response.SetLogger(log)
	return log, func() { _ = log.Sync() }, nil
}

// provideDB 创建数据库连接，cleanup关闭连接池
func provideDB(cfg *config.Config, log *zap.Logger) (*gorm.DB, func(), error) {
	db, err := mysql.NewDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

// repositories 仓储和事务管理器
type repositories struct {
	inventories inventory.Repository
	movements   inventory.MovementRepository
	orderSales  inventory.OrderSaleRepository
	catalog     book.Catalog
	txManager   *mysql.TxManager
}

// provideRepositories 基于同一个*gorm.DB创建全部仓储
func provideRepositories(db *gorm.DB) repositories {
	return repositories{
		inventories: mysql.NewInventoryRepository(db),
		movements:   mysql.NewMovementRepository(db),
		orderSales:  mysql.NewOrderSaleRepository(db),
		catalog:     mysql.NewBookRepository(db),
		txManager:   mysql.NewTxManager(db),
	}
}

// provideAvailabilityCache redis.enabled=false时返回nil，服务退化为直接读库
func provideAvailabilityCache(cfg *config.Config, log *zap.Logger) (appinventory.AvailabilityCache, func(), error) {
	if !cfg.Redis.Enabled {
		log.Info("未启用Redis，可售状态直接查询数据库")
		return nil, func() {}, nil
	}

	client, err := redis.NewClient(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cache := redis.NewAvailabilityCache(client, cfg.Inventory.CacheTTL, log)
	return cache, func() { _ = client.Close() }, nil
}

// provideEventPublisher mq.enabled=false时返回nil，不发布领域事件
func provideEventPublisher(cfg *config.Config, log *zap.Logger) (appinventory.EventPublisher, func(), error) {
	if !cfg.MQ.Enabled {
		return nil, func() {}, nil
	}

	publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange, cfg.MQ.ExchangeType, log)
	if err != nil {
		return nil, nil, fmt.Errorf("创建消息发布者失败: %w", err)
	}
	return publisher, func() { _ = publisher.Close() }, nil
}

func provideStockService(
	cfg *config.Config,
	repos repositories,
	cache appinventory.AvailabilityCache,
	publisher appinventory.EventPublisher,
	log *zap.Logger,
) *appinventory.StockService {
	return appinventory.NewStockService(
		repos.inventories,
		repos.movements,
		repos.orderSales,
		repos.catalog,
		repos.txManager,
		cache,
		publisher,
		appinventory.Options{
			OperationTimeout:     cfg.Inventory.OperationTimeout,
			MaxRetries:           cfg.Inventory.MaxRetries,
			RetryInitialInterval: cfg.Inventory.RetryInitialInterval,
		},
		log.Named("stock"),
	)
}

func provideQueryService(
	cfg *config.Config,
	repos repositories,
	cache appinventory.AvailabilityCache,
	log *zap.Logger,
) *appinventory.QueryService {
	return appinventory.NewQueryService(
		repos.inventories,
		repos.movements,
		repos.catalog,
		cache,
		cfg.Inventory.DefaultPageSize,
		cfg.Inventory.MaxPageSize,
		log.Named("query"),
	)
}

// provideSaleConsumer mq.enabled=false时返回nil，不消费订单事件
func provideSaleConsumer(cfg *config.Config, log *zap.Logger) (*mq.Consumer, func(), error) {
	if !cfg.MQ.Enabled {
		return nil, func() {}, nil
	}

	consumer, err := mq.NewConsumer(
		cfg.MQ.URL,
		cfg.MQ.Exchange,
		cfg.MQ.ExchangeType,
		cfg.MQ.SaleQueue,
		cfg.MQ.SaleRoutingKeys,
		log.Named("mq"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("创建消息消费者失败: %w", err)
	}
	return consumer, func() { _ = consumer.Close() }, nil
}

// provideRouter 非release模式开启Swagger
func provideRouter(
	cfg *config.Config,
	log *zap.Logger,
	inventoryHandler *handler.InventoryHandler,
	movementHandler *handler.MovementHandler,
) *gin.Engine {
	return httpiface.NewRouter(httpiface.RouterOptions{
		Mode:          cfg.Server.Mode,
		EnableSwagger: cfg.Server.Mode != gin.ReleaseMode,
	}, log.Named("http"), inventoryHandler, movementHandler)
}
