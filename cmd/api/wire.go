//go:build wireinject
// +build wireinject

// Wire依赖注入配置
// 生成：wire gen ./cmd/api
// 生成的InitializeApp与main.go中的buildApp等价

package main

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/xiebiao/bookstore-ledger/internal/infrastructure/config"
	"github.com/xiebiao/bookstore-ledger/internal/interface/http/handler"
)

// infrastructureSet 数据库、缓存、消息队列
var infrastructureSet = wire.NewSet(
	provideDB,
	provideRepositories,
	provideAvailabilityCache,
	provideEventPublisher,
	provideSaleConsumer,
)

// applicationSet 库存变更和查询服务
var applicationSet = wire.NewSet(
	provideStockService,
	provideQueryService,
)

// interfaceSet HTTP处理器和路由
var interfaceSet = wire.NewSet(
	handler.NewInventoryHandler,
	handler.NewMovementHandler,
	provideRouter,
)

// InitializeApp 初始化整个应用
// cleanup按创建的逆序关闭消费者、发布者、Redis和数据库连接
func InitializeApp(cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(
		infrastructureSet,
		applicationSet,
		interfaceSet,
		newApp,
	)
	return nil, nil, nil
}
