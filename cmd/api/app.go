package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appinventory "github.com/xiebiao/bookstore-ledger/internal/application/inventory"
	"github.com/xiebiao/bookstore-ledger/internal/infrastructure/config"
	ifacemq "github.com/xiebiao/bookstore-ledger/internal/interface/mq"
	"github.com/xiebiao/bookstore-ledger/pkg/mq"
)

// 优雅关闭的最长等待时间
const shutdownTimeout = 10 * time.Second

// App 组装完成的应用：HTTP服务 + 可选的订单事件消费者
type App struct {
	cfg      *config.Config
	log      *zap.Logger
	server   *http.Server
	consumer *mq.Consumer
	sales    *ifacemq.SaleConsumer
}

func newApp(
	cfg *config.Config,
	log *zap.Logger,
	engine *gin.Engine,
	consumer *mq.Consumer,
	stock *appinventory.StockService,
) *App {
	return &App{
		cfg: cfg,
		log: log,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		consumer: consumer,
		sales:    ifacemq.NewSaleConsumer(stock, log.Named("sale")),
	}
}

// Run 启动服务并阻塞，ctx取消后优雅关闭
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.log.Info("HTTP服务启动", zap.String("addr", a.server.Addr), zap.String("mode", a.cfg.Server.Mode))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP服务异常退出: %w", err)
		}
	}()

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Consume(ctx, a.sales.Handle); err != nil {
				errCh <- fmt.Errorf("订单事件消费异常退出: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("收到关闭信号，开始优雅关闭")
	case runErr = <-errCh:
		a.log.Error("服务异常，开始关闭", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Error("HTTP服务关闭失败", zap.Error(err))
	}

	a.log.Info("服务已安全关闭")
	return runErr
}
