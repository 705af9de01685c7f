package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/xiebiao/bookstore-ledger/internal/interface/http/handler"
	"github.com/xiebiao/bookstore-ledger/internal/interface/http/middleware"
	"github.com/xiebiao/bookstore-ledger/pkg/response"
)

// RouterOptions 路由开关
type RouterOptions struct {
	Mode          string // debug / release / test
	EnableSwagger bool
}

// NewRouter 创建Gin引擎并注册全部路由
func NewRouter(
	opts RouterOptions,
	log *zap.Logger,
	inventoryHandler *handler.InventoryHandler,
	movementHandler *handler.MovementHandler,
) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(log), middleware.Metrics())

	// 健康检查
	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{
			"message": "pong",
			"status":  "healthy",
		})
	})

	// Prometheus采集端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger文档：http://localhost:8080/swagger/index.html
	if opts.EnableSwagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group("/api/v1")
	{
		inventories := v1.Group("/inventories")
		{
			inventories.POST("", inventoryHandler.Create)
			inventories.GET("", inventoryHandler.List)
			inventories.GET("/low-stock", inventoryHandler.ListLowStock)
			inventories.GET("/:id", inventoryHandler.GetByID)
			inventories.DELETE("/:id", inventoryHandler.Disable)

			byBook := inventories.Group("/book/:book_id")
			{
				byBook.GET("", inventoryHandler.GetByBookID)
				byBook.GET("/availability", inventoryHandler.CheckAvailability)
				byBook.POST("/sales", inventoryHandler.RegisterSale)
				byBook.POST("/entries", inventoryHandler.RegisterEntry)
				byBook.POST("/returns", inventoryHandler.RegisterReturn)
				byBook.POST("/adjustments/positive", inventoryHandler.PositiveAdjustment)
				byBook.POST("/adjustments/negative", inventoryHandler.NegativeAdjustment)
				byBook.POST("/reservations", inventoryHandler.ReserveStock)
				byBook.POST("/reservations/release", inventoryHandler.ReleaseReservation)
				byBook.PUT("/thresholds", inventoryHandler.UpdateThresholds)
			}
		}

		movements := v1.Group("/movements")
		{
			movements.GET("/inventory/:id", movementHandler.ByInventory)
			movements.GET("/type/:type", movementHandler.ByType)
			movements.GET("/range", movementHandler.ByDateRange)
			movements.GET("/recent", movementHandler.Recent)
		}
	}

	return r
}
