package mysql

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xiebiao/bookstore-ledger/internal/infrastructure/config"
)

// NewDB 创建数据库连接
// 设计说明：
// 1. 使用GORM v2作为ORM框架
// 2. 配置连接池参数（MaxOpenConns、MaxIdleConns、ConnMaxLifetime）
// 3. 开发环境开启SQL日志，生产环境关闭
// 4. 按配置自动迁移表结构（AutoMigrate）
func NewDB(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	dsn := cfg.Database.DSN()

	logLevel := logger.Silent
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info // 开发环境打印SQL
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		// 唯一索引冲突转换为gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取SQL DB失败: %w", err)
	}

	// 最大打开连接数（建议：CPU核数 * 2 + 磁盘数量）
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	// 最大空闲连接数（建议：MaxOpenConns的1/4到1/2）
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	// 连接最大存活时间（防止数据库主动断开连接）
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	log.Info("数据库连接成功",
		zap.String("host", cfg.Database.Host),
		zap.String("dbname", cfg.Database.DBName),
	)

	// 注意：生产环境应使用版本化的迁移脚本，不要依赖AutoMigrate
	if cfg.Database.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	return db, nil
}

// AutoMigrate 自动迁移表结构
// books表由目录模块维护，这里迁移只是为了单独部署时表存在
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&BookModel{},
		&InventoryModel{},
		&MovementModel{},
		&OrderSaleModel{},
	)
}

// BookModel GORM图书模型（只读）
type BookModel struct {
	ID        uint           `gorm:"primaryKey"`
	ISBN      string         `gorm:"uniqueIndex;size:20;not null;comment:ISBN号"`
	Title     string         `gorm:"size:200;not null;comment:书名"`
	Author    string         `gorm:"size:100;not null;comment:作者"`
	Publisher string         `gorm:"size:100;not null;comment:出版社"`
	CreatedAt time.Time      `gorm:"comment:创建时间"`
	UpdatedAt time.Time      `gorm:"comment:更新时间"`
	DeletedAt gorm.DeletedAt `gorm:"index;comment:删除时间(软删除)"`
}

// TableName 指定表名
func (BookModel) TableName() string {
	return "books"
}

// InventoryModel GORM库存模型
// 设计说明:
// 1. BookID唯一索引,保证每本图书只有一条库存记录
// 2. Version为乐观锁版本号,Update时 WHERE version = ? 并自增
// 3. (active, alert_low_stock)复合索引服务低库存预警列表
type InventoryModel struct {
	ID                uint      `gorm:"primaryKey"`
	BookID            uint      `gorm:"uniqueIndex;not null;comment:图书ID"`
	QuantityAvailable int       `gorm:"not null;default:0;comment:可用库存"`
	QuantityReserved  int       `gorm:"not null;default:0;comment:预留库存"`
	StockMin          int       `gorm:"not null;comment:最小库存"`
	StockMax          int       `gorm:"not null;comment:最大库存"`
	AlertLowStock     bool      `gorm:"index:idx_active_alert,priority:2;not null;comment:低库存预警"`
	Active            bool      `gorm:"index:idx_active_alert,priority:1;not null;comment:是否启用"`
	LastUpdate        time.Time `gorm:"comment:最后变更时间"`
	Version           int64     `gorm:"not null;default:0;comment:乐观锁版本号"`
	CreatedAt         time.Time `gorm:"comment:创建时间"`
	UpdatedAt         time.Time `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (InventoryModel) TableName() string {
	return "inventories"
}

// MovementModel GORM库存变动模型(只追加)
// 教学要点:
// 1. 没有UpdatedAt/DeletedAt,记录写入后不可修改
// 2. (inventory_id, created_at)复合索引服务按库存分页查询
type MovementModel struct {
	ID               uint      `gorm:"primaryKey"`
	InventoryID      uint      `gorm:"index:idx_inventory_created,priority:1;not null;comment:库存ID"`
	MovementType     string    `gorm:"index;size:32;not null;comment:变动类型"`
	QuantityBefore   int       `gorm:"not null;comment:变动前数量"`
	QuantityAfter    int       `gorm:"not null;comment:变动后数量"`
	AffectedQuantity int       `gorm:"not null;comment:变动数量(有符号)"`
	Description      string    `gorm:"size:255;comment:描述"`
	Actor            string    `gorm:"size:64;not null;comment:操作人"`
	CreatedAt        time.Time `gorm:"index;index:idx_inventory_created,priority:2;comment:创建时间"`
}

// TableName 指定表名
func (MovementModel) TableName() string {
	return "inventory_movements"
}

// OrderSaleModel 已出库的订单明细
// (order_no, book_id)唯一索引保证同一订单明细只出库一次
type OrderSaleModel struct {
	ID        uint      `gorm:"primaryKey"`
	OrderNo   string    `gorm:"uniqueIndex:uk_order_book,priority:1;size:64;not null;comment:订单号"`
	BookID    uint      `gorm:"uniqueIndex:uk_order_book,priority:2;not null;comment:图书ID"`
	CreatedAt time.Time `gorm:"comment:出库时间"`
}

// TableName 指定表名
func (OrderSaleModel) TableName() string {
	return "inventory_order_sales"
}
