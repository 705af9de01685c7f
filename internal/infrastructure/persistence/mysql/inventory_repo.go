package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
)

// inventoryRepository 库存仓储实现(MySQL)
// 设计说明:
// 1. 实现domain/inventory/repository.go定义的接口
// 2. 负责domain实体与GORM模型之间的转换
// 3. Lock*使用SELECT FOR UPDATE,Update使用版本号,两者配合保证并发安全
type inventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository 创建库存仓储
func NewInventoryRepository(db *gorm.DB) inventory.Repository {
	return &inventoryRepository{db: db}
}

// Create 创建库存记录
func (r *inventoryRepository) Create(ctx context.Context, inv *inventory.Inventory) error {
	if err := inv.Validate(); err != nil {
		return err
	}

	model := toInventoryModel(inv)
	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicateError(err) {
			return inventory.ErrDuplicateInventory.WithField("inventory", "book_id", inv.BookID)
		}
		return translateError(err, "创建库存记录失败")
	}

	inv.ID = model.ID
	inv.Version = model.Version
	return nil
}

// FindByID 根据库存ID查找
func (r *inventoryRepository) FindByID(ctx context.Context, id uint) (*inventory.Inventory, error) {
	return r.first(getDB(ctx, r.db), "id", id)
}

// FindByBookID 根据图书ID查找
func (r *inventoryRepository) FindByBookID(ctx context.Context, bookID uint) (*inventory.Inventory, error) {
	return r.first(getDB(ctx, r.db), "book_id", bookID)
}

// LockByID 悲观锁查询(根据库存ID)
// 教学要点:必须在TxManager.Transaction内调用,否则锁在语句结束后立即释放
func (r *inventoryRepository) LockByID(ctx context.Context, id uint) (*inventory.Inventory, error) {
	db := getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.first(db, "id", id)
}

// LockByBookID 悲观锁查询(根据图书ID)
func (r *inventoryRepository) LockByBookID(ctx context.Context, bookID uint) (*inventory.Inventory, error) {
	db := getDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.first(db, "book_id", bookID)
}

// Update 保存变更
// UPDATE inventories SET ..., version = version + 1 WHERE id = ? AND version = ?
// 影响行数为0说明记录已被其他事务修改,返回ErrVersionConflict
func (r *inventoryRepository) Update(ctx context.Context, inv *inventory.Inventory) error {
	if err := inv.Validate(); err != nil {
		return err
	}

	result := getDB(ctx, r.db).Model(&InventoryModel{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Updates(map[string]interface{}{
			"quantity_available": inv.QuantityAvailable,
			"quantity_reserved":  inv.QuantityReserved,
			"stock_min":          inv.StockMin,
			"stock_max":          inv.StockMax,
			"alert_low_stock":    inv.AlertLowStock,
			"active":             inv.Active,
			"last_update":        inv.LastUpdate,
			"version":            gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return translateError(result.Error, "更新库存失败")
	}
	if result.RowsAffected == 0 {
		return inventory.ErrVersionConflict.WithField("inventory", "version", inv.Version)
	}

	inv.Version++
	return nil
}

// List 按条件列出库存记录
func (r *inventoryRepository) List(ctx context.Context, filter inventory.ListFilter) ([]*inventory.Inventory, error) {
	query := getDB(ctx, r.db).Model(&InventoryModel{})

	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}
	if filter.LowStock {
		query = query.Where("active = ?", true).Where("quantity_available <= stock_min")
	}

	var models []InventoryModel
	if err := query.Order("id ASC").Find(&models).Error; err != nil {
		return nil, translateError(err, "查询库存列表失败")
	}

	items := make([]*inventory.Inventory, len(models))
	for i := range models {
		items[i] = toInventoryEntity(&models[i])
	}
	return items, nil
}

func (r *inventoryRepository) first(db *gorm.DB, column string, value uint) (*inventory.Inventory, error) {
	var model InventoryModel
	err := db.Where(column+" = ?", value).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrInventoryNotFound.WithField("inventory", column, value)
		}
		return nil, translateError(err, "查询库存失败")
	}
	return toInventoryEntity(&model), nil
}

// =========================================
// 辅助函数:模型转换
// =========================================

func toInventoryModel(inv *inventory.Inventory) *InventoryModel {
	return &InventoryModel{
		ID:                inv.ID,
		BookID:            inv.BookID,
		QuantityAvailable: inv.QuantityAvailable,
		QuantityReserved:  inv.QuantityReserved,
		StockMin:          inv.StockMin,
		StockMax:          inv.StockMax,
		AlertLowStock:     inv.AlertLowStock,
		Active:            inv.Active,
		LastUpdate:        inv.LastUpdate,
		Version:           inv.Version,
	}
}

// toInventoryEntity GORM模型 → 领域实体
func toInventoryEntity(model *InventoryModel) *inventory.Inventory {
	return &inventory.Inventory{
		ID:                model.ID,
		BookID:            model.BookID,
		QuantityAvailable: model.QuantityAvailable,
		QuantityReserved:  model.QuantityReserved,
		StockMin:          model.StockMin,
		StockMax:          model.StockMax,
		AlertLowStock:     model.AlertLowStock,
		Active:            model.Active,
		LastUpdate:        model.LastUpdate,
		Version:           model.Version,
	}
}
