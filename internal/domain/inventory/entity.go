package inventory

import (
	"time"
)

// DefaultActor 未指定操作人时使用的默认值
const DefaultActor = "system"

// Inventory 库存实体(聚合根)
//
// 设计说明:
// 1. 每本图书只有一条库存记录,BookID唯一,只保存图书ID不持有图书对象
// 2. QuantityReserved从QuantityAvailable中划出:预留时可用减少,释放时可用增加
// 3. AlertLowStock是派生字段,每次变更后按 QuantityAvailable <= StockMin 重新计算
// 4. Active只能由true变为false,停用后不会被重新启用
// 5. Version是乐观锁版本号,每次持久化成功后+1
//
// 每个变更方法都返回一条Movement,调用方负责在同一事务中保存记录和变动日志
type Inventory struct {
	ID                uint
	BookID            uint
	QuantityAvailable int
	QuantityReserved  int
	StockMin          int
	StockMax          int
	AlertLowStock     bool
	Active            bool
	LastUpdate        time.Time
	Version           int64
}

// NewInventory 创建库存记录(工厂方法)
// 返回的INITIAL_INVENTORY变动记录在记录保存后补充InventoryID
func NewInventory(bookID uint, quantity, stockMin, stockMax int, actor string) (*Inventory, *Movement, error) {
	if bookID == 0 {
		return nil, nil, ErrInvalidBookID.WithField(entityName, "book_id", bookID)
	}
	if quantity < 0 {
		return nil, nil, ErrInvalidQuantity.WithField(entityName, "quantity_available", quantity)
	}
	if err := ValidateThresholds(stockMin, stockMax); err != nil {
		return nil, nil, err
	}

	now := time.Now()
	inv := &Inventory{
		BookID:            bookID,
		QuantityAvailable: quantity,
		StockMin:          stockMin,
		StockMax:          stockMax,
		Active:            true,
		LastUpdate:        now,
	}
	inv.refreshAlert()

	return inv, newMovement(0, MovementInitialInventory, 0, quantity, actor, "", now), nil
}

// Sell 销售出库
// 业务规则:出库数量不能超过可用库存
func (i *Inventory) Sell(quantity int, actor, description string) (*Movement, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	if quantity > i.QuantityAvailable {
		return nil, ErrInsufficientStock.WithField(entityName, "quantity", quantity)
	}
	return i.apply(MovementExit, i.QuantityAvailable-quantity, actor, description), nil
}

// Restock 入库
// 不校验StockMax,阈值只用于预警
func (i *Inventory) Restock(quantity int, actor, description string) (*Movement, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	return i.apply(MovementEntry, i.QuantityAvailable+quantity, actor, description), nil
}

// AcceptReturn 退货入库
func (i *Inventory) AcceptReturn(quantity int, actor, description string) (*Movement, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	return i.apply(MovementReturn, i.QuantityAvailable+quantity, actor, description), nil
}

// AdjustUp 正向盘点调整
func (i *Inventory) AdjustUp(quantity int, actor, description string) (*Movement, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	return i.apply(MovementPositiveAdjustment, i.QuantityAvailable+quantity, actor, description), nil
}

// AdjustDown 负向盘点调整
// 业务规则:调整后可用库存不能为负
func (i *Inventory) AdjustDown(quantity int, actor, description string) (*Movement, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	if quantity > i.QuantityAvailable {
		return nil, ErrInvalidAdjustment.WithField(entityName, "quantity", quantity)
	}
	return i.apply(MovementNegativeAdjustment, i.QuantityAvailable-quantity, actor, description), nil
}

// Reserve 预留库存:从可用库存转移到预留库存
func (i *Inventory) Reserve(quantity int, actor, description string) (*Movement, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	if quantity > i.QuantityAvailable {
		return nil, ErrInsufficientStock.WithField(entityName, "quantity", quantity)
	}
	i.QuantityReserved += quantity
	return i.apply(MovementReserve, i.QuantityAvailable-quantity, actor, description), nil
}

// Release 释放预留:从预留库存转回可用库存
func (i *Inventory) Release(quantity int, actor, description string) (*Movement, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	if quantity > i.QuantityReserved {
		return nil, ErrInsufficientReservedStock.WithField(entityName, "quantity", quantity)
	}
	i.QuantityReserved -= quantity
	return i.apply(MovementReleaseReserve, i.QuantityAvailable+quantity, actor, description), nil
}

// UpdateThresholds 更新最小/最大库存阈值(数量不变)
func (i *Inventory) UpdateThresholds(stockMin, stockMax int, actor, description string) (*Movement, error) {
	if err := ValidateThresholds(stockMin, stockMax); err != nil {
		return nil, err
	}
	i.StockMin = stockMin
	i.StockMax = stockMax
	return i.apply(MovementUpdateThreshold, i.QuantityAvailable, actor, description), nil
}

// Disable 停用库存记录
// 对已停用的记录再次停用不改变状态,但仍然记录一条DISABLE变动
func (i *Inventory) Disable(actor, description string) *Movement {
	i.Active = false
	return i.apply(MovementDisable, i.QuantityAvailable, actor, description)
}

// RealStockAvailable 实际可售数量(可用 - 预留,最小为0)
func (i *Inventory) RealStockAvailable() int {
	if n := i.QuantityAvailable - i.QuantityReserved; n > 0 {
		return n
	}
	return 0
}

// Availability 当前可售状态
func (i *Inventory) Availability() AvailabilityStatus {
	return Classify(i.QuantityAvailable, i.StockMin)
}

// Validate 校验持久化前的不变量
func (i *Inventory) Validate() error {
	if i.BookID == 0 {
		return ErrInvalidBookID.WithField(entityName, "book_id", i.BookID)
	}
	if i.QuantityAvailable < 0 {
		return ErrInvalidQuantity.WithField(entityName, "quantity_available", i.QuantityAvailable)
	}
	if i.QuantityReserved < 0 {
		return ErrInvalidQuantity.WithField(entityName, "quantity_reserved", i.QuantityReserved)
	}
	return ValidateThresholds(i.StockMin, i.StockMax)
}

// apply 写入新的可用数量并生成变动记录
func (i *Inventory) apply(t MovementType, after int, actor, description string) *Movement {
	before := i.QuantityAvailable
	i.QuantityAvailable = after
	i.LastUpdate = time.Now()
	i.refreshAlert()
	return newMovement(i.ID, t, before, after, actor, description, i.LastUpdate)
}

func (i *Inventory) refreshAlert() {
	i.AlertLowStock = IsLowStock(i.QuantityAvailable, i.StockMin)
}

// ValidateQuantity 数量必须大于0
func ValidateQuantity(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity.WithField(entityName, "quantity", quantity)
	}
	return nil
}

// ValidateThresholds 最小库存不能为负且必须小于最大库存
func ValidateThresholds(stockMin, stockMax int) error {
	if stockMin < 0 {
		return ErrInvalidStockThreshold.WithField(entityName, "stock_min", stockMin)
	}
	if stockMin >= stockMax {
		return ErrInvalidStockThreshold.WithField(entityName, "stock_max", stockMax)
	}
	return nil
}
