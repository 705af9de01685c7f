package inventory

import (
	"context"
	"time"
)

// Repository 库存仓储接口(依赖倒置原则)
// 设计说明:
// 1. 由domain层定义接口,infrastructure层实现
// 2. Lock*方法必须在事务内调用(ctx中携带事务),使用SELECT FOR UPDATE串行化同一图书的写操作
// 3. Update使用版本号做乐观检查,版本不一致返回ErrVersionConflict
type Repository interface {
	// Create 创建库存记录,图书已存在库存时返回ErrDuplicateInventory
	Create(ctx context.Context, inv *Inventory) error

	// FindByID 根据库存ID查找
	FindByID(ctx context.Context, id uint) (*Inventory, error)

	// FindByBookID 根据图书ID查找
	FindByBookID(ctx context.Context, bookID uint) (*Inventory, error)

	// LockByID 悲观锁查询(根据库存ID)
	LockByID(ctx context.Context, id uint) (*Inventory, error)

	// LockByBookID 悲观锁查询(根据图书ID)
	LockByBookID(ctx context.Context, bookID uint) (*Inventory, error)

	// Update 保存变更并递增版本号
	Update(ctx context.Context, inv *Inventory) error

	// List 按条件列出库存记录(按ID升序)
	List(ctx context.Context, filter ListFilter) ([]*Inventory, error)
}

// ListFilter 库存列表过滤条件
type ListFilter struct {
	Active   *bool // nil表示不过滤
	LowStock bool  // 仅返回启用且 quantity_available <= stock_min 的记录
}

// MovementRepository 库存变动仓储接口
// 只追加:不提供修改和删除
type MovementRepository interface {
	// Append 追加一条变动记录
	Append(ctx context.Context, m *Movement) error

	// List 分页查询变动记录
	List(ctx context.Context, query MovementQuery) ([]*Movement, int64, error)
}

// MovementQuery 变动记录查询条件
// 所有过滤字段为空时返回全部记录(最近变动)
type MovementQuery struct {
	InventoryID *uint
	Type        *MovementType
	From        *time.Time // 包含
	To          *time.Time // 包含
	Page        PageRequest
}

// OrderSaleRepository 已出库的订单明细
// (order_no, book_id)唯一，与库存变更在同一事务内写入
type OrderSaleRepository interface {
	// Record 登记一条订单明细,已登记时返回ErrOrderSaleApplied
	Record(ctx context.Context, orderNo string, bookID uint) error

	// Remove 删除登记,返回记录是否存在
	Remove(ctx context.Context, orderNo string, bookID uint) (bool, error)
}
