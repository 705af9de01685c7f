package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
)

// movementRepository 库存变动仓储实现(只追加)
type movementRepository struct {
	db *gorm.DB
}

// NewMovementRepository 创建库存变动仓储
func NewMovementRepository(db *gorm.DB) inventory.MovementRepository {
	return &movementRepository{db: db}
}

// Append 追加变动记录
// 普通INSERT,不需要额外加锁
func (r *movementRepository) Append(ctx context.Context, m *inventory.Movement) error {
	model := &MovementModel{
		InventoryID:      m.InventoryID,
		MovementType:     string(m.Type),
		QuantityBefore:   m.QuantityBefore,
		QuantityAfter:    m.QuantityAfter,
		AffectedQuantity: m.AffectedQuantity,
		Description:      m.Description,
		Actor:            m.Actor,
		CreatedAt:        m.CreatedAt,
	}

	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		return translateError(err, "写入库存变动记录失败")
	}

	m.ID = model.ID
	m.CreatedAt = model.CreatedAt
	return nil
}

// List 分页查询变动记录
func (r *movementRepository) List(ctx context.Context, q inventory.MovementQuery) ([]*inventory.Movement, int64, error) {
	page := q.Page
	if page.Size <= 0 || page.Page < 1 {
		page = inventory.DefaultPageRequest()
	}
	// 排序字段直接拼接到ORDER BY,必须在白名单内
	if !inventory.IsSortable(page.SortBy) {
		return nil, 0, inventory.ErrInvalidSort.WithField("movement", "sort", page.SortBy)
	}

	query := getDB(ctx, r.db).Model(&MovementModel{})
	if q.InventoryID != nil {
		query = query.Where("inventory_id = ?", *q.InventoryID)
	}
	if q.Type != nil {
		query = query.Where("movement_type = ?", string(*q.Type))
	}
	if q.From != nil {
		query = query.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		query = query.Where("created_at <= ?", *q.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "查询库存变动总数失败")
	}

	var models []MovementModel
	err := query.Order(page.OrderClause()).
		Limit(page.Size).
		Offset(page.Offset()).
		Find(&models).Error
	if err != nil {
		return nil, 0, translateError(err, "查询库存变动记录失败")
	}

	items := make([]*inventory.Movement, len(models))
	for i := range models {
		items[i] = toMovementEntity(&models[i])
	}
	return items, total, nil
}

// toMovementEntity GORM模型 → 领域实体
func toMovementEntity(model *MovementModel) *inventory.Movement {
	return &inventory.Movement{
		ID:               model.ID,
		InventoryID:      model.InventoryID,
		Type:             inventory.MovementType(model.MovementType),
		QuantityBefore:   model.QuantityBefore,
		QuantityAfter:    model.QuantityAfter,
		AffectedQuantity: model.AffectedQuantity,
		Description:      model.Description,
		Actor:            model.Actor,
		CreatedAt:        model.CreatedAt,
	}
}
